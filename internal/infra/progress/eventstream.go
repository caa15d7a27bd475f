package progress

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// maxFrameSize bounds a single event-stream line.
const maxFrameSize = 1 << 20

// frame is one dispatched server-sent event.
type frame struct {
	Event string
	ID    string
	Data  string
}

// eventStreamReader splits a text/event-stream body into frames. Comment
// lines are skipped, multi-line data is joined with newlines, and a blank line
// dispatches the pending frame. Frames without data are never dispatched.
type eventStreamReader struct {
	sc *bufio.Scanner

	event string
	id    string
	data  strings.Builder
	has   bool
}

func newEventStreamReader(r io.Reader) *eventStreamReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxFrameSize)
	return &eventStreamReader{sc: sc}
}

// Next returns the next frame. It returns io.EOF once the stream ends; a
// partial frame at end of stream is discarded.
func (r *eventStreamReader) Next() (frame, error) {
	for r.sc.Scan() {
		line := bytes.TrimSuffix(r.sc.Bytes(), []byte("\r"))

		if len(line) == 0 {
			if f, ok := r.dispatch(); ok {
				return f, nil
			}
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value := string(line), ""
		if i := bytes.IndexByte(line, ':'); i >= 0 {
			field = string(line[:i])
			value = strings.TrimPrefix(string(line[i+1:]), " ")
		}

		switch field {
		case "data":
			if r.has {
				r.data.WriteByte('\n')
			}
			r.data.WriteString(value)
			r.has = true
		case "event":
			r.event = value
		case "id":
			r.id = value
		}
		// retry and unknown fields are ignored.
	}

	if err := r.sc.Err(); err != nil {
		return frame{}, err
	}
	return frame{}, io.EOF
}

func (r *eventStreamReader) dispatch() (frame, bool) {
	defer func() {
		r.event = ""
		r.data.Reset()
		r.has = false
	}()

	if !r.has {
		return frame{}, false
	}
	return frame{Event: r.event, ID: r.id, Data: r.data.String()}, true
}
