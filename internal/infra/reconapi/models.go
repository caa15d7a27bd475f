package reconapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ahrav/reconaug/internal/domain/scanning"
)

// flexInt decodes an integer that the service may send as a JSON number, a
// numeric string, an empty string, or null.
type flexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("decoding integer from %q: %w", s, err)
		}
		*f = flexInt(n)
		return nil
	}

	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexInt(int(n))
	return nil
}

// httpStatus decodes a live host's status code. Besides numbers and numeric
// strings the service may forward the prober's raw token, such as "[200]" or a
// redirect chain "[301,200]", whose last code is the one that answered. Values
// that carry no code decode to 0 and never fail the surrounding document.
type httpStatus int

// UnmarshalJSON implements json.Unmarshaler.
func (h *httpStatus) UnmarshalJSON(b []byte) error {
	*h = 0

	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '"' {
		var n flexInt
		if err := n.UnmarshalJSON(b); err == nil {
			*h = httpStatus(n)
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if i := strings.LastIndexAny(s, ",>"); i >= 0 {
		s = s[i+1:]
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		*h = httpStatus(n)
	}
	return nil
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

type liveHostJSON struct {
	URL        string     `json:"url"`
	StatusCode httpStatus `json:"status_code"`
	Technology *string    `json:"technology"`
}

// taskResultResponse covers both shapes GET /task/{id} returns: the bare task
// status while a scan runs, and the task plus its results once complete.
type taskResultResponse struct {
	Domain         string          `json:"domain"`
	Subdomains     *[]string       `json:"subdomains"`
	LiveHosts      []liveHostJSON  `json:"live_hosts"`
	SubdomainCount flexInt         `json:"subdomains_count"`
	LiveHostCount  flexInt         `json:"live_hosts_count"`
	Status         string          `json:"status"`
	Task           json.RawMessage `json:"task"`
}

func (r taskResultResponse) toDomain() *scanning.ScanResult {
	res := &scanning.ScanResult{
		Domain:     r.Domain,
		Subdomains: []string{},
		LiveHosts:  make([]scanning.LiveHost, 0, len(r.LiveHosts)),
	}
	if r.Subdomains != nil {
		res.Subdomains = append(res.Subdomains, *r.Subdomains...)
	}
	for _, h := range r.LiveHosts {
		lh := scanning.LiveHost{URL: h.URL, StatusCode: int(h.StatusCode)}
		if h.Technology != nil {
			lh.Technology = *h.Technology
		}
		res.LiveHosts = append(res.LiveHosts, lh)
	}
	return res
}

type historicalURLsResponse struct {
	Domain  string   `json:"domain"`
	Count   flexInt  `json:"count"`
	URLs    []string `json:"urls"`
	Limited bool     `json:"limited"`
}

// openPortJSON accepts either a bare port number or a {port, service} object.
type openPortJSON struct {
	Port    int
	Service string
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *openPortJSON) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			Port       flexInt `json:"port"`
			PortNumber flexInt `json:"port_number"`
			Service    string  `json:"service"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		p.Port = int(obj.Port)
		if p.Port == 0 {
			p.Port = int(obj.PortNumber)
		}
		p.Service = obj.Service
		return nil
	}

	var n flexInt
	if err := n.UnmarshalJSON(b); err != nil {
		return err
	}
	p.Port = int(n)
	return nil
}

type portScanResponse struct {
	Host  string         `json:"host"`
	Count flexInt        `json:"count"`
	Ports []openPortJSON `json:"ports"`
}

type scanRecordJSON struct {
	ID              int64   `json:"id"`
	Domain          string  `json:"domain"`
	Timestamp       string  `json:"timestamp"`
	Status          string  `json:"status"`
	SubdomainsCount flexInt `json:"subdomains_count"`
	LiveHostsCount  flexInt `json:"live_hosts_count"`
}

type scanHistoryResponse struct {
	Scans []scanRecordJSON `json:"scans"`
}

// timestampLayouts lists the formats the service uses for scan timestamps.
// Timestamps without a zone are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (r scanRecordJSON) toDomain() scanning.ScanRecord {
	return scanning.ScanRecord{
		ID:              r.ID,
		Domain:          r.Domain,
		Timestamp:       parseTimestamp(r.Timestamp),
		Status:          r.Status,
		SubdomainsCount: int(r.SubdomainsCount),
		LiveHostsCount:  int(r.LiveHostsCount),
	}
}
