package reconapi

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/reconaug/internal/domain/scanning"
)

func TestHistoricalURLs(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run-gau", r.URL.Path)
		assert.Equal(t, "example.com", r.URL.Query().Get("domain"))
		_, _ = w.Write([]byte(`{"domain":"example.com","count":1500,"urls":["https://example.com/a","https://example.com/b"],"limited":true}`))
	}))

	got, err := c.HistoricalURLs(context.Background(), " example.com ")
	require.NoError(t, err)
	assert.Equal(t, &scanning.HistoricalURLs{
		Domain:  "example.com",
		Count:   1500,
		URLs:    []string{"https://example.com/a", "https://example.com/b"},
		Limited: true,
	}, got)
}

func TestHistoricalURLs_ServiceError(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "gau is not installed", "urls": []string{}})
	}))

	_, err := c.HistoricalURLs(context.Background(), "example.com")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "gau is not installed", se.Message)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
}

func TestHistoricalURLs_EmptyDomain(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))

	_, err := c.HistoricalURLs(context.Background(), "")
	assert.ErrorIs(t, err, scanning.ErrInvalidInput)
}

func TestScanPorts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []scanning.OpenPort
	}{
		{
			name: "bare numbers",
			body: `{"host":"a.example.com","count":2,"ports":[80,"443"]}`,
			want: []scanning.OpenPort{{Port: 80}, {Port: 443}},
		},
		{
			name: "objects",
			body: `{"host":"a.example.com","count":2,"ports":[{"port":22,"service":"ssh"},{"port_number":8080,"service":"http-alt"}]}`,
			want: []scanning.OpenPort{{Port: 22, Service: "ssh"}, {Port: 8080, Service: "http-alt"}},
		},
		{
			name: "none",
			body: `{"host":"a.example.com","count":0,"ports":[]}`,
			want: []scanning.OpenPort{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/scan-ports", r.URL.Path)
				assert.Equal(t, "a.example.com", r.URL.Query().Get("host"))
				_, _ = w.Write([]byte(tt.body))
			}))

			got, err := c.ScanPorts(context.Background(), "a.example.com")
			require.NoError(t, err)
			assert.Equal(t, "a.example.com", got.Host)
			assert.Equal(t, tt.want, got.Ports)
		})
	}
}

func TestScanHistory(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/scan-history", r.URL.Path)
		_, _ = w.Write([]byte(`{"scans":[
			{"id":2,"domain":"b.com","timestamp":"2024-05-01T10:00:00.123456","status":"completed","subdomains_count":4,"live_hosts_count":"1"},
			{"id":1,"domain":"a.com","timestamp":"2024-04-30T09:00:00Z","status":"completed","subdomains_count":0,"live_hosts_count":0}
		]}`))
	}))

	got, err := c.ScanHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, "b.com", got[0].Domain)
	assert.Equal(t, 1, got[0].LiveHostsCount)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC), got[0].Timestamp)
	assert.Equal(t, time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC), got[1].Timestamp)
}

func TestClearHistory(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/debug/clear-database", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Database cleared successfully"})
	}))
	assert.NoError(t, c.ClearHistory(context.Background()))

	failing, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": "locked"})
	}))
	assert.ErrorContains(t, failing.ClearHistory(context.Background()), "locked")
}

func TestTools(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tools", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]bool{"subfinder": true, "httpx": false})
	}))

	got, err := c.Tools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"subfinder": true, "httpx": false}, got)
}

func TestWaitReady(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"subfinder": true})
	}))

	require.NoError(t, c.WaitReady(context.Background(), 10*time.Second))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitReady_GivesUp(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	err := c.WaitReady(context.Background(), 500*time.Millisecond)
	assert.Error(t, err)
}

func TestFlexInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    flexInt
		wantErr bool
	}{
		{in: `200`, want: 200},
		{in: `"404"`, want: 404},
		{in: `""`, want: 0},
		{in: `null`, want: 0},
		{in: `12.9`, want: 12},
		{in: `"abc"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			var f flexInt
			err := f.UnmarshalJSON([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f)
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want httpStatus
	}{
		{in: `200`, want: 200},
		{in: `"404"`, want: 404},
		{in: `"[200]"`, want: 200},
		{in: `"[301,302,200]"`, want: 200},
		{in: `" [ 403 ] "`, want: 403},
		{in: `""`, want: 0},
		{in: `null`, want: 0},
		{in: `"[]"`, want: 0},
		{in: `"FAILED"`, want: 0},
		{in: `{"code": 200}`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			var h httpStatus
			require.NoError(t, h.UnmarshalJSON([]byte(tt.in)))
			assert.Equal(t, tt.want, h)
		})
	}
}
