package scanning

import "time"

// LiveHost is a host that answered an HTTP probe.
type LiveHost struct {
	URL        string
	StatusCode int
	Technology string
}

// OpenPort is a listening port found on a host.
type OpenPort struct {
	Port    int
	Service string
}

// ScanResult holds the final output of a completed scan. It is immutable once
// fetched.
type ScanResult struct {
	Domain     string
	Subdomains []string
	LiveHosts  []LiveHost

	// HistoricalURLs and OpenPorts are filled by follow-up lookups and may be
	// empty.
	HistoricalURLs []string
	OpenPorts      map[string][]OpenPort
}

// SubdomainsCount returns the number of discovered subdomains.
func (r *ScanResult) SubdomainsCount() int { return len(r.Subdomains) }

// LiveHostsCount returns the number of responsive hosts.
func (r *ScanResult) LiveHostsCount() int { return len(r.LiveHosts) }

// HistoricalURLs is the response of a historical URL lookup for a domain.
// Limited is set when the service truncated the URL list.
type HistoricalURLs struct {
	Domain  string
	Count   int
	URLs    []string
	Limited bool
}

// PortScan is the response of a port lookup for a single host.
type PortScan struct {
	Host  string
	Ports []OpenPort
}

// ScanRecord is one entry of the service's scan history.
type ScanRecord struct {
	ID              int64
	Domain          string
	Timestamp       time.Time
	Status          string
	SubdomainsCount int
	LiveHostsCount  int
}
