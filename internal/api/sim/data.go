package sim

import (
	"fmt"
	"strings"

	"github.com/ahrav/reconaug/internal/domain/scanning"
)

// MaxHistoricalURLs caps how many archived URLs a lookup returns; the count
// still reports the full total.
const MaxHistoricalURLs = 1000

var subdomainPrefixes = []string{"www", "api", "mail", "dev", "staging", "vpn", "cdn", "admin", "portal", "status"}

var technologies = []string{"nginx", "Cloudflare", "Apache", "", "Express"}

var liveStatusCodes = []int{200, 301, 200, 403, 200}

// fabricateResult derives a stable result from domain alone.
func fabricateResult(domain string) *scanning.ScanResult {
	n := 3 + len(domain)%(len(subdomainPrefixes)-2)

	res := &scanning.ScanResult{
		Domain:     domain,
		Subdomains: make([]string, 0, n),
		LiveHosts:  make([]scanning.LiveHost, 0, (n+1)/2),
	}
	for i := range n {
		sub := subdomainPrefixes[i] + "." + domain
		res.Subdomains = append(res.Subdomains, sub)
		if i%2 == 0 {
			k := len(res.LiveHosts) % len(technologies)
			res.LiveHosts = append(res.LiveHosts, scanning.LiveHost{
				URL:        "https://" + sub,
				StatusCode: liveStatusCodes[k],
				Technology: technologies[k],
			})
		}
	}
	return res
}

var urlPaths = []string{"", "login", "robots.txt", "api/v1/users", "static/app.js", "sitemap.xml", "search?q=test", "admin/"}

// HistoricalURLs returns archived URLs for domain.
func HistoricalURLs(domain string) (*scanning.HistoricalURLs, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, ErrDomainRequired
	}

	total := len(urlPaths) * (1 + len(domain)%3)
	urls := make([]string, 0, min(total, MaxHistoricalURLs))
	for i := 0; i < total && i < MaxHistoricalURLs; i++ {
		path := urlPaths[i%len(urlPaths)]
		if round := i / len(urlPaths); round > 0 {
			path = fmt.Sprintf("v%d/%s", round, path)
		}
		urls = append(urls, fmt.Sprintf("https://%s/%s", domain, path))
	}

	return &scanning.HistoricalURLs{
		Domain:  domain,
		Count:   total,
		URLs:    urls,
		Limited: total > MaxHistoricalURLs,
	}, nil
}

var wellKnownPorts = []scanning.OpenPort{
	{Port: 22, Service: "ssh"},
	{Port: 80, Service: "http"},
	{Port: 443, Service: "https"},
	{Port: 8080, Service: "http-proxy"},
	{Port: 3306, Service: "mysql"},
}

// ScanPorts returns open ports for host.
func ScanPorts(host string) (*scanning.PortScan, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, ErrHostRequired
	}

	n := 2 + len(host)%(len(wellKnownPorts)-1)
	ports := make([]scanning.OpenPort, n)
	copy(ports, wellKnownPorts[:n])
	return &scanning.PortScan{Host: host, Ports: ports}, nil
}

// Tools reports which recon tools the simulator pretends to have.
func Tools() map[string]bool {
	return map[string]bool{"subfinder": true, "httpx": true, "gau": true}
}
