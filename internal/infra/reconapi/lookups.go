package reconapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ahrav/reconaug/internal/domain/scanning"
)

// HistoricalURLs asks the service for archived URLs of domain.
func (c *Client) HistoricalURLs(ctx context.Context, domain string) (*scanning.HistoricalURLs, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, scanning.NewError(scanning.KindInvalidInput, "", errors.New("domain is required"))
	}

	ctx, span := c.startSpan(ctx, "reconapi.historical_urls", attribute.String("domain", domain))
	defer span.End()

	var resp historicalURLsResponse
	if err := c.getJSON(ctx, "/run-gau", url.Values{"domain": {domain}}, &resp); err != nil {
		recordSpanError(span, err, "historical urls failed")
		return nil, fmt.Errorf("fetching historical urls for %s: %w", domain, err)
	}

	urls := resp.URLs
	if urls == nil {
		urls = []string{}
	}
	count := int(resp.Count)
	if count < len(urls) {
		count = len(urls)
	}

	return &scanning.HistoricalURLs{
		Domain:  domain,
		Count:   count,
		URLs:    urls,
		Limited: resp.Limited,
	}, nil
}

// ScanPorts asks the service for the open ports of host.
func (c *Client) ScanPorts(ctx context.Context, host string) (*scanning.PortScan, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, scanning.NewError(scanning.KindInvalidInput, "", errors.New("host is required"))
	}

	ctx, span := c.startSpan(ctx, "reconapi.scan_ports", attribute.String("host", host))
	defer span.End()

	var resp portScanResponse
	if err := c.getJSON(ctx, "/scan-ports", url.Values{"host": {host}}, &resp); err != nil {
		recordSpanError(span, err, "port scan failed")
		return nil, fmt.Errorf("scanning ports for %s: %w", host, err)
	}

	ports := make([]scanning.OpenPort, 0, len(resp.Ports))
	for _, p := range resp.Ports {
		ports = append(ports, scanning.OpenPort{Port: p.Port, Service: p.Service})
	}
	span.SetAttributes(attribute.Int("ports", len(ports)))

	return &scanning.PortScan{Host: host, Ports: ports}, nil
}

// ScanHistory lists past scans, newest first.
func (c *Client) ScanHistory(ctx context.Context) ([]scanning.ScanRecord, error) {
	ctx, span := c.startSpan(ctx, "reconapi.scan_history")
	defer span.End()

	var resp scanHistoryResponse
	if err := c.getJSON(ctx, "/api/scan-history", nil, &resp); err != nil {
		recordSpanError(span, err, "scan history failed")
		return nil, fmt.Errorf("fetching scan history: %w", err)
	}

	records := make([]scanning.ScanRecord, 0, len(resp.Scans))
	for _, s := range resp.Scans {
		records = append(records, s.toDomain())
	}
	return records, nil
}

// ClearHistory deletes every stored scan on the service.
func (c *Client) ClearHistory(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "reconapi.clear_history")
	defer span.End()

	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := c.getJSON(ctx, "/api/debug/clear-database", nil, &resp); err != nil {
		recordSpanError(span, err, "clear history failed")
		return fmt.Errorf("clearing scan history: %w", err)
	}
	if resp.Status != "" && resp.Status != "success" {
		err := fmt.Errorf("clearing scan history: %s", resp.Error)
		recordSpanError(span, err, "clear history failed")
		return err
	}
	return nil
}

// Tools reports which recon tools the service has installed.
func (c *Client) Tools(ctx context.Context) (map[string]bool, error) {
	ctx, span := c.startSpan(ctx, "reconapi.tools")
	defer span.End()

	tools := make(map[string]bool)
	if err := c.getJSON(ctx, "/api/tools", nil, &tools); err != nil {
		recordSpanError(span, err, "tools failed")
		return nil, fmt.Errorf("fetching tool availability: %w", err)
	}
	return tools, nil
}
