package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/fatih/semgroup"
	"github.com/spf13/cobra"

	"github.com/ahrav/reconaug/internal/domain/scanning"
)

func (a *app) urlsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "urls <domain>",
		Short: "List archived URLs for a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.HistoricalURLs(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			cyan := color.New(color.FgCyan, color.Bold)
			yellow := color.New(color.FgYellow)

			cyan.Fprintf(a.out, "[+] %d historical URLs for %s\n", res.Count, res.Domain)
			urls := res.URLs
			if limit > 0 && len(urls) > limit {
				urls = urls[:limit]
			}
			for _, u := range urls {
				fmt.Fprintf(a.out, "  %s\n", u)
			}
			if res.Limited || len(urls) < len(res.URLs) {
				yellow.Fprintf(a.out, "[!] Showing %d of %d URLs\n", len(urls), res.Count)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Print at most this many URLs (0 prints all)")

	return cmd
}

func (a *app) portsCommand() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "ports <host>...",
		Short: "Scan open ports on one or more hosts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency < 1 {
				return fmt.Errorf("concurrency must be at least 1, got %d", concurrency)
			}
			ctx := cmd.Context()

			scans := make([]*scanning.PortScan, len(args))
			g := semgroup.NewGroup(ctx, int64(concurrency))
			for i, host := range args {
				g.Go(func() error {
					res, err := a.client.ScanPorts(ctx, host)
					if err != nil {
						return fmt.Errorf("%s: %w", host, err)
					}
					scans[i] = res
					return nil
				})
			}
			err := g.Wait()

			green := color.New(color.FgGreen)
			cyan := color.New(color.FgCyan, color.Bold)
			for _, scan := range scans {
				if scan == nil {
					continue
				}
				cyan.Fprintf(a.out, "[+] %s: %d open ports\n", scan.Host, len(scan.Ports))
				for _, p := range scan.Ports {
					green.Fprintf(a.out, "  %-6d", p.Port)
					fmt.Fprintf(a.out, " %s\n", p.Service)
				}
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "Number of hosts scanned at once")

	return cmd
}

func (a *app) historyCommand() *cobra.Command {
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show previous scans recorded by the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if clearAll {
				if err := a.client.ClearHistory(ctx); err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintln(a.out, "[+] Scan history cleared")
				return nil
			}

			records, err := a.client.ScanHistory(ctx)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(a.out, "No scans recorded")
				return nil
			}

			fmt.Fprintf(a.out, "%-6s %-30s %-20s %-10s %10s %10s\n",
				"ID", "DOMAIN", "TIME", "STATUS", "SUBDOMAINS", "LIVE")
			fmt.Fprintln(a.out, strings.Repeat("─", 91))
			for _, r := range records {
				ts := "-"
				if !r.Timestamp.IsZero() {
					ts = r.Timestamp.Local().Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(a.out, "%-6d %-30s %-20s %-10s %10d %10d\n",
					r.ID, r.Domain, ts, r.Status, r.SubdomainsCount, r.LiveHostsCount)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Delete all recorded scans")

	return cmd
}

func (a *app) toolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Check which recon tools the service has installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tools, err := a.client.Tools(cmd.Context())
			if err != nil {
				return err
			}

			names := make([]string, 0, len(tools))
			for name := range tools {
				names = append(names, name)
			}
			sort.Strings(names)

			green := color.New(color.FgGreen)
			red := color.New(color.FgRed)

			color.New(color.FgCyan, color.Bold).Fprintln(a.out, "[+] Recon tool status")
			for _, name := range names {
				fmt.Fprintf(a.out, "  %-15s ", name)
				if tools[name] {
					green.Fprintln(a.out, "✓ installed")
				} else {
					red.Fprintln(a.out, "✗ not found")
				}
			}
			return nil
		},
	}
}
