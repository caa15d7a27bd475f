package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrav/reconaug/internal/app/session"
)

func (a *app) scanCommand() *cobra.Command {
	var lines bool

	cmd := &cobra.Command{
		Use:   "scan <domain>",
		Short: "Run a recon scan and follow its progress",
		Long: `Submit a scan for a domain, follow its progress until it completes or
fails, then print the discovered subdomains and live hosts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScan(cmd.Context(), args[0], lines)
		},
	}
	cmd.Flags().BoolVar(&lines, "no-progress", false, "Print one line per progress update instead of a bar")

	return cmd
}

func (a *app) runScan(ctx context.Context, domain string, lines bool) error {
	tracker, err := a.newTracker()
	if err != nil {
		return err
	}

	s := session.NewSession(a.client, tracker, newTerminalPresenter(a.out, lines), a.log)
	if _, err := s.Run(ctx, domain); err != nil {
		// The presenter already printed the failure.
		return fmt.Errorf("%w: %w", errReported, err)
	}
	return nil
}
