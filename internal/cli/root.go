// Package cli implements the reconaug command line client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/ahrav/reconaug/internal/app/tracking"
	"github.com/ahrav/reconaug/internal/config"
	"github.com/ahrav/reconaug/internal/config/fileloader"
	"github.com/ahrav/reconaug/internal/domain/scanning"
	"github.com/ahrav/reconaug/internal/infra/progress"
	"github.com/ahrav/reconaug/internal/infra/reconapi"
	"github.com/ahrav/reconaug/pkg/common/logger"
	telemetry "github.com/ahrav/reconaug/pkg/common/otel"
)

const serviceName = "reconaug"

// errReported marks errors that were already shown to the user.
var errReported = errors.New("reported")

type globalOptions struct {
	configPath  string
	server      string
	transport   string
	idleTimeout time.Duration
	logLevel    string
}

// app holds what every subcommand needs once the root command has loaded the
// configuration.
type app struct {
	opts   globalOptions
	out    io.Writer
	errOut io.Writer
	env    func(string) (string, bool)
	// loader replaces the file, environment and flag layering when set.
	loader config.Loader

	cfg    *config.Config
	log    *logger.Logger
	client *reconapi.Client
	// closers run in reverse order once the command returns, whether or not
	// it failed.
	closers []func(context.Context)
}

// Execute runs the command line client and returns the error that made it
// fail, after printing it.
func Execute(ctx context.Context) error {
	a := &app{out: os.Stdout, errOut: os.Stderr, env: os.LookupEnv}
	return a.execute(ctx, a.rootCommand())
}

// execute runs root and then the app's closers. Cobra skips post-run hooks
// when a command fails, so teardown cannot live there.
func (a *app) execute(ctx context.Context, root *cobra.Command) error {
	defer a.close(context.WithoutCancel(ctx))

	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errReported) {
		color.New(color.FgRed).Fprint(a.errOut, "[-] ")
		fmt.Fprintln(a.errOut, describeError(err))
	}
	return err
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}

// describeError prefers the user-facing text of scan errors.
func describeError(err error) string {
	if _, ok := scanning.KindOf(err); ok {
		return scanning.UserMessage(err)
	}
	return err.Error()
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Client for the recon scanning service",
		Long: `reconaug submits recon scans to a recon service, follows their progress
over server-sent events or polling, and prints the results.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.configPath, "config", "", "Path to a YAML config file")
	flags.StringVarP(&a.opts.server, "server", "s", "", "Base URL of the recon service")
	flags.StringVar(&a.opts.transport, "transport", "", "Progress transport: sse or poll")
	flags.DurationVar(&a.opts.idleTimeout, "idle-timeout", 0, "Fail a scan after this long without progress (0 disables)")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	root.AddCommand(
		a.scanCommand(),
		a.urlsCommand(),
		a.portsCommand(),
		a.historyCommand(),
		a.toolsCommand(),
	)

	return root
}

// setup loads the configuration and builds the logger, telemetry and client.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	loader := a.loader
	if loader == nil {
		loader = a.fileLoader(cmd)
	}

	cfg, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg

	a.log = logger.New(a.errOut, logger.ParseLevel(cfg.Log.Level), serviceName, telemetry.GetTraceID)

	_, teardown, err := telemetry.InitTelemetry(a.log, telemetry.Config{
		ServiceName:      serviceName,
		ExporterEndpoint: cfg.Telemetry.Endpoint,
		Probability:      cfg.Telemetry.SampleRatio,
		InsecureExporter: cfg.Telemetry.Insecure,
		ResourceAttributes: map[string]string{
			"library.language": "go",
		},
	})
	if err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}
	a.closers = append(a.closers, teardown)

	a.client, err = reconapi.NewClient(cfg.Server.BaseURL, a.log, reconapi.WithTimeout(cfg.Server.Timeout))
	if err != nil {
		return fmt.Errorf("creating recon client: %w", err)
	}

	if cfg.Server.ReadyWait > 0 {
		if err := a.client.WaitReady(ctx, cfg.Server.ReadyWait); err != nil {
			return err
		}
	}

	return nil
}

// fileLoader layers the config file, the environment and any flags the user
// set, in increasing order of precedence.
func (a *app) fileLoader(cmd *cobra.Command) config.Loader {
	opts := []fileloader.Option{fileloader.WithEnvLookup(a.env)}
	flags := cmd.Flags()
	if flags.Changed("server") {
		opts = append(opts, fileloader.WithOverride("server.base_url", a.opts.server))
	}
	if flags.Changed("transport") {
		opts = append(opts, fileloader.WithOverride("tracker.transport", a.opts.transport))
	}
	if flags.Changed("idle-timeout") {
		opts = append(opts, fileloader.WithOverride("tracker.idle_timeout", a.opts.idleTimeout))
	}
	if flags.Changed("log-level") {
		opts = append(opts, fileloader.WithOverride("log.level", a.opts.logLevel))
	}

	return fileloader.NewFileLoader(a.opts.configPath, opts...)
}

// newTracker builds a progress tracker for the configured transport.
func (a *app) newTracker() (*tracking.Tracker, error) {
	var sub scanning.ProgressSubscriber
	switch a.cfg.Tracker.Transport {
	case config.TransportPoll:
		sub = progress.NewPollSubscriber(a.client, a.cfg.Tracker.PollInterval, a.log)
	default:
		sub = progress.NewSSESubscriber(a.client, a.log)
	}

	metrics, err := tracking.NewTrackerMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("creating tracker metrics: %w", err)
	}

	return tracking.NewTracker(sub, a.log,
		tracking.WithIdleTimeout(a.cfg.Tracker.IdleTimeout),
		tracking.WithMetrics(metrics),
	), nil
}
