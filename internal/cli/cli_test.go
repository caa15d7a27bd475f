package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/reconaug/internal/api"
	"github.com/ahrav/reconaug/internal/api/sim"
	"github.com/ahrav/reconaug/internal/config"
	"github.com/ahrav/reconaug/pkg/common/logger"
)

func newSimServer(t *testing.T) *httptest.Server {
	t.Helper()

	mgr := sim.NewManager(sim.Config{
		StepDelay:     5 * time.Millisecond,
		TaskTTL:       time.Hour,
		SweepInterval: time.Hour,
	}, logger.Noop())
	srv := httptest.NewServer(api.NewServer(mgr, logger.Noop()))
	t.Cleanup(func() {
		srv.Close()
		mgr.Close()
	})
	return srv
}

type runResult struct {
	out    string
	errOut string
	err    error
}

// runCLI executes the command line with an empty environment so the host's
// RECONAUG_* variables cannot leak in.
func runCLI(t *testing.T, args ...string) runResult {
	t.Helper()

	var out, errOut bytes.Buffer
	a := &app{
		out:    &out,
		errOut: &errOut,
		env:    func(string) (string, bool) { return "", false },
	}
	root := a.rootCommand()
	root.SetArgs(append(args, "--log-level", "error"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := a.execute(ctx, root)
	return runResult{out: out.String(), errOut: errOut.String(), err: err}
}

func TestScanCommand(t *testing.T) {
	t.Parallel()

	srv := newSimServer(t)

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		wantOut []string
		noOut   []string
	}{
		{
			name:    "sse completes",
			args:    []string{"scan", "example.com", "--no-progress"},
			wantOut: []string{"[+] Scanning", "Results for example.com", "www.example.com", "Live Hosts:"},
		},
		{
			name:    "poll completes",
			args:    []string{"scan", "example.com", "--no-progress", "--transport", "poll"},
			wantOut: []string{"Results for example.com", "www.example.com"},
		},
		{
			name:    "progress bar",
			args:    []string{"scan", "example.com"},
			wantOut: []string{"Results for example.com"},
		},
		{
			name:    "task fails",
			args:    []string{"scan", sim.FailPrefix + "example.com", "--no-progress"},
			wantErr: true,
			wantOut: []string{"[-] Error: "},
			noOut:   []string{"Results for"},
		},
		{
			name:    "submission rejected",
			args:    []string{"scan", "not_a_domain", "--no-progress"},
			wantErr: true,
			wantOut: []string{"An error occurred while starting the scan"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := runCLI(t, append(tt.args, "--server", srv.URL)...)
			if tt.wantErr {
				require.Error(t, res.err)
				assert.ErrorIs(t, res.err, errReported)
				assert.NotContains(t, res.errOut, "[-]", "reported errors are printed once")
			} else {
				require.NoError(t, res.err, res.errOut)
			}
			for _, want := range tt.wantOut {
				assert.Contains(t, res.out, want)
			}
			for _, unwanted := range tt.noOut {
				assert.NotContains(t, res.out, unwanted)
			}
		})
	}
}

func TestLookupCommands(t *testing.T) {
	t.Parallel()

	srv := newSimServer(t)

	t.Run("urls with limit", func(t *testing.T) {
		t.Parallel()

		res := runCLI(t, "urls", "example.com", "-n", "2", "--server", srv.URL)
		require.NoError(t, res.err)
		assert.Contains(t, res.out, "historical URLs for example.com")
		assert.Equal(t, 2, strings.Count(res.out, "https://example.com/"))
		assert.Contains(t, res.out, "[!] Showing 2 of")
	})

	t.Run("ports for several hosts", func(t *testing.T) {
		t.Parallel()

		res := runCLI(t, "ports", "a.example.com", "b.example.com", "-c", "2", "--server", srv.URL)
		require.NoError(t, res.err)
		assert.Contains(t, res.out, "[+] a.example.com:")
		assert.Contains(t, res.out, "[+] b.example.com:")
		assert.Less(t, strings.Index(res.out, "a.example.com"), strings.Index(res.out, "b.example.com"),
			"hosts print in argument order")
	})

	t.Run("ports rejects zero concurrency", func(t *testing.T) {
		t.Parallel()

		res := runCLI(t, "ports", "a.example.com", "-c", "0", "--server", srv.URL)
		require.Error(t, res.err)
		assert.Contains(t, res.errOut, "concurrency must be at least 1")
	})

	t.Run("tools", func(t *testing.T) {
		t.Parallel()

		res := runCLI(t, "tools", "--server", srv.URL)
		require.NoError(t, res.err)
		assert.Contains(t, res.out, "subfinder")
		assert.Contains(t, res.out, "installed")
	})
}

func TestHistoryCommand(t *testing.T) {
	t.Parallel()

	srv := newSimServer(t)

	res := runCLI(t, "history", "--server", srv.URL)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "No scans recorded")

	res = runCLI(t, "scan", "example.com", "--no-progress", "--server", srv.URL)
	require.NoError(t, res.err, res.errOut)

	res = runCLI(t, "history", "--server", srv.URL)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "example.com")
	assert.Contains(t, res.out, "completed")

	res = runCLI(t, "history", "--clear", "--server", srv.URL)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Scan history cleared")

	res = runCLI(t, "history", "--server", srv.URL)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "No scans recorded")
}

func TestStaticConfigPollTransport(t *testing.T) {
	t.Parallel()

	srv := newSimServer(t)

	cfg := config.Default()
	cfg.Server.BaseURL = srv.URL
	cfg.Tracker.Transport = config.TransportPoll
	cfg.Tracker.PollInterval = 10 * time.Millisecond
	cfg.Server.ReadyWait = time.Second
	cfg.Log.Level = "error"

	var out, errOut bytes.Buffer
	a := &app{out: &out, errOut: &errOut, loader: config.StaticLoader{Config: cfg}}
	root := a.rootCommand()
	root.SetArgs([]string{"scan", "example.com", "--no-progress"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, a.execute(ctx, root), errOut.String())
	assert.Contains(t, out.String(), "Results for example.com")
}

func TestTeardownRunsWhenCommandFails(t *testing.T) {
	t.Parallel()

	srv := newSimServer(t)

	cfg := config.Default()
	cfg.Server.BaseURL = srv.URL
	cfg.Log.Level = "error"

	var out, errOut bytes.Buffer
	var closed []string
	a := &app{out: &out, errOut: &errOut, loader: config.StaticLoader{Config: cfg}}
	a.closers = append(a.closers, func(context.Context) { closed = append(closed, "first") })
	root := a.rootCommand()
	root.SetArgs([]string{"scan", sim.FailPrefix + "example.com", "--no-progress"})
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := a.setup(cmd, args); err != nil {
			return err
		}
		// Registered after telemetry, so it must run before it.
		a.closers = append(a.closers, func(context.Context) { closed = append(closed, "last") })
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.Error(t, a.execute(ctx, root))
	assert.Equal(t, []string{"last", "first"}, closed)
	assert.Empty(t, a.closers)
}

func TestConfigErrorsArePrinted(t *testing.T) {
	t.Parallel()

	res := runCLI(t, "tools", "--transport", "carrier-pigeon")
	require.Error(t, res.err)
	assert.NotErrorIs(t, res.err, errReported)
	assert.Contains(t, res.errOut, "[-] loading config")
}

func TestDescribeError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "plain failure", describeError(errors.New("plain failure")))
}
