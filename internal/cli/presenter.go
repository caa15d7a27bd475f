package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/ahrav/reconaug/internal/domain/scanning"
)

// terminalPresenter renders a scan as a progress bar followed by a summary.
// With lines set it prints one line per progress event instead of a bar.
type terminalPresenter struct {
	out   io.Writer
	lines bool

	bar *progressbar.ProgressBar

	green  *color.Color
	red    *color.Color
	cyan   *color.Color
	yellow *color.Color
	gray   *color.Color
}

func newTerminalPresenter(out io.Writer, lines bool) *terminalPresenter {
	return &terminalPresenter{
		out:    out,
		lines:  lines,
		green:  color.New(color.FgGreen),
		red:    color.New(color.FgRed),
		cyan:   color.New(color.FgCyan, color.Bold),
		yellow: color.New(color.FgYellow),
		gray:   color.New(color.FgHiBlack),
	}
}

func (p *terminalPresenter) ScanStarted(_ context.Context, task scanning.ProgressEvent) {
	p.cyan.Fprintf(p.out, "[+] Scanning %s\n", task.TaskID)
	p.gray.Fprintf(p.out, "    %s\n", task.Message)

	if p.lines {
		return
	}
	p.bar = progressbar.NewOptions(100,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]"+task.Message+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *terminalPresenter) Progress(_ context.Context, task scanning.ProgressEvent) {
	if p.bar == nil {
		fmt.Fprintf(p.out, "%3d%%  %s (subdomains: %d, live hosts: %d)\n",
			task.Progress, task.Message, task.SubdomainsCount, task.LiveHostsCount)
		return
	}

	p.bar.Describe(fmt.Sprintf("[cyan]%s[reset] subdomains:%d live:%d",
		task.Message, task.SubdomainsCount, task.LiveHostsCount))
	_ = p.bar.Set(task.Progress)
}

func (p *terminalPresenter) ScanCompleted(_ context.Context, res *scanning.ScanResult) {
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
	printResult(p.out, res)
}

func (p *terminalPresenter) ScanFailed(_ context.Context, err error) {
	if p.bar != nil {
		_ = p.bar.Exit()
		p.bar = nil
		fmt.Fprintln(p.out)
	}
	p.red.Fprint(p.out, "[-] ")
	fmt.Fprintln(p.out, scanning.UserMessage(err))
}

func printResult(out io.Writer, res *scanning.ScanResult) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan, color.Bold)

	cyan.Fprintf(out, "\n[+] Results for %s\n", res.Domain)
	fmt.Fprintln(out, strings.Repeat("─", 53))
	fmt.Fprintf(out, "  %-15s %d\n", "Subdomains", res.SubdomainsCount())
	fmt.Fprintf(out, "  %-15s %d\n", "Live hosts", res.LiveHostsCount())

	if len(res.LiveHosts) > 0 {
		fmt.Fprintln(out, "\nLive Hosts:")
		for _, h := range res.LiveHosts {
			status := green
			if h.StatusCode >= 400 {
				status = yellow
			}
			fmt.Fprintf(out, "  %-45s ", h.URL)
			status.Fprintf(out, "%3d", h.StatusCode)
			if h.Technology != "" {
				fmt.Fprintf(out, "  %s", h.Technology)
			}
			fmt.Fprintln(out)
		}
	}

	if len(res.Subdomains) > 0 {
		fmt.Fprintln(out, "\nSubdomains:")
		for _, s := range res.Subdomains {
			fmt.Fprintf(out, "  %s\n", s)
		}
	}
}
