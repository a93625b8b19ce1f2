// finanalyst: two-stage LLM stock analysis from the command line.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/seenimoa/finanalyst/internal/config"
	"github.com/seenimoa/finanalyst/internal/logging"
	"github.com/seenimoa/finanalyst/internal/report"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return newCLI(stdout, stderr).execute(ctx, args)
}

func (c *cli) execute(ctx context.Context, args []string) int {
	stderr := c.stderr
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(c.stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if ctx.Err() != nil {
		fmt.Fprintln(stderr, "\n⏹️ Analysis interrupted by user")
		return 1
	}
	var ex *exitError
	if !errors.As(err, &ex) || ex.msg != "" {
		fmt.Fprintf(stderr, "❌ %v\n", err)
	}
	return 1
}

// exitError ends the process with status 1. An empty msg means the
// failure was already reported.
type exitError struct{ msg string }

func (e *exitError) Error() string { return e.msg }

func failed(format string, args ...any) error {
	return &exitError{msg: fmt.Sprintf(format, args...)}
}

// alreadyReported signals failure without printing anything more.
var alreadyReported = &exitError{}

// globalOptions are the persistent flags.
type globalOptions struct {
	output     string
	format     string
	verbose    bool
	quiet      bool
	configFile string
}

// cli holds per-invocation state. The constructor hooks are swapped out in
// tests.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	opts   globalOptions

	cfg    *config.Config
	logger zerolog.Logger
	now    func() time.Time
	deps   depsFactory
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{
		stdout: stdout,
		stderr: stderr,
		logger: zerolog.Nop(),
		now:    time.Now,
		deps:   liveDeps{},
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "finanalyst",
		Short: config.AppName,
		Long: `Multi-Agent Financial Analyst
A financial analyst agent gathers live market data for a stock symbol and
writes an analysis; a report writer agent turns that analysis into a
formatted investment report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.opts.output, "output", "o", "", "write results to FILE instead of stdout")
	pf.StringVarP(&c.opts.format, "format", "f", string(report.FormatMarkdown), "output format (markdown, json, text)")
	pf.BoolVarP(&c.opts.verbose, "verbose", "v", false, "show agent progress and debug logs")
	pf.BoolVarP(&c.opts.quiet, "quiet", "q", false, "suppress progress messages")
	pf.StringVar(&c.opts.configFile, "config", "", "config file path (default: ./config/config.yaml)")

	root.AddCommand(
		c.versionCmd(),
		c.analyzeCmd(),
		c.batchCmd(),
		c.infoCmd(),
		c.testCmd(),
		c.configCmd(),
		c.reportTypesCmd(),
		c.serveCmd(),
	)
	return root
}

// outputFormat parses --format.
func (c *cli) outputFormat() (report.Format, error) {
	f, err := report.ParseFormat(c.opts.format)
	if err != nil {
		return "", failed("%v (choose from markdown, json, text)", err)
	}
	return f, nil
}

// loadConfig reads configuration and builds the logger. When requireKey is
// set a missing API key fails the command.
func (c *cli) loadConfig(requireKey bool) error {
	var (
		cfg *config.Config
		err error
	)
	if c.opts.configFile != "" {
		cfg, err = config.LoadFromFile(c.opts.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return failed("failed to load config: %v", err)
	}
	c.cfg = cfg
	c.logger = logging.New(c.loggingConfig())

	if requireKey {
		if err := cfg.Validate(); err != nil {
			return failed("Configuration validation failed: %v", err)
		}
	}
	return nil
}

func (c *cli) loggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Out = c.stderr
	lc.Level = c.cfg.Logging.Level
	lc.File = c.cfg.Logging.File
	if c.cfg.Logging.FilePath != "" {
		lc.FilePath = c.cfg.Logging.FilePath
	}
	lc.MaxSize = c.cfg.Logging.MaxSizeMB
	lc.MaxBackups = c.cfg.Logging.MaxBackups
	lc.MaxAge = c.cfg.Logging.MaxAgeDays
	switch {
	case c.opts.quiet:
		lc.Level = "error"
	case c.opts.verbose:
		lc.Level = "debug"
	case c.cfg.App.Debug:
		lc.Level = "debug"
	}
	return lc
}

// status prints a progress line to stderr unless --quiet is set.
func (c *cli) status(format string, args ...any) {
	if c.opts.quiet {
		return
	}
	fmt.Fprintf(c.stderr, format+"\n", args...)
}

// emit writes the command result to --output or stdout.
func (c *cli) emit(content string) error {
	if c.opts.output == "" {
		if !c.opts.quiet {
			fmt.Fprintln(c.stdout, "\n"+strings.Repeat("=", 60))
		}
		fmt.Fprintln(c.stdout, content)
		return nil
	}
	if err := os.WriteFile(c.opts.output, []byte(content), 0o644); err != nil {
		return failed("Failed to save output: %v", err)
	}
	c.status("💾 Output saved to: %s", c.opts.output)
	return nil
}
