package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/seenimoa/finanalyst/api"
	"github.com/seenimoa/finanalyst/internal/agent"
	"github.com/seenimoa/finanalyst/internal/agent/prompts"
	"github.com/seenimoa/finanalyst/internal/config"
	"github.com/seenimoa/finanalyst/internal/datasource"
	"github.com/seenimoa/finanalyst/internal/pipeline"
	"github.com/seenimoa/finanalyst/internal/report"
	"github.com/seenimoa/finanalyst/pkg/utils"
)

// --- Version Command ---

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.stdout, "%s %s (%s)\n", config.AppName, config.AppVersion, version)
			fmt.Fprintf(c.stdout, "  commit:  %s\n", commit)
			fmt.Fprintf(c.stdout, "  built:   %s\n", date)
		},
	}
}

// reportTypeFlag parses --report-type; the flag defaults to the investment
// report so an empty value is an error here.
func reportTypeFlag(cmd *cobra.Command) (prompts.ReportType, error) {
	s, _ := cmd.Flags().GetString("report-type")
	rt, err := prompts.ParseReportType(s)
	if err != nil {
		return "", failed("%v (see 'finanalyst report-types')", err)
	}
	return rt, nil
}

func addReportTypeFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("report-type", "r", string(prompts.DefaultReportType),
		"report type (investment_report, executive_summary, technical_report, risk_report)")
}

// --- Analyze Command ---

const analyzeExamples = `  finanalyst analyze AAPL
  finanalyst analyze MSFT -r executive_summary -f json -o msft.json
  finanalyst analyze NVDA --analysis technical_analysis --context 1y -r technical_report`

func (c *cli) analyzeCmd() *cobra.Command {
	var analysisKind, analysisContext string
	cmd := &cobra.Command{
		Use:     "analyze SYMBOL",
		Short:   "Run the two-stage AI analysis for one stock symbol",
		Example: analyzeExamples,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := args[0]
			if err := utils.ValidateSymbol(symbol); err != nil {
				return failed("%v", err)
			}
			rt, err := reportTypeFlag(cmd)
			if err != nil {
				return err
			}
			kind, err := prompts.ParseAnalysisKind(analysisKind)
			if err != nil {
				return failed("%v", err)
			}
			format, err := c.outputFormat()
			if err != nil {
				return err
			}
			if err := c.loadConfig(true); err != nil {
				return err
			}

			p, err := c.newPipeline(cmd.Context())
			if err != nil {
				return failed("Agent initialization failed: %v", err)
			}

			c.status("🤖 Starting AI analysis for %s...", symbol)
			if c.opts.verbose {
				c.status("📊 Initializing agents and fetching data...")
			}
			ctx, cancel := c.runContext(cmd.Context())
			defer cancel()
			res := p.Execute(ctx, pipeline.Request{
				Symbol:     symbol,
				ReportType: rt,
				Analysis:   kind,
				Context:    strings.TrimSpace(analysisContext),
			}, nil)

			if res.OK() {
				c.status("✅ Analysis completed in %.1f seconds", res.Duration.Seconds())
			} else {
				c.status("❌ %s", res.Error)
			}

			out, err := report.Analysis(res, format, c.now())
			if err != nil {
				return failed("render report: %v", err)
			}
			if err := c.emit(out); err != nil {
				return err
			}
			if !res.OK() {
				return alreadyReported
			}
			return nil
		},
	}
	addReportTypeFlag(cmd)
	cmd.Flags().StringVar(&analysisKind, "analysis", string(prompts.DefaultAnalysisKind),
		"stage-1 analysis (stock_analysis, sector_comparison, technical_analysis, risk_assessment)")
	cmd.Flags().StringVar(&analysisContext, "context", "",
		"peer list for sector_comparison or look-back period for technical_analysis")
	return cmd
}

// --- Batch Command ---

// timedRunner gives every symbol of a batch its own deadline.
type timedRunner struct {
	p       *pipeline.Pipeline
	timeout time.Duration
}

func (t timedRunner) Run(ctx context.Context, symbol string, rt prompts.ReportType) *pipeline.Result {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.p.Run(ctx, symbol, rt)
}

func (c *cli) batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch SYMBOL,SYMBOL,...",
		Short: "Analyze several symbols one after another",
		Long: `Analyze a comma separated list of symbols sequentially. Every symbol
produces one entry in input order; a failing symbol is reported as an
error entry and the batch continues.`,
		Example: "  finanalyst batch AAPL,GOOGL,MSFT -f json -o results.json",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbols := utils.ParseSymbolList(args[0])
			if len(symbols) == 0 {
				return failed("no symbols given; expected a comma separated list such as AAPL,MSFT")
			}
			rt, err := reportTypeFlag(cmd)
			if err != nil {
				return err
			}
			format, err := c.outputFormat()
			if err != nil {
				return err
			}
			if err := c.loadConfig(true); err != nil {
				return err
			}

			p, err := c.newPipeline(cmd.Context())
			if err != nil {
				return failed("Agent initialization failed: %v", err)
			}

			c.status("🚀 Starting batch analysis for %d stocks...", len(symbols))
			c.status("Symbols: %s", strings.Join(symbols, ", "))
			c.status("%s", strings.Repeat("-", 50))

			batch := pipeline.NewBatch(timedRunner{p: p, timeout: c.cfg.LLMTimeout()},
				pipeline.WithBatchLogger(c.logger),
				pipeline.WithBatchClock(c.now),
				pipeline.OnEntry(func(i int, e pipeline.BatchEntry) {
					if e.Status == pipeline.StatusSuccess {
						c.status("✅ %s analysis completed (%d/%d)", e.Symbol, i+1, len(symbols))
					} else {
						c.status("❌ %s analysis failed (%d/%d): %s", e.Symbol, i+1, len(symbols), e.Error)
					}
				}),
			)
			entries := batch.Run(cmd.Context(), symbols, rt)
			ok, _ := pipeline.Summary(entries)
			c.status("\n🎉 Batch analysis completed: %d/%d successful", ok, len(entries))

			out, err := report.Batch(entries, format)
			if err != nil {
				return failed("render batch: %v", err)
			}
			return c.emit(out)
		},
	}
	addReportTypeFlag(cmd)
	return cmd
}

// --- Info Command ---

func (c *cli) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info SYMBOL",
		Short: "Show quick stock information (no AI analysis)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := args[0]
			if err := utils.ValidateSymbol(symbol); err != nil {
				return failed("%v", err)
			}
			format, err := c.outputFormat()
			if err != nil {
				return err
			}
			if err := c.loadConfig(false); err != nil {
				return err
			}

			c.status("📊 Fetching information for %s...", symbol)
			rec, err := c.deps.Market(c.cfg, c.logger).Fetch(cmd.Context(), symbol)
			if err != nil {
				msg := datasource.AsFetchError(symbol, err).Error()
				if emitErr := c.emit(report.Error(msg, format)); emitErr != nil {
					return emitErr
				}
				return alreadyReported
			}
			out, err := report.QuickInfo(rec.QuickInfo(), format)
			if err != nil {
				return failed("render info: %v", err)
			}
			return c.emit(out)
		},
	}
}

// --- Test Command ---

func (c *cli) testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test system configuration and API connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.loadConfig(false); err != nil {
				return err
			}
			if c.selfTest(cmd.Context()) {
				return nil
			}
			return alreadyReported
		},
	}
}

// selfTest runs the four startup checks and reports each on stdout.
func (c *cli) selfTest(ctx context.Context) bool {
	w := c.stdout
	fmt.Fprintln(w, "🧪 Testing Multi-Agent Financial Analyst System...")
	fmt.Fprintln(w, strings.Repeat("-", 50))

	fmt.Fprintln(w, "1. Environment Configuration:")
	if err := c.cfg.Validate(); err != nil {
		fmt.Fprintf(w, "   ❌ Environment configuration failed: %v\n", err)
		return false
	}
	fmt.Fprintln(w, "   ✅ Environment configured correctly")

	fmt.Fprintln(w, "\n2. Market Data Source:")
	market := c.deps.Market(c.cfg, c.logger)
	rec, err := market.Fetch(ctx, "AAPL")
	if err != nil {
		fmt.Fprintf(w, "   ❌ Market data fetch failed: %v\n", err)
		return false
	}
	info := rec.QuickInfo()
	if rec.Company.Valid && rec.Price.Valid {
		fmt.Fprintln(w, "   ✅ Market data source working correctly")
	} else {
		fmt.Fprintln(w, "   ⚠️ Market data source returned incomplete data")
	}
	fmt.Fprintf(w, "   📊 Test data: %s - %s\n", info.Company, info.CurrentPrice)

	fmt.Fprintln(w, "\n3. AI Agent Initialization:")
	crew, err := c.crewConfig(ctx, market)
	if err != nil {
		fmt.Fprintf(w, "   ❌ Agent initialization failed: %v\n", err)
		return false
	}
	analyst := agent.NewAnalyst(crew, "AAPL")
	writer := agent.NewWriter(crew)
	fmt.Fprintf(w, "   ✅ Agents initialized successfully (%s: %d tools, %s)\n",
		analyst.Role(), len(analyst.ToolNames()), writer.Role())

	fmt.Fprintln(w, "\n4. API Connectivity:")
	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := crew.Provider.Ping(pingCtx); err != nil {
		fmt.Fprintf(w, "   ❌ API connectivity failed: %v\n", err)
		return false
	}
	fmt.Fprintf(w, "   ✅ API connectivity confirmed (%s, model %s)\n", crew.Provider.Name(), crew.Provider.Model())

	fmt.Fprintln(w, "\n🎉 All system tests passed successfully!")
	fmt.Fprintln(w, "The Multi-Agent Financial Analyst is ready to use.")
	return true
}

// --- Config Command ---

// configSummary is the displayed subset of the configuration.
type configSummary struct {
	AppName      string `json:"app_name" yaml:"app_name"`
	Version      string `json:"version" yaml:"version"`
	Environment  string `json:"environment" yaml:"environment"`
	Debug        bool   `json:"debug" yaml:"debug"`
	APIKeySet    bool   `json:"api_key_set" yaml:"api_key_set"`
	Provider     string `json:"provider" yaml:"provider"`
	Model        string `json:"model" yaml:"model"`
	CacheEnabled bool   `json:"cache_enabled" yaml:"cache_enabled"`
	CacheTTL     string `json:"cache_ttl" yaml:"cache_ttl"`
	LogLevel     string `json:"log_level" yaml:"log_level"`
	ConfigFile   string `json:"config_file,omitempty" yaml:"config_file,omitempty"`
}

func (c *cli) configCmd() *cobra.Command {
	var dump, write bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := c.outputFormat()
			if err != nil {
				return err
			}
			if err := c.loadConfig(false); err != nil {
				return err
			}

			if write {
				path := c.cfg.FilePath()
				if err := config.SaveToFile(c.cfg, path); err != nil {
					return failed("save config: %v", err)
				}
				c.status("💾 Configuration written to %s", path)
				return nil
			}
			if dump {
				data, err := yaml.Marshal(redacted(c.cfg))
				if err != nil {
					return failed("marshal config: %v", err)
				}
				fmt.Fprint(c.stdout, string(data))
				return nil
			}

			sum := configSummary{
				AppName:      config.AppName,
				Version:      config.AppVersion,
				Environment:  c.cfg.App.Environment,
				Debug:        c.cfg.App.Debug,
				APIKeySet:    strings.TrimSpace(c.cfg.LLM.APIKey) != "",
				Provider:     c.cfg.LLM.Provider,
				Model:        c.cfg.LLM.Model,
				CacheEnabled: c.cfg.Cache.Enabled,
				CacheTTL:     (time.Duration(c.cfg.Cache.TTL) * time.Second).String(),
				LogLevel:     strings.ToUpper(c.cfg.Logging.Level),
				ConfigFile:   c.cfg.Source(),
			}
			if format == report.FormatJSON {
				data, err := json.MarshalIndent(sum, "", "  ")
				if err != nil {
					return failed("marshal config: %v", err)
				}
				fmt.Fprintln(c.stdout, string(data))
				return nil
			}
			c.printConfig(sum)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dump, "yaml", false, "dump the full configuration as YAML (API key omitted)")
	cmd.Flags().BoolVar(&write, "write", false, "save the effective configuration to the config file")
	return cmd
}

func redacted(cfg *config.Config) *config.Config {
	out := *cfg
	out.LLM.APIKey = ""
	return &out
}

func (c *cli) printConfig(s configSummary) {
	w := c.stdout
	key := "❌ Missing"
	if s.APIKeySet {
		key = "✅ Set"
		for _, k := range config.CheckAPIKeys(c.cfg) {
			if k.IsSet {
				key = fmt.Sprintf("✅ Set (%s: %s)", k.Source, k.Masked)
			}
		}
	}
	fmt.Fprintln(w, "🔧 Current Configuration")
	fmt.Fprintln(w, strings.Repeat("=", 40))
	fmt.Fprintf(w, "App Name: %s\n", s.AppName)
	fmt.Fprintf(w, "Version: %s\n", s.Version)
	fmt.Fprintf(w, "Environment: %s\n", s.Environment)
	fmt.Fprintf(w, "Debug Mode: %t\n", s.Debug)
	fmt.Fprintf(w, "API Key: %s\n", key)
	fmt.Fprintf(w, "Provider: %s\n", s.Provider)
	fmt.Fprintf(w, "Model: %s\n", s.Model)
	fmt.Fprintf(w, "Cache Enabled: %t (ttl %s)\n", s.CacheEnabled, s.CacheTTL)
	fmt.Fprintf(w, "Log Level: %s\n", s.LogLevel)
	if s.ConfigFile != "" {
		fmt.Fprintf(w, "Config File: %s\n", s.ConfigFile)
	}
}

// --- Report Types Command ---

func (c *cli) reportTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report-types",
		Short: "List the available report types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := c.outputFormat()
			if err != nil {
				return err
			}
			if format == report.FormatJSON {
				out := make(map[string]prompts.Metadata)
				for _, rt := range prompts.ReportTypes() {
					out[string(rt)] = prompts.ReportMetadata("SYMBOL", rt)
				}
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return failed("marshal report types: %v", err)
				}
				fmt.Fprintln(c.stdout, string(data))
				return nil
			}
			for _, rt := range prompts.ReportTypes() {
				md := prompts.ReportMetadata("SYMBOL", rt)
				marker := " "
				if rt == prompts.DefaultReportType {
					marker = "*"
				}
				fmt.Fprintf(c.stdout, "%s %-18s %-15s %s\n", marker, rt, md.EstimatedLength, rt.Description())
			}
			return nil
		},
	}
}

// --- Serve Command (Dashboard) ---

func (c *cli) serveCmd() *cobra.Command {
	var (
		host string
		port int
		noUI bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.loadConfig(false); err != nil {
				return err
			}
			if host == "" {
				host = c.cfg.API.Host
			}
			if port == 0 {
				port = c.cfg.API.Port
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			market := c.deps.Market(c.cfg, c.logger)
			deps := api.Deps{
				Config:   c.cfg,
				Market:   market,
				News:     c.deps.News(c.cfg, c.logger),
				Gatherer: reg,
				Logger:   c.logger,
			}
			if err := c.cfg.Validate(); err != nil {
				c.logger.Warn().Err(err).Msg("analysis disabled; serving market data only")
			} else {
				crew, err := c.crewConfig(cmd.Context(), market)
				if err != nil {
					return failed("Agent initialization failed: %v", err)
				}
				deps.Analyzer = pipeline.New(crew,
					pipeline.WithLogger(c.logger),
					pipeline.WithMetrics(pipeline.NewMetrics(reg)),
				)
			}

			srv := api.NewServer(deps)
			srv.SetServeUI(!noUI)
			addr := net.JoinHostPort(host, strconv.Itoa(port))
			c.status("🌐 Dashboard running at http://%s", addr)
			if err := srv.ListenAndServe(cmd.Context(), addr); err != nil {
				return failed("server: %v", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	cmd.Flags().BoolVar(&noUI, "no-ui", false, "serve the API only")
	return cmd
}
