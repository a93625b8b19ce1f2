// Package api serves the dashboard: a JSON API over the metrics source and
// the analysis pipeline, a websocket feed of pipeline progress, Prometheus
// metrics and the embedded single-page UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/seenimoa/finanalyst/internal/agent/prompts"
	"github.com/seenimoa/finanalyst/internal/config"
	"github.com/seenimoa/finanalyst/internal/datasource"
	"github.com/seenimoa/finanalyst/internal/pipeline"
	"github.com/seenimoa/finanalyst/internal/report"
	"github.com/seenimoa/finanalyst/pkg/models"
	"github.com/seenimoa/finanalyst/pkg/utils"
	"github.com/seenimoa/finanalyst/web"
)

// MarketData is the read side of the metrics source used by the dashboard.
type MarketData interface {
	datasource.MetricsSource
	datasource.HistorySource
}

// NewsReader lists headlines for a symbol.
type NewsReader interface {
	Headlines(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error)
}

// Analyzer runs one symbol through the pipeline.
type Analyzer interface {
	Execute(ctx context.Context, req pipeline.Request, obs pipeline.Observer) *pipeline.Result
}

// Deps wires the server. Analyzer and News may be nil; the endpoints that
// need them then answer 503.
type Deps struct {
	Config   *config.Config
	Market   MarketData
	News     NewsReader
	Analyzer Analyzer
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	market   MarketData
	news     NewsReader
	analyzer Analyzer
	gatherer prometheus.Gatherer
	hub      *WSHub
	logger   zerolog.Logger
	serveUI  bool
	now      func() time.Time
}

// NewServer creates a server with all routes mounted.
func NewServer(d Deps) *Server {
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:      d.Config,
		market:   d.Market,
		news:     d.News,
		analyzer: d.Analyzer,
		gatherer: d.Gatherer,
		hub:      NewWSHub(d.Logger),
		logger:   d.Logger,
		serveUI:  true,
		now:      time.Now,
	}
	s.router = s.buildRouter()
	return s
}

// SetServeUI controls whether the embedded web UI is served.
func (s *Server) SetServeUI(enabled bool) {
	s.serveUI = enabled
	s.router = s.buildRouter()
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router { return s.router }

// Hub returns the websocket hub.
func (s *Server) Hub() *WSHub { return s.hub }

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.cfg.LLMTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("dashboard listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down dashboard")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/info/{symbol}", s.handleInfo)
			r.Get("/history/{symbol}", s.handleHistory)
			r.Get("/news/{symbol}", s.handleNews)
			r.Get("/report-types", s.handleReportTypes)
			r.Get("/symbols", s.handleSymbols)
			r.Get("/config", s.handleGetConfig)
			r.Get("/config/keys", s.handleGetConfigKeys)
		})

		r.Put("/config", s.handleUpdateConfig)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/batch", s.handleBatch)

		r.Get("/ws", s.handleWebSocket)
	})

	if s.serveUI {
		s.mountUI(r, web.StaticFS())
	}
	return r
}

// mountUI serves the embedded dashboard, falling back to index.html.
func (s *Server) mountUI(r chi.Router, static fs.FS) {
	fileServer := http.FileServerFS(static)
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(r.URL.Path, "/")
		if p == "" || p == "index.html" {
			serveIndexHTML(w, static)
			return
		}
		if f, err := static.Open(p); err == nil {
			f.Close()
			fileServer.ServeHTTP(w, r)
			return
		}
		serveIndexHTML(w, static)
	})
}

func serveIndexHTML(w http.ResponseWriter, static fs.FS) {
	data, err := fs.ReadFile(static, "index.html")
	if err != nil {
		http.Error(w, "web UI not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

// requestID tags every request with a UUID, reusing a valid incoming
// X-Request-ID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AnalyzeRequest is the body for POST /api/v1/analyze.
type AnalyzeRequest struct {
	Symbol     string `json:"symbol"`
	ReportType string `json:"report_type,omitempty"`
	// AnalysisKind picks the stage-1 template, stock_analysis by default.
	AnalysisKind    string `json:"analysis_kind,omitempty"`
	AnalysisContext string `json:"analysis_context,omitempty"`
}

// AnalyzeResponse carries the run and its rendered markdown.
type AnalyzeResponse struct {
	Result   *pipeline.Result `json:"result"`
	Markdown string           `json:"markdown,omitempty"`
	Metadata prompts.Metadata `json:"metadata"`
}

// BatchRequest is the body for POST /api/v1/batch. Symbols may be given as
// a list or as a comma separated string.
type BatchRequest struct {
	Symbols    json.RawMessage `json:"symbols"`
	ReportType string          `json:"report_type,omitempty"`
}

// InfoResponse is returned by GET /api/v1/info/{symbol}.
type InfoResponse struct {
	Quick   models.QuickInfo      `json:"quick"`
	Record  *models.MetricsRecord `json:"record"`
	Partial bool                  `json:"partial"`
	Missing []string              `json:"missing,omitempty"`
}

// ReportTypeInfo describes a report type for the dashboard picker.
type ReportTypeInfo struct {
	Name        prompts.ReportType `json:"name"`
	Description string             `json:"description"`
	Metadata    prompts.Metadata   `json:"metadata"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"status":        "ok",
			"app":           config.AppName,
			"version":       config.AppVersion,
			"market_status": utils.MarketStatus(),
			"time":          utils.FormatTimestamp(s.now()),
			"analysis":      s.analyzer != nil,
			"ws_clients":    s.hub.ClientCount(),
		},
	})
}

// symbolParam validates the {symbol} path parameter, writing a 400 when
// it is malformed.
func symbolParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	sym := chi.URLParam(r, "symbol")
	if err := utils.ValidateSymbol(sym); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return sym, true
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	sym, ok := symbolParam(w, r)
	if !ok {
		return
	}
	rec, err := s.market.Fetch(r.Context(), sym)
	if err != nil {
		writeFetchError(w, sym, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: InfoResponse{
			Quick:   rec.QuickInfo(),
			Record:  rec,
			Partial: rec.IsPartial(),
			Missing: rec.Missing(),
		},
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sym, ok := symbolParam(w, r)
	if !ok {
		return
	}
	rng := models.HistoryRange(r.URL.Query().Get("range"))
	if rng == "" {
		rng = models.Range6mo
	}
	if !rng.IsValid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid range %q", rng))
		return
	}
	bars, err := s.market.History(r.Context(), sym, rng)
	if err != nil {
		writeFetchError(w, sym, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: bars})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	sym, ok := symbolParam(w, r)
	if !ok {
		return
	}
	if s.news == nil {
		writeError(w, http.StatusServiceUnavailable, "news feed not configured")
		return
	}
	limit := s.cfg.Data.NewsLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 50 {
		limit = v
	}
	articles, err := s.news.Headlines(r.Context(), sym, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: articles})
}

func (s *Server) handleReportTypes(w http.ResponseWriter, r *http.Request) {
	var out []ReportTypeInfo
	for _, rt := range prompts.ReportTypes() {
		out = append(out, ReportTypeInfo{
			Name:        rt,
			Description: rt.Description(),
			Metadata:    prompts.ReportMetadata("{symbol}", rt),
		})
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: out})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: utils.ExampleSymbols})
}

func parseReportType(s string) (prompts.ReportType, error) {
	if s == "" {
		return prompts.DefaultReportType, nil
	}
	return prompts.ParseReportType(s)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateSymbol(req.Symbol); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rt, err := parseReportType(req.ReportType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := prompts.ParseAnalysisKind(req.AnalysisKind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis unavailable: SAMBANOVA_API_KEY is not configured")
		return
	}

	runner := observedRunner{a: s.analyzer, obs: s.broadcastEvent, timeout: s.cfg.LLMTimeout()}
	res := runner.execute(r.Context(), pipeline.Request{
		Symbol:     req.Symbol,
		ReportType: rt,
		Analysis:   kind,
		Context:    strings.TrimSpace(req.AnalysisContext),
	})

	s.hub.Broadcast(WSMessage{Type: MsgAnalysisComplete, Data: map[string]any{
		"run_id": res.RunID, "symbol": res.Symbol, "state": res.State,
	}})

	resp := AnalyzeResponse{Result: res, Metadata: prompts.ReportMetadata(req.Symbol, rt)}
	if !res.OK() {
		writeJSON(w, http.StatusOK, APIResponse{Success: false, Data: resp, Error: res.Error})
		return
	}
	resp.Markdown = report.FormatResponse(res.Report, s.now())
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

// parseSymbols accepts ["AAPL","MSFT"] or "AAPL,MSFT".
func parseSymbols(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for i := range list {
			list[i] = strings.TrimSpace(list[i])
		}
		return list, nil
	}
	var csv string
	if err := json.Unmarshal(raw, &csv); err != nil {
		return nil, errors.New("symbols must be a list or a comma separated string")
	}
	return utils.ParseSymbolList(csv), nil
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	symbols, err := parseSymbols(req.Symbols)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "at least one symbol is required")
		return
	}
	rt, err := parseReportType(req.ReportType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis unavailable: SAMBANOVA_API_KEY is not configured")
		return
	}

	runner := observedRunner{a: s.analyzer, obs: s.broadcastEvent, timeout: s.cfg.LLMTimeout()}
	batch := pipeline.NewBatch(runner, pipeline.WithBatchLogger(s.logger), pipeline.OnEntry(func(i int, e pipeline.BatchEntry) {
		s.hub.Broadcast(WSMessage{Type: MsgBatchEntry, Data: map[string]any{
			"index": i, "total": len(symbols), "symbol": e.Symbol, "status": e.Status,
		}})
	}))
	entries := batch.Run(r.Context(), symbols, rt)
	ok, failed := pipeline.Summary(entries)
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]any{
		"entries":   entries,
		"succeeded": ok,
		"failed":    failed,
	}})
}

// observedRunner adapts an Analyzer to pipeline.Runner, applying the
// per-run deadline and forwarding events.
type observedRunner struct {
	a       Analyzer
	obs     pipeline.Observer
	timeout time.Duration
}

func (o observedRunner) Run(ctx context.Context, symbol string, rt prompts.ReportType) *pipeline.Result {
	return o.execute(ctx, pipeline.Request{Symbol: symbol, ReportType: rt})
}

func (o observedRunner) execute(ctx context.Context, req pipeline.Request) *pipeline.Result {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	return o.a.Execute(ctx, req, o.obs)
}

func (s *Server) broadcastEvent(ev pipeline.Event) {
	s.hub.Broadcast(WSMessage{Type: MsgProgress, Data: ev})
}

// ============================================================
// Helpers
// ============================================================

func writeFetchError(w http.ResponseWriter, symbol string, err error) {
	fe := datasource.AsFetchError(symbol, err)
	status := http.StatusBadGateway
	if fe.Kind == datasource.KindNotFound {
		status = http.StatusNotFound
	}
	writeError(w, status, fe.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{Success: false, Error: msg})
}
