package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/seenimoa/finanalyst/internal/config"
	"github.com/seenimoa/finanalyst/internal/infra"
	"github.com/seenimoa/finanalyst/pkg/models"
)

// SourceName identifies records produced by YFinance.
const SourceName = "Yahoo Finance"

const summaryModules = "assetProfile,financialData,summaryDetail"

// Endpoints are the Yahoo Finance base URLs. Tests point them at httptest
// servers.
type Endpoints struct {
	Quote   string // v7 quote, takes ?symbols=
	Summary string // v10 quoteSummary, takes /{symbol}?modules=
	Chart   string // v8 chart, takes /{symbol}?range=&interval=
	Profile string // HTML quote page, takes /{symbol}/profile
}

// DefaultEndpoints are the public Yahoo Finance endpoints.
var DefaultEndpoints = Endpoints{
	Quote:   "https://query1.finance.yahoo.com/v7/finance/quote",
	Summary: "https://query2.finance.yahoo.com/v10/finance/quoteSummary",
	Chart:   "https://query1.finance.yahoo.com/v8/finance/chart",
	Profile: "https://finance.yahoo.com/quote",
}

// YFinance implements MetricsSource and HistorySource on Yahoo Finance.
// Fetches are cached per symbol for the configured TTL; nothing is retried.
type YFinance struct {
	client    *http.Client
	endpoints Endpoints
	cache     *infra.Cache[*models.MetricsRecord]
	history   *infra.Cache[[]models.OHLCV]
	limiter   *rate.Limiter
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures YFinance.
type Option func(*YFinance)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(y *YFinance) { y.client = c }
}

// WithEndpoints overrides the Yahoo base URLs. Empty fields keep defaults.
func WithEndpoints(e Endpoints) Option {
	return func(y *YFinance) {
		if e.Quote != "" {
			y.endpoints.Quote = e.Quote
		}
		if e.Summary != "" {
			y.endpoints.Summary = e.Summary
		}
		if e.Chart != "" {
			y.endpoints.Chart = e.Chart
		}
		if e.Profile != "" {
			y.endpoints.Profile = e.Profile
		}
	}
}

// WithCacheTTL sets the cache lifetime. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(y *YFinance) {
		y.cache = infra.NewCache[*models.MetricsRecord](ttl)
		y.history = infra.NewCache[[]models.OHLCV](ttl)
	}
}

// WithRateLimit paces outbound requests. Zero disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(y *YFinance) { y.limiter = infra.NewLimiter(perSecond) }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(y *YFinance) { y.logger = l }
}

// NewYFinance creates a Yahoo Finance source with a five minute cache and
// two requests per second.
func NewYFinance(opts ...Option) *YFinance {
	y := &YFinance{
		client:    defaultClient,
		endpoints: DefaultEndpoints,
		cache:     infra.NewCache[*models.MetricsRecord](5 * time.Minute),
		history:   infra.NewCache[[]models.OHLCV](5 * time.Minute),
		limiter:   infra.NewLimiter(2),
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// NewYFinanceFromConfig builds a source from the data and cache sections.
func NewYFinanceFromConfig(cfg *config.Config, logger zerolog.Logger) *YFinance {
	return NewYFinance(
		WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Data.TimeoutSec) * time.Second}),
		WithEndpoints(Endpoints{
			Quote:   cfg.Data.QuoteURL,
			Summary: cfg.Data.SummaryURL,
			Chart:   cfg.Data.ChartURL,
			Profile: cfg.Data.ProfileURL,
		}),
		WithCacheTTL(cfg.CacheTTL()),
		WithRateLimit(cfg.Data.RequestsPerSecond),
		WithLogger(logger),
	)
}

// Name returns the data source name.
func (y *YFinance) Name() string { return SourceName }

// Fetch returns the metrics snapshot for symbol. It never panics: a panic
// during fetching or parsing is reported as an unavailable FetchError.
func (y *YFinance) Fetch(ctx context.Context, symbol string) (rec *models.MetricsRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			y.logger.Error().Str("symbol", symbol).Interface("panic", r).Msg("metrics fetch panicked")
			rec, err = nil, &FetchError{Symbol: symbol, Kind: KindUnavailable, Reason: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	if strings.TrimSpace(symbol) == "" {
		return nil, &FetchError{Symbol: symbol, Kind: KindNotFound, Reason: "empty symbol"}
	}

	rec, err = y.cache.GetOrLoad(ctx, symbol, func(ctx context.Context) (*models.MetricsRecord, error) {
		return y.load(ctx, symbol)
	})
	if err != nil {
		return nil, AsFetchError(symbol, err)
	}
	return rec, nil
}

// load performs the uncached fetch: quote and quoteSummary in parallel,
// then the profile page when sector or industry is still missing.
func (y *YFinance) load(ctx context.Context, symbol string) (*models.MetricsRecord, error) {
	start := y.now()
	var (
		quote      *yfQuote
		summary    *yfSummary
		summaryErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(guard(symbol, func() error {
		q, err := y.fetchQuote(gctx, symbol)
		quote = q
		return err
	}))
	g.Go(guard(symbol, func() error {
		summary, summaryErr = y.fetchSummary(gctx, symbol)
		return nil
	}))
	if err := g.Wait(); err != nil {
		return nil, AsFetchError(symbol, err)
	}
	if summaryErr != nil {
		y.logger.Debug().Err(summaryErr).Str("symbol", symbol).Msg("quoteSummary unavailable, record will be partial")
	}

	rec := buildRecord(symbol, quote, summary)
	rec.FetchedAt = y.now()
	rec.Source = SourceName

	if !rec.Sector.Valid || !rec.Industry.Valid {
		sector, industry, err := y.scrapeProfile(ctx, symbol)
		if err != nil {
			y.logger.Debug().Err(err).Str("symbol", symbol).Msg("profile scrape failed")
		}
		rec.Sector = rec.Sector.Or(models.NonEmpty(sector))
		rec.Industry = rec.Industry.Or(models.NonEmpty(industry))
	}

	y.logger.Debug().
		Str("symbol", symbol).
		Strs("missing", rec.Missing()).
		Dur("latency", y.now().Sub(start)).
		Msg("metrics fetched")
	return rec, nil
}

func (y *YFinance) fetchQuote(ctx context.Context, symbol string) (*yfQuote, error) {
	if err := infra.Wait(ctx, y.limiter); err != nil {
		return nil, err
	}
	u := y.endpoints.Quote + "?symbols=" + url.QueryEscape(symbol)
	var resp yfQuoteResponse
	if err := fetchJSON(ctx, y.client, u, &resp); err != nil {
		return nil, fmt.Errorf("yfinance quote %s: %w", symbol, err)
	}
	if e := resp.QuoteResponse.Error; e != nil {
		return nil, &FetchError{Symbol: symbol, Kind: KindUnavailable, Reason: e.Description}
	}
	for i := range resp.QuoteResponse.Result {
		q := &resp.QuoteResponse.Result[i]
		if strings.EqualFold(q.Symbol, symbol) {
			if q.RegularMarketPrice == nil {
				return nil, &FetchError{Symbol: symbol, Kind: KindPartial, Reason: "quote has no current price"}
			}
			return q, nil
		}
	}
	return nil, &FetchError{Symbol: symbol, Kind: KindNotFound, Reason: "empty quote result"}
}

func (y *YFinance) fetchSummary(ctx context.Context, symbol string) (*yfSummary, error) {
	if err := infra.Wait(ctx, y.limiter); err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/%s?modules=%s", y.endpoints.Summary, url.PathEscape(symbol), summaryModules)
	var resp yfSummaryResponse
	if err := fetchJSON(ctx, y.client, u, &resp); err != nil {
		return nil, fmt.Errorf("yfinance quoteSummary %s: %w", symbol, err)
	}
	if e := resp.QuoteSummary.Error; e != nil {
		return nil, fmt.Errorf("yfinance quoteSummary %s: %s", symbol, e.Description)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("yfinance quoteSummary %s: empty result", symbol)
	}
	return &resp.QuoteSummary.Result[0], nil
}

// History returns daily bars for the given range.
func (y *YFinance) History(ctx context.Context, symbol string, r models.HistoryRange) ([]models.OHLCV, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("unsupported history range %q", r)
	}
	key := symbol + ":" + string(r)
	return y.history.GetOrLoad(ctx, key, func(ctx context.Context) ([]models.OHLCV, error) {
		if err := infra.Wait(ctx, y.limiter); err != nil {
			return nil, err
		}
		u := fmt.Sprintf("%s/%s?range=%s&interval=1d", y.endpoints.Chart, url.PathEscape(symbol), r)
		var resp yfChartResponse
		if err := fetchJSON(ctx, y.client, u, &resp); err != nil {
			return nil, AsFetchError(symbol, err)
		}
		if e := resp.Chart.Error; e != nil {
			if strings.EqualFold(e.Code, "Not Found") {
				return nil, &FetchError{Symbol: symbol, Kind: KindNotFound, Reason: e.Description}
			}
			return nil, &FetchError{Symbol: symbol, Kind: KindUnavailable, Reason: e.Description}
		}
		if len(resp.Chart.Result) == 0 {
			return nil, &FetchError{Symbol: symbol, Kind: KindNotFound, Reason: "empty chart result"}
		}
		return parseCandles(resp.Chart.Result[0]), nil
	})
}

// guard turns a panic inside an errgroup goroutine into a FetchError.
func guard(symbol string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &FetchError{Symbol: symbol, Kind: KindUnavailable, Reason: fmt.Sprintf("internal error: %v", r)}
			}
		}()
		return fn()
	}
}

// --- Yahoo response types ---

type yfError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type yfQuoteResponse struct {
	QuoteResponse struct {
		Result []yfQuote `json:"result"`
		Error  *yfError  `json:"error"`
	} `json:"quoteResponse"`
}

// yfQuote uses pointers so absent fields stay absent.
type yfQuote struct {
	Symbol                     string   `json:"symbol"`
	ShortName                  string   `json:"shortName"`
	LongName                   string   `json:"longName"`
	Currency                   string   `json:"currency"`
	FullExchangeName           string   `json:"fullExchangeName"`
	RegularMarketPrice         *float64 `json:"regularMarketPrice"`
	RegularMarketChange        *float64 `json:"regularMarketChange"`
	RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
	RegularMarketDayHigh       *float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow        *float64 `json:"regularMarketDayLow"`
	RegularMarketPreviousClose *float64 `json:"regularMarketPreviousClose"`
	RegularMarketVolume        *int64   `json:"regularMarketVolume"`
	RegularMarketTime          *int64   `json:"regularMarketTime"`
	AverageDailyVolume3Month   *int64   `json:"averageDailyVolume3Month"`
	MarketCap                  *float64 `json:"marketCap"`
	FiftyTwoWeekHigh           *float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow            *float64 `json:"fiftyTwoWeekLow"`
	TrailingPE                 *float64 `json:"trailingPE"`
	ForwardPE                  *float64 `json:"forwardPE"`
	PriceToBook                *float64 `json:"priceToBook"`
	BookValue                  *float64 `json:"bookValue"`
	EpsTrailingTwelveMonths    *float64 `json:"epsTrailingTwelveMonths"`
	DividendYield              *float64 `json:"dividendYield"` // percent
}

type yfSummaryResponse struct {
	QuoteSummary struct {
		Result []yfSummary `json:"result"`
		Error  *yfError    `json:"error"`
	} `json:"quoteSummary"`
}

type yfSummary struct {
	AssetProfile *struct {
		Sector   string `json:"sector"`
		Industry string `json:"industry"`
	} `json:"assetProfile"`
	FinancialData *struct {
		RecommendationKey       string  `json:"recommendationKey"`
		RecommendationMean      yfValue `json:"recommendationMean"`
		NumberOfAnalystOpinions yfValue `json:"numberOfAnalystOpinions"`
		TargetMeanPrice         yfValue `json:"targetMeanPrice"`
	} `json:"financialData"`
	SummaryDetail *struct {
		Beta          yfValue `json:"beta"`
		DividendYield yfValue `json:"dividendYield"` // ratio
		AverageVolume yfValue `json:"averageVolume"`
		ForwardPE     yfValue `json:"forwardPE"`
		TrailingPE    yfValue `json:"trailingPE"`
		MarketCap     yfValue `json:"marketCap"`
	} `json:"summaryDetail"`
}

// yfValue is Yahoo's {"raw": 1.23, "fmt": "1.23"} wrapper; it may be {}.
type yfValue struct {
	Raw *float64 `json:"raw"`
}

func (v yfValue) opt() models.Optional[float64] { return models.FromPtr(v.Raw) }

func (v yfValue) optInt() models.Optional[int64] {
	if v.Raw == nil {
		return models.None[int64]()
	}
	return models.Some(int64(*v.Raw))
}

type yfChartResponse struct {
	Chart struct {
		Result []yfChartResult `json:"result"`
		Error  *yfError        `json:"error"`
	} `json:"chart"`
}

type yfChartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// --- Helpers ---

func buildRecord(symbol string, q *yfQuote, s *yfSummary) *models.MetricsRecord {
	rec := &models.MetricsRecord{
		Symbol:           symbol,
		Company:          models.NonEmpty(coalesce(q.LongName, q.ShortName)),
		Currency:         models.NonEmpty(q.Currency),
		Exchange:         models.NonEmpty(q.FullExchangeName),
		Price:            models.FromPtr(q.RegularMarketPrice),
		PreviousClose:    models.FromPtr(q.RegularMarketPreviousClose),
		Change:           models.FromPtr(q.RegularMarketChange),
		ChangePercent:    models.FromPtr(q.RegularMarketChangePercent),
		DayHigh:          models.FromPtr(q.RegularMarketDayHigh),
		DayLow:           models.FromPtr(q.RegularMarketDayLow),
		MarketCap:        models.FromPtr(q.MarketCap),
		ForwardPE:        models.FromPtr(q.ForwardPE),
		TrailingPE:       models.FromPtr(q.TrailingPE),
		FiftyTwoWeekHigh: models.FromPtr(q.FiftyTwoWeekHigh),
		FiftyTwoWeekLow:  models.FromPtr(q.FiftyTwoWeekLow),
		Volume:           models.FromPtr(q.RegularMarketVolume),
		AverageVolume:    models.FromPtr(q.AverageDailyVolume3Month),
		EPS:              models.FromPtr(q.EpsTrailingTwelveMonths),
		BookValue:        models.FromPtr(q.BookValue),
		PriceToBook:      models.FromPtr(q.PriceToBook),
		DividendYield:    models.FromPtr(q.DividendYield),
	}
	if q.RegularMarketTime != nil && *q.RegularMarketTime > 0 {
		rec.LatestDate = models.Some(time.Unix(*q.RegularMarketTime, 0).UTC())
	}
	if s == nil {
		return rec
	}

	if p := s.AssetProfile; p != nil {
		rec.Sector = models.NonEmpty(p.Sector)
		rec.Industry = models.NonEmpty(p.Industry)
	}
	if f := s.FinancialData; f != nil {
		if key := strings.TrimSpace(f.RecommendationKey); key != "" && key != "none" {
			rec.Rating = models.Some(key)
		}
		rec.RatingMean = f.RecommendationMean.opt()
		rec.AnalystCount = f.NumberOfAnalystOpinions.optInt()
		rec.TargetPrice = f.TargetMeanPrice.opt()
	}
	if d := s.SummaryDetail; d != nil {
		rec.Beta = d.Beta.opt()
		rec.MarketCap = rec.MarketCap.Or(d.MarketCap.opt())
		rec.ForwardPE = rec.ForwardPE.Or(d.ForwardPE.opt())
		rec.TrailingPE = rec.TrailingPE.Or(d.TrailingPE.opt())
		rec.AverageVolume = rec.AverageVolume.Or(d.AverageVolume.optInt())
		if y, ok := d.DividendYield.opt().Get(); ok && !rec.DividendYield.Valid {
			rec.DividendYield = models.Some(y * 100)
		}
	}
	return rec
}

func parseCandles(result yfChartResult) []models.OHLCV {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	q := result.Indicators.Quote[0]
	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	at := func(s []*float64, i int) (float64, bool) {
		if i < len(s) && s[i] != nil {
			return *s[i], true
		}
		return 0, false
	}

	candles := make([]models.OHLCV, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		closePx, ok := at(q.Close, i)
		if !ok {
			// Yahoo emits null rows for halted sessions.
			continue
		}
		c := models.OHLCV{Timestamp: time.Unix(ts, 0).UTC(), Close: closePx}
		c.Open, _ = at(q.Open, i)
		c.High, _ = at(q.High, i)
		c.Low, _ = at(q.Low, i)
		c.AdjClose, _ = at(adj, i)
		if i < len(q.Volume) && q.Volume[i] != nil {
			c.Volume = *q.Volume[i]
		}
		candles = append(candles, c)
	}
	return candles
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
