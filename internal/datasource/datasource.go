// Package datasource fetches market data for the analysis pipeline: a
// metrics snapshot per symbol from Yahoo Finance, daily price history for
// the dashboard chart and recent headlines from the Yahoo RSS feed.
package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/seenimoa/finanalyst/internal/errors"
	"github.com/seenimoa/finanalyst/internal/infra"
	"github.com/seenimoa/finanalyst/pkg/models"
)

// MetricsSource returns a metrics snapshot for one symbol. Implementations
// never panic; every failure is a *FetchError.
type MetricsSource interface {
	Fetch(ctx context.Context, symbol string) (*models.MetricsRecord, error)
}

// HistorySource returns daily bars for the dashboard chart.
type HistorySource interface {
	History(ctx context.Context, symbol string, r models.HistoryRange) ([]models.OHLCV, error)
}

// FailureKind classifies a FetchError.
type FailureKind string

const (
	// KindNotFound means the upstream does not know the symbol.
	KindNotFound FailureKind = "not_found"
	// KindUnavailable means the upstream could not be reached or answered badly.
	KindUnavailable FailureKind = "unavailable"
	// KindPartial means a response arrived but lacked the core quote.
	KindPartial FailureKind = "partial"
)

// FetchError is the failure value of MetricsSource.Fetch.
type FetchError struct {
	Symbol string
	Kind   FailureKind
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("no market data found for %s", e.Symbol)
	case KindPartial:
		return fmt.Sprintf("incomplete market data for %s: %s", e.Symbol, e.Reason)
	default:
		return fmt.Sprintf("market data unavailable for %s: %s", e.Symbol, e.Reason)
	}
}

func (e *FetchError) Unwrap() []error {
	kind := apperrors.ErrUpstreamUnavailable
	if e.Kind == KindNotFound {
		kind = apperrors.ErrSymbolNotFound
	}
	if e.Err != nil {
		return []error{kind, e.Err}
	}
	return []error{kind}
}

// AsFetchError converts any error into a *FetchError for symbol.
func AsFetchError(symbol string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	var httpErr *infra.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return &FetchError{Symbol: symbol, Kind: KindNotFound, Reason: "symbol not found", Err: err}
	}
	return &FetchError{Symbol: symbol, Kind: KindUnavailable, Reason: err.Error(), Err: err}
}

// IsNotFound reports whether err is a not-found fetch failure.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrSymbolNotFound)
}

// defaultClient is shared by sources built without WithHTTPClient.
var defaultClient = &http.Client{Timeout: 30 * time.Second}

// fetchJSON GETs url and decodes the JSON body into dest.
func fetchJSON(ctx context.Context, client *http.Client, url string, dest any) error {
	body, err := infra.Get(ctx, client, url, map[string]string{"Accept": "application/json"})
	if err != nil {
		return err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
