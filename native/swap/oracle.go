package swap

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// PriceSample is one timestamped exchange-rate reading: Price is expressed in
// quote-asset base units per whole base unit, scaled by PriceScale. Samples
// are ephemeral; the engine validates positivity and staleness at the instant
// of use and never persists them.
type PriceSample struct {
	Price     *big.Int
	Timestamp int64
}

// Clone returns a deep copy of the sample.
func (s PriceSample) Clone() PriceSample {
	clone := PriceSample{Timestamp: s.Timestamp}
	if s.Price != nil {
		clone.Price = new(big.Int).Set(s.Price)
	}
	return clone
}

// Validate checks the sample against the arithmetic precondition and the
// maximum age bound relative to the supplied clock reading. A maxAge of zero
// disables the staleness check. Samples timestamped ahead of the clock are
// rejected outright: a source that pre-dates its samples could otherwise keep
// them fresh indefinitely.
func (s PriceSample) Validate(now int64, maxAge time.Duration) error {
	if s.Price == nil || s.Price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if s.Timestamp > now {
		return ErrInvalidPrice
	}
	if maxAge > 0 && now-s.Timestamp > int64(maxAge/time.Second) {
		return ErrStalePrice
	}
	return nil
}

// PriceOracle resolves a scaled price sample for the provided base/quote pair.
type PriceOracle interface {
	ReadPrice(base, quote string) (PriceSample, error)
}

// ManualOracle provides an in-memory oracle implementation used for tests and
// manual overrides during incident response.
type ManualOracle struct {
	mu      sync.RWMutex
	samples map[string]PriceSample
}

// NewManualOracle constructs an empty manual oracle instance.
func NewManualOracle() *ManualOracle {
	return &ManualOracle{samples: make(map[string]PriceSample)}
}

func manualKey(base, quote string) string {
	return strings.ToUpper(strings.TrimSpace(base)) + "_" + strings.ToUpper(strings.TrimSpace(quote))
}

// Set stores the provided scaled price for the currency pair.
func (m *ManualOracle) Set(base, quote string, price *big.Int, ts int64) {
	if m == nil || price == nil {
		return
	}
	m.mu.Lock()
	m.samples[manualKey(base, quote)] = PriceSample{Price: new(big.Int).Set(price), Timestamp: ts}
	m.mu.Unlock()
}

// ReadPrice retrieves the stored sample for the currency pair.
func (m *ManualOracle) ReadPrice(base, quote string) (PriceSample, error) {
	if m == nil {
		return PriceSample{}, fmt.Errorf("manual oracle not configured")
	}
	m.mu.RLock()
	stored, ok := m.samples[manualKey(base, quote)]
	m.mu.RUnlock()
	if !ok {
		return PriceSample{}, fmt.Errorf("manual oracle: sample for %s/%s not found", base, quote)
	}
	return stored.Clone(), nil
}

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPOracle fetches scaled price samples from a JSON endpoint responding
// with {"price": "<integer>", "timestamp": <unix seconds>}.
type HTTPOracle struct {
	client   HTTPDoer
	endpoint string
}

// NewHTTPOracle constructs an HTTP oracle adapter. When the client is nil
// http.DefaultClient is used.
func NewHTTPOracle(client HTTPDoer, endpoint string) *HTTPOracle {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPOracle{client: client, endpoint: strings.TrimSpace(endpoint)}
}

// ReadPrice implements the PriceOracle interface.
func (o *HTTPOracle) ReadPrice(base, quote string) (PriceSample, error) {
	if o == nil || o.endpoint == "" {
		return PriceSample{}, fmt.Errorf("http oracle not configured")
	}
	req, err := http.NewRequest(http.MethodGet, o.endpoint, nil)
	if err != nil {
		return PriceSample{}, err
	}
	values := url.Values{}
	values.Set("base", strings.ToUpper(strings.TrimSpace(base)))
	values.Set("quote", strings.ToUpper(strings.TrimSpace(quote)))
	req.URL.RawQuery = values.Encode()
	resp, err := o.client.Do(req)
	if err != nil {
		return PriceSample{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PriceSample{}, fmt.Errorf("http oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Price     string `json:"price"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PriceSample{}, fmt.Errorf("http oracle: decode: %w", err)
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(payload.Price), 10)
	if !ok || price.Sign() <= 0 {
		return PriceSample{}, fmt.Errorf("http oracle: invalid price %q", payload.Price)
	}
	ts := payload.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	return PriceSample{Price: price, Timestamp: ts}, nil
}
