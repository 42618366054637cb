package swap

import (
	"errors"
	"io"
	"math/big"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPriceSampleValidate(t *testing.T) {
	now := int64(1_700_000_000)
	fresh := PriceSample{Price: big.NewInt(1), Timestamp: now - 30}
	require.NoError(t, fresh.Validate(now, time.Minute))

	stale := PriceSample{Price: big.NewInt(1), Timestamp: now - 61}
	require.ErrorIs(t, stale.Validate(now, time.Minute), ErrStalePrice)

	// A zero max age disables the staleness check entirely.
	require.NoError(t, stale.Validate(now, 0))

	bad := PriceSample{Price: big.NewInt(0), Timestamp: now}
	require.ErrorIs(t, bad.Validate(now, time.Minute), ErrInvalidPrice)
	require.ErrorIs(t, PriceSample{Timestamp: now}.Validate(now, time.Minute), ErrInvalidPrice)

	// Pre-dated samples would stay fresh forever; reject them outright.
	future := PriceSample{Price: big.NewInt(1), Timestamp: now + 5}
	require.ErrorIs(t, future.Validate(now, time.Minute), ErrInvalidPrice)
	require.ErrorIs(t, future.Validate(now, 0), ErrInvalidPrice)
}

func TestManualOracle(t *testing.T) {
	oracle := NewManualOracle()
	oracle.Set("sol", "usdc", big.NewInt(10_000_000_000), 42)

	sample, err := oracle.ReadPrice("SOL", "USDC")
	require.NoError(t, err)
	require.Equal(t, int64(42), sample.Timestamp)
	require.Zero(t, sample.Price.Cmp(big.NewInt(10_000_000_000)))

	_, err = oracle.ReadPrice("SOL", "EUR")
	require.Error(t, err)
}

type stubDoer struct {
	status int
	body   string
	err    error
}

func (d stubDoer) Do(*http.Request) (*http.Response, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &http.Response{
		StatusCode: d.status,
		Body:       io.NopCloser(strings.NewReader(d.body)),
	}, nil
}

func TestHTTPOracleReadPrice(t *testing.T) {
	oracle := NewHTTPOracle(stubDoer{status: http.StatusOK, body: `{"price":"10000000000","timestamp":1700000000}`}, "http://oracle.local/price")
	sample, err := oracle.ReadPrice("SOL", "USDC")
	require.NoError(t, err)
	require.Zero(t, sample.Price.Cmp(big.NewInt(10_000_000_000)))
	require.Equal(t, int64(1_700_000_000), sample.Timestamp)
}

func TestHTTPOracleFailures(t *testing.T) {
	cases := []struct {
		name string
		doer stubDoer
	}{
		{"transport error", stubDoer{err: errors.New("boom")}},
		{"bad status", stubDoer{status: http.StatusBadGateway, body: "upstream down"}},
		{"bad payload", stubDoer{status: http.StatusOK, body: `{"price":"not-a-number"}`}},
		{"non-positive price", stubDoer{status: http.StatusOK, body: `{"price":"-1","timestamp":1}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			oracle := NewHTTPOracle(tc.doer, "http://oracle.local/price")
			_, err := oracle.ReadPrice("SOL", "USDC")
			require.Error(t, err)
		})
	}
}
