package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"stakecast/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubSource returns a canned reading or error.
type stubSource struct {
	reading types.OracleReading
	err     error
}

func (s *stubSource) Latest(_ context.Context, _ string) (types.OracleReading, error) {
	return s.reading, s.err
}

func TestGatewayFreshReading(t *testing.T) {
	t.Parallel()

	now := time.Now()
	src := &stubSource{reading: types.OracleReading{
		Price: 260000000000, Exponent: -8, PublishTime: now.Add(-10 * time.Second),
	}}
	g := NewGateway(src, time.Minute, testLogger())
	g.now = func() time.Time { return now }

	reading, err := g.Latest(context.Background(), "eth-usd")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got := reading.Decimal().String(); got != "2600" {
		t.Errorf("price = %s, want 2600", got)
	}
}

func TestGatewayStaleReading(t *testing.T) {
	t.Parallel()

	now := time.Now()
	src := &stubSource{reading: types.OracleReading{
		Price: 260000000000, Exponent: -8, PublishTime: now.Add(-2 * time.Minute),
	}}
	g := NewGateway(src, time.Minute, testLogger())
	g.now = func() time.Time { return now }

	_, err := g.Latest(context.Background(), "eth-usd")
	if !errors.Is(err, types.ErrStalePrice) {
		t.Fatalf("err = %v, want ErrStalePrice", err)
	}
}

func TestGatewayFeedNotFound(t *testing.T) {
	t.Parallel()

	src := &stubSource{err: types.ErrPriceFeedNotFound}
	g := NewGateway(src, time.Minute, testLogger())

	_, err := g.Latest(context.Background(), "nope")
	if !errors.Is(err, types.ErrPriceFeedNotFound) {
		t.Fatalf("err = %v, want ErrPriceFeedNotFound", err)
	}
}

func TestSetMaxStaleness(t *testing.T) {
	t.Parallel()

	g := NewGateway(&stubSource{}, time.Minute, testLogger())
	if err := g.SetMaxStaleness(30 * time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := g.MaxStaleness(); got != 30*time.Second {
		t.Errorf("max staleness = %s, want 30s", got)
	}
	if err := g.SetMaxStaleness(0); !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("zero staleness err = %v, want ErrInvalidArgument", err)
	}
}

func TestHermesSourceLatest(t *testing.T) {
	t.Parallel()

	publishTime := time.Now().Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/updates/price/latest" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("ids[]"); got == "unknown-feed" {
			http.Error(w, "price ids not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"parsed":[{"id":"eth-usd","price":{"price":"260050000000","conf":"95000000","expo":-8,"publish_time":%d}}]}`, publishTime)
	}))
	defer srv.Close()

	src := NewHermesSource(srv.URL, 5*time.Second, testLogger())

	reading, err := src.Latest(context.Background(), "eth-usd")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if reading.Price != 260050000000 || reading.Exponent != -8 {
		t.Errorf("reading = %+v, want price 260050000000 expo -8", reading)
	}
	if reading.Confidence != 95000000 {
		t.Errorf("confidence = %d, want 95000000", reading.Confidence)
	}
	if reading.PublishTime.Unix() != publishTime {
		t.Errorf("publish time = %d, want %d", reading.PublishTime.Unix(), publishTime)
	}

	_, err = src.Latest(context.Background(), "unknown-feed")
	if !errors.Is(err, types.ErrPriceFeedNotFound) {
		t.Fatalf("unknown feed err = %v, want ErrPriceFeedNotFound", err)
	}
}

func TestTokenBucketWait(t *testing.T) {
	t.Parallel()

	tb := NewTokenBucket(2, 100)
	ctx := context.Background()

	// Burst capacity admits the first two immediately
	for i := 0; i < 2; i++ {
		if err := tb.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}

	// Third waits for refill but still succeeds at 100/s
	start := time.Now()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("wait 3: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("refill wait took too long")
	}
}

func TestTokenBucketContextCancel(t *testing.T) {
	t.Parallel()

	tb := NewTokenBucket(1, 0.001) // effectively no refill
	ctx := context.Background()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	cancelled, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := tb.Wait(cancelled); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}
