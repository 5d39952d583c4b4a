package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/machinalis/featureforge/middleware"
	"github.com/machinalis/featureforge/record"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecord() *record.Record {
	return &record.Record{
		Key:      "abc123",
		Status:   record.StatusBooked,
		BookedAt: time.Now().UTC(),
	}
}

func TestChain_Order(t *testing.T) {
	var order []string

	tag := func(name string) middleware.Middleware {
		return func(ctx context.Context, _ *record.Record, next middleware.Handler) error {
			order = append(order, name+":before")
			err := next(ctx)
			order = append(order, name+":after")
			return err
		}
	}

	chain := middleware.Chain(tag("outer"), tag("inner"))
	err := chain(context.Background(), testRecord(), func(context.Context) error {
		order = append(order, "terminal")
		return nil
	})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}

	want := strings.Join([]string{
		"outer:before", "inner:before", "terminal", "inner:after", "outer:after",
	}, ",")
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	err := chain(context.Background(), testRecord(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Errorf("empty chain: err=%v called=%v", err, called)
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	mw := middleware.Recover(discardLogger())

	err := mw(context.Background(), testRecord(), func(context.Context) error {
		panic("experiment blew up")
	})
	if err == nil {
		t.Fatal("expected error from panicking handler")
	}
	if !strings.Contains(err.Error(), "experiment blew up") {
		t.Errorf("error %q does not mention the panic value", err)
	}
}

func TestRecover_PassesThroughNormalError(t *testing.T) {
	mw := middleware.Recover(discardLogger())
	sentinel := errors.New("normal failure")

	err := mw(context.Background(), testRecord(), func(context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want %v", err, sentinel)
	}
}

func TestLogging_PropagatesError(t *testing.T) {
	mw := middleware.Logging(discardLogger())
	sentinel := errors.New("boom")

	if err := mw(context.Background(), testRecord(), func(context.Context) error {
		return sentinel
	}); !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want %v", err, sentinel)
	}
	if err := mw(context.Background(), testRecord(), func(context.Context) error {
		return nil
	}); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestTimeout_Expires(t *testing.T) {
	mw := middleware.Timeout(10 * time.Millisecond)

	err := mw(context.Background(), testRecord(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestTimeout_Disabled(t *testing.T) {
	mw := middleware.Timeout(0)

	err := mw(context.Background(), testRecord(), func(ctx context.Context) error {
		if _, set := ctx.Deadline(); set {
			t.Error("deadline set despite zero timeout")
		}
		return nil
	})
	if err != nil {
		t.Errorf("err = %v", err)
	}
}
