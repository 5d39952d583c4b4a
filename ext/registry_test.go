package ext_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/ext"
	"github.com/machinalis/featureforge/record"
)

// countingExt implements every hook and counts invocations.
type countingExt struct {
	booked, skipped, solved, failed, overtaken, rejected, finished int
}

func (c *countingExt) Name() string { return "counting" }

func (c *countingExt) OnExperimentBooked(context.Context, *record.Record) error {
	c.booked++
	return nil
}

func (c *countingExt) OnExperimentSkipped(context.Context, string) error {
	c.skipped++
	return nil
}

func (c *countingExt) OnExperimentSolved(context.Context, *record.Record, time.Duration) error {
	c.solved++
	return nil
}

func (c *countingExt) OnExperimentFailed(context.Context, *record.Record, error) error {
	c.failed++
	return nil
}

func (c *countingExt) OnExperimentOvertaken(context.Context, *record.Record) error {
	c.overtaken++
	return nil
}

func (c *countingExt) OnConfigRejected(context.Context, featureforge.Config, error) error {
	c.rejected++
	return nil
}

func (c *countingExt) OnRunFinished(context.Context, featureforge.Summary) error {
	c.finished++
	return nil
}

// bookedOnlyExt opts in to a single hook.
type bookedOnlyExt struct {
	booked int
}

func (b *bookedOnlyExt) Name() string { return "booked-only" }

func (b *bookedOnlyExt) OnExperimentBooked(context.Context, *record.Record) error {
	b.booked++
	return nil
}

// failingExt returns an error from its hook; the registry must absorb it.
type failingExt struct{}

func (failingExt) Name() string { return "failing" }

func (failingExt) OnExperimentBooked(context.Context, *record.Record) error {
	return errors.New("hook exploded")
}

func newRegistry() *ext.Registry {
	return ext.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_FanOut(t *testing.T) {
	r := newRegistry()
	c := &countingExt{}
	r.Register(c)

	ctx := context.Background()
	rec := &record.Record{Key: "k"}

	r.EmitExperimentBooked(ctx, rec)
	r.EmitExperimentSkipped(ctx, "k")
	r.EmitExperimentSolved(ctx, rec, time.Second)
	r.EmitExperimentFailed(ctx, rec, errors.New("x"))
	r.EmitExperimentOvertaken(ctx, rec)
	r.EmitConfigRejected(ctx, featureforge.Config{}, errors.New("bad"))
	r.EmitRunFinished(ctx, featureforge.Summary{})

	want := countingExt{1, 1, 1, 1, 1, 1, 1}
	if *c != want {
		t.Errorf("counts = %+v, want %+v", *c, want)
	}
}

func TestRegistry_OptIn(t *testing.T) {
	r := newRegistry()
	b := &bookedOnlyExt{}
	r.Register(b)

	ctx := context.Background()
	r.EmitExperimentBooked(ctx, &record.Record{Key: "k"})
	r.EmitExperimentSkipped(ctx, "k")
	r.EmitRunFinished(ctx, featureforge.Summary{})

	if b.booked != 1 {
		t.Errorf("booked = %d, want 1", b.booked)
	}
}

func TestRegistry_HookErrorDoesNotStopFanOut(t *testing.T) {
	r := newRegistry()
	r.Register(failingExt{})
	c := &countingExt{}
	r.Register(c)

	r.EmitExperimentBooked(context.Background(), &record.Record{Key: "k"})

	if c.booked != 1 {
		t.Errorf("later extension not notified after hook error: booked = %d", c.booked)
	}
}

func TestRegistry_Extensions(t *testing.T) {
	r := newRegistry()
	if len(r.Extensions()) != 0 {
		t.Fatal("fresh registry not empty")
	}
	r.Register(&countingExt{})
	r.Register(&bookedOnlyExt{})
	if len(r.Extensions()) != 2 {
		t.Errorf("len = %d, want 2", len(r.Extensions()))
	}
}
