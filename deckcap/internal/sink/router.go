package sink

import (
	"context"
	"log/slog"
)

// Router fans an artifact out to all sinks, all or nothing: Stager sinks
// are staged first, the others are delivered in order, and the staged
// deliveries are committed only when every sink succeeded. The first
// failure discards what was staged and is returned.
//
// Deliveries to plain sinks (webhooks, callbacks) cannot be taken back, so
// they run only after every stage succeeded.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Add appends s.
func (r *Router) Add(s Sink) { r.sinks = append(r.sinks, s) }

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) Deliver(ctx context.Context, a Artifact) error {
	var (
		staged []Pending
		direct []Sink
	)
	abort := func(stage string, err error) error {
		r.logger.Warn("sink: deliver failed", "filename", a.Filename, "stage", stage, "error", err)
		for _, p := range staged {
			if derr := p.Discard(); derr != nil {
				r.logger.Warn("sink: discard failed", "filename", a.Filename, "error", derr)
			}
		}
		return err
	}

	for _, s := range r.sinks {
		st, ok := s.(Stager)
		if !ok {
			direct = append(direct, s)
			continue
		}
		p, err := st.Stage(ctx, a)
		if err != nil {
			return abort("stage", err)
		}
		staged = append(staged, p)
	}
	for _, s := range direct {
		if err := s.Deliver(ctx, a); err != nil {
			return abort("deliver", err)
		}
	}
	for _, p := range staged {
		if err := p.Commit(); err != nil {
			return abort("commit", err)
		}
	}
	return nil
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
