// Package orchestrator runs one export at a time: capture every slide,
// assemble the document, deliver it, and put the viewer back where it was.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/deckcap/deckcap/internal/assemble"
	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
	"github.com/hazyhaar/deckcap/deckcap/internal/navigate"
	"github.com/hazyhaar/deckcap/deckcap/internal/progress"
	"github.com/hazyhaar/deckcap/deckcap/internal/sink"
)

// Status of the machine.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusCapturing  Status = "capturing"
	StatusAssembling Status = "assembling"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

const (
	CompleteDisplay = 2 * time.Second
	AutoStartDelay  = 500 * time.Millisecond
)

var (
	ErrBusy      = errors.New("orchestrator: an export is already running")
	ErrNotFailed = errors.New("orchestrator: no failed export to dismiss")
)

// Run is a snapshot of one export.
type Run struct {
	ID         string          `json:"id"`
	Status     Status          `json:"status"`
	Progress   progress.State  `json:"progress"`
	Origin     int             `json:"origin"`
	Total      int             `json:"total"`
	Error      string          `json:"error,omitempty"`
	Format     assemble.Format `json:"format"`
	Filename   string          `json:"filename,omitempty"`
	Pages      int             `json:"pages,omitempty"`
	Size       int             `json:"size,omitempty"`
	Digest     string          `json:"digest,omitempty"`
	StartedAt  time.Time       `json:"started_at,omitzero"`
	FinishedAt time.Time       `json:"finished_at,omitzero"`
}

// Terminal reports whether the run has ended.
func (r Run) Terminal() bool {
	return r.Status == StatusComplete || r.Status == StatusFailed
}

// Config wires a Machine.
type Config struct {
	Driver    *navigate.Driver
	Pipeline  *capture.Pipeline
	Assembler assemble.Assembler
	Page      assemble.PageSize
	Reporter  *progress.Reporter
	Sink      sink.Sink
	Naming    Naming

	// AutoStart makes Mount begin an export once per mount.
	AutoStart       bool
	AutoStartDelay  time.Duration
	CompleteDisplay time.Duration

	// AfterFunc schedules f after d and returns its stop func.
	// Default: time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
	NewID     func() string

	// OnComplete runs when a Complete run resets to Idle.
	OnComplete func(Run)
	// OnFailed runs when a run enters Failed.
	OnFailed func(Run)
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.Page.Width <= 0 || c.Page.Height <= 0 {
		c.Page.Width, c.Page.Height = assemble.Landscape1080.Width, assemble.Landscape1080.Height
	}
	if c.AutoStartDelay <= 0 {
		c.AutoStartDelay = AutoStartDelay
	}
	if c.CompleteDisplay <= 0 {
		c.CompleteDisplay = CompleteDisplay
	}
	if c.AfterFunc == nil {
		c.AfterFunc = func(d time.Duration, f func()) func() bool { return time.AfterFunc(d, f).Stop }
	}
	if c.NewID == nil {
		c.NewID = newID
	}
	if c.Reporter == nil {
		c.Reporter = progress.New(c.Logger)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Machine is the export state machine. It is safe for concurrent use.
type Machine struct {
	cfg    Config
	slides *assemble.Collection

	mu        sync.Mutex
	run       Run
	last      Run
	gen       int
	mounted   bool
	autoFired bool
	stopAuto  func() bool
	stopReset func() bool
}

// New validates cfg and returns an Idle machine.
func New(cfg Config) (*Machine, error) {
	if cfg.Driver == nil || cfg.Pipeline == nil || cfg.Assembler == nil {
		return nil, errors.New("orchestrator: driver, pipeline and assembler are required")
	}
	cfg.defaults()
	return &Machine{
		cfg:    cfg,
		slides: assemble.NewCollection(),
		run:    Run{Status: StatusIdle},
	}, nil
}

// Reporter returns the progress record.
func (m *Machine) Reporter() *progress.Reporter { return m.cfg.Reporter }

// Format returns the configured output format.
func (m *Machine) Format() assemble.Format { return m.cfg.Assembler.Format() }

// Snapshot returns the current run with live progress.
func (m *Machine) Snapshot() Run {
	m.mu.Lock()
	r := m.run
	m.mu.Unlock()
	r.Progress = m.cfg.Reporter.Snapshot()
	return r
}

// Last returns the most recent run that left the machine.
func (m *Machine) Last() Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Slides returns the slides captured so far, for previews.
func (m *Machine) Slides() []capture.CapturedSlide { return m.slides.Slides() }

// Start moves Idle to Capturing and runs the export in the background.
// The returned channel yields the terminal snapshot (Complete or Failed)
// and is then closed.
func (m *Machine) Start(ctx context.Context) (<-chan Run, error) {
	m.mu.Lock()
	if m.run.Status != StatusIdle {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	m.gen++
	gen := m.gen
	m.run = Run{
		ID:        m.cfg.NewID(),
		Status:    StatusCapturing,
		Origin:    -1,
		Format:    m.cfg.Assembler.Format(),
		StartedAt: time.Now().UTC(),
	}
	id := m.run.ID
	m.mu.Unlock()

	m.cfg.Logger.Info("orchestrator: export started", "run", id, "format", m.cfg.Assembler.Format())

	done := make(chan Run, 1)
	go func() {
		defer close(done)
		done <- m.exec(ctx, gen)
	}()
	return done, nil
}

// Export runs Start and waits for the terminal snapshot. A Failed run is
// returned together with an error carrying its message.
func (m *Machine) Export(ctx context.Context) (Run, error) {
	done, err := m.Start(ctx)
	if err != nil {
		return Run{}, err
	}
	r := <-done
	if r.Status == StatusFailed {
		return r, errors.New(r.Error)
	}
	return r, nil
}

func (m *Machine) exec(ctx context.Context, gen int) Run {
	d := m.cfg.Driver
	rep := m.cfg.Reporter

	// One lease covers the whole run, restore included.
	sess, err := d.Begin("export")
	if err != nil {
		return m.fail(ctx, gen, fmt.Errorf("orchestrator: %w", err), nil, -1)
	}
	defer sess.End()

	origin, err := d.Origin(ctx)
	if err != nil {
		return m.fail(ctx, gen, fmt.Errorf("orchestrator: read displayed slide: %w", err), sess, -1)
	}
	total, err := d.Total(ctx)
	if err != nil {
		return m.fail(ctx, gen, err, sess, origin)
	}
	m.update(gen, func(r *Run) { r.Origin, r.Total = origin, total })

	m.slides.Reset()
	rep.Reset()
	rep.Update(0, total, progress.PhaseCapturing)

	err = sess.Run(ctx, total, func(ctx context.Context, i int, t capture.Target) error {
		rep.Update(i+1, total, progress.PhaseCapturing)
		cs, err := m.cfg.Pipeline.Capture(ctx, i, t)
		if err != nil {
			return err
		}
		return m.slides.Put(cs)
	})
	if err != nil {
		return m.fail(ctx, gen, err, sess, origin)
	}
	if !m.slides.Complete(total) {
		return m.fail(ctx, gen, fmt.Errorf("orchestrator: captured %d of %d slides", m.slides.Len(), total), sess, origin)
	}

	m.update(gen, func(r *Run) { r.Status = StatusAssembling })
	rep.Update(0, total, generatingPhase(m.cfg.Assembler.Format()))

	var buf bytes.Buffer
	res, err := m.cfg.Assembler.Assemble(ctx, &buf, m.slides.Slides(), m.cfg.Page, func(cur, n int) {
		rep.Update(cur, n, progress.PhaseEmbedding)
	})
	if err != nil {
		return m.fail(ctx, gen, err, sess, origin)
	}

	f := m.cfg.Assembler.Format()
	m.mu.Lock()
	runID := m.run.ID
	m.mu.Unlock()
	art := sink.NewArtifact(runID, m.cfg.Naming.Filename(f.Ext()), f.ContentType(), res.Pages, buf.Bytes())
	if m.cfg.Sink != nil {
		if err := m.cfg.Sink.Deliver(ctx, art); err != nil {
			return m.fail(ctx, gen, fmt.Errorf("orchestrator: deliver %s: %w", art.Filename, err), sess, origin)
		}
	}

	return m.complete(ctx, gen, sess, art, total, origin)
}

func generatingPhase(f assemble.Format) string {
	if f == assemble.FormatPPTX {
		return progress.PhasePPTX
	}
	return progress.PhasePDF
}

func (m *Machine) update(gen int, fn func(*Run)) {
	m.mu.Lock()
	if m.gen == gen {
		fn(&m.run)
	}
	m.mu.Unlock()
}

func (m *Machine) complete(ctx context.Context, gen int, sess *navigate.Session, art sink.Artifact, total, origin int) Run {
	m.cfg.Reporter.Update(total, total, progress.PhaseComplete)
	if err := sess.Restore(ctx, origin); err != nil {
		m.cfg.Logger.Warn("orchestrator: restore origin failed", "origin", origin, "error", err)
	}
	sess.End()

	m.mu.Lock()
	m.run.Status = StatusComplete
	m.run.Filename = art.Filename
	m.run.Pages = art.Pages
	m.run.Size = art.Size
	m.run.Digest = art.Digest
	m.run.FinishedAt = time.Now().UTC()
	r := m.run
	m.mu.Unlock()

	stop := m.cfg.AfterFunc(m.cfg.CompleteDisplay, func() { m.resetComplete(gen) })
	m.mu.Lock()
	if m.gen == gen && m.run.Status == StatusComplete {
		m.stopReset = stop
	}
	m.mu.Unlock()

	r.Progress = m.cfg.Reporter.Snapshot()
	m.cfg.Logger.Info("orchestrator: export complete",
		"run", r.ID, "filename", r.Filename, "pages", r.Pages, "bytes", r.Size)
	return r
}

func (m *Machine) resetComplete(gen int) {
	m.mu.Lock()
	if m.gen != gen || m.run.Status != StatusComplete {
		m.mu.Unlock()
		return
	}
	r := m.run
	m.last = r
	m.run = Run{Status: StatusIdle}
	m.stopReset = nil
	m.mu.Unlock()

	m.cfg.Reporter.Reset()
	if m.cfg.OnComplete != nil {
		m.cfg.OnComplete(r)
	}
}

// fail restores the origin slide first, then enters Failed with the error
// message unchanged. origin < 0 means it was never read; sess is nil when
// the slot could not be taken.
func (m *Machine) fail(ctx context.Context, gen int, err error, sess *navigate.Session, origin int) Run {
	if sess != nil {
		if origin >= 0 {
			if rerr := sess.Restore(ctx, origin); rerr != nil {
				m.cfg.Logger.Error("orchestrator: restore origin failed", "origin", origin, "error", rerr)
			}
		}
		sess.End()
	}
	m.cfg.Reporter.Reset()

	m.mu.Lock()
	if m.gen == gen {
		m.run.Status = StatusFailed
		m.run.Error = err.Error()
		m.run.FinishedAt = time.Now().UTC()
	}
	r := m.run
	m.mu.Unlock()

	m.cfg.Logger.Error("orchestrator: export failed", "run", r.ID, "error", err)
	if m.cfg.OnFailed != nil {
		m.cfg.OnFailed(r)
	}
	return r
}

// Dismiss acknowledges a Failed run and returns to Idle. The origin was
// already restored when the run failed.
func (m *Machine) Dismiss() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run.Status != StatusFailed {
		return ErrNotFailed
	}
	m.last = m.run
	m.run = Run{Status: StatusIdle}
	return nil
}

// Mount marks the live view as mounted. With AutoStart, the first Mount
// after construction or Unmount schedules one export after AutoStartDelay.
func (m *Machine) Mount(ctx context.Context) {
	m.mu.Lock()
	m.mounted = true
	if !m.cfg.AutoStart || m.autoFired {
		m.mu.Unlock()
		return
	}
	m.autoFired = true
	m.mu.Unlock()

	stop := m.cfg.AfterFunc(m.cfg.AutoStartDelay, func() {
		if !m.Mounted() {
			return
		}
		if _, err := m.Start(ctx); err != nil {
			m.cfg.Logger.Warn("orchestrator: auto-start skipped", "error", err)
		}
	})
	m.mu.Lock()
	m.stopAuto = stop
	m.mu.Unlock()
}

// Unmount cancels a pending auto-start and re-arms it for the next Mount.
func (m *Machine) Unmount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mounted = false
	m.autoFired = false
	if m.stopAuto != nil {
		m.stopAuto()
		m.stopAuto = nil
	}
}

// Mounted reports whether the view is mounted.
func (m *Machine) Mounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// Close stops pending timers.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopAuto != nil {
		m.stopAuto()
		m.stopAuto = nil
	}
	if m.stopReset != nil {
		m.stopReset()
		m.stopReset = nil
	}
}
