// Package progress holds the single {current, total, phase} record of an
// export and fans its changes out to observers.
package progress

import (
	"log/slog"
	"sync"
)

// Phase labels shown to the user.
const (
	PhaseIdle      = ""
	PhaseCapturing = "Capturing slides…"
	PhasePDF       = "Generating PDF…"
	PhasePPTX      = "Generating PPTX…"
	PhaseEmbedding = "Embedding slides…"
	PhaseComplete  = "Complete!"
)

// State is a point-in-time view of the progress record.
type State struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Phase   string `json:"phase"`
}

// Reporter is safe for concurrent use. Writes are last-write-wins except
// that Current never decreases while the phase stays the same.
type Reporter struct {
	mu       sync.Mutex
	state    State
	subs     map[int]chan State
	nextID   int
	onChange func(State)
	logger   *slog.Logger
}

// New creates an empty Reporter. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{subs: make(map[int]chan State), logger: logger}
}

// OnChange installs a hook called synchronously after every accepted update.
func (r *Reporter) OnChange(fn func(State)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Update records a new state. Within an unchanged phase a lower Current is
// dropped.
func (r *Reporter) Update(current, total int, phase string) {
	r.mu.Lock()
	if phase == r.state.Phase && current < r.state.Current && total == r.state.Total {
		r.mu.Unlock()
		r.logger.Debug("progress: ignoring regression",
			"phase", phase, "current", current, "have", r.state.Current)
		return
	}
	r.state = State{Current: current, Total: total, Phase: phase}
	s := r.state
	hook := r.onChange
	for _, ch := range r.subs {
		publish(ch, s)
	}
	r.mu.Unlock()

	if hook != nil {
		hook(s)
	}
}

// Reset returns to the zero state.
func (r *Reporter) Reset() { r.force(State{}) }

func (r *Reporter) force(s State) {
	r.mu.Lock()
	r.state = s
	hook := r.onChange
	for _, ch := range r.subs {
		publish(ch, s)
	}
	r.mu.Unlock()
	if hook != nil {
		hook(s)
	}
}

// Snapshot returns the current state.
func (r *Reporter) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Subscribe returns a channel holding at most the latest state, and a
// cancel func that closes it. Slow readers only ever see the newest value.
func (r *Reporter) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	ch <- r.state
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			close(ch)
			r.mu.Unlock()
		})
	}
}

// publish replaces any unread value with s. Caller holds r.mu.
func publish(ch chan State, s State) {
	select {
	case <-ch:
	default:
	}
	ch <- s
}
