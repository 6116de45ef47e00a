package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
)

// Manifest writes one JSON line of artifact metadata per delivery to an
// io.Writer (default os.Stdout). The document bytes are not written.
type Manifest struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewManifest creates a Manifest sink. If w is nil, os.Stdout is used.
func NewManifest(w io.Writer) *Manifest {
	if w == nil {
		w = os.Stdout
	}
	return &Manifest{enc: json.NewEncoder(w)}
}

func (m *Manifest) Deliver(_ context.Context, a Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enc.Encode(envelope{Type: "artifact", Data: a})
}

// Stage defers the line to Commit, so a failed delivery writes nothing.
func (m *Manifest) Stage(ctx context.Context, a Artifact) (Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &manifestPending{m: m, a: a}, nil
}

func (m *Manifest) Close() error { return nil }

type manifestPending struct {
	m *Manifest
	a Artifact
}

func (p *manifestPending) Commit() error  { return p.m.Deliver(context.Background(), p.a) }
func (p *manifestPending) Discard() error { return nil }

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
