package sink

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hazyhaar/deckcap/deckcap/internal/safe"
)

// Dir writes artifacts into a directory. Files appear atomically: the
// bytes go to a temp file that is renamed into place on commit.
type Dir struct {
	path string
}

// NewDir creates the directory if needed.
func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("dir sink: mkdir %s: %w", path, err)
	}
	return &Dir{path: path}, nil
}

// Path returns the output directory.
func (d *Dir) Path() string { return d.path }

func (d *Dir) Deliver(ctx context.Context, a Artifact) error {
	p, err := d.Stage(ctx, a)
	if err != nil {
		return err
	}
	if err := p.Commit(); err != nil {
		p.Discard()
		return err
	}
	return nil
}

// Stage writes a to a hidden temp file in the directory.
func (d *Dir) Stage(ctx context.Context, a Artifact) (Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dst, err := safe.Join(d.path, a.Filename)
	if err != nil {
		return nil, fmt.Errorf("dir sink: %w", err)
	}

	tmp, err := os.CreateTemp(d.path, ".deckcap-*")
	if err != nil {
		return nil, fmt.Errorf("dir sink: temp file: %w", err)
	}
	fail := func(op string, err error) (Pending, error) {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("dir sink: %s: %w", op, err)
	}
	if _, err := tmp.Write(a.Data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("dir sink: close: %w", err)
	}
	return &dirPending{tmp: tmp.Name(), dst: dst}, nil
}

func (d *Dir) Close() error { return nil }

type dirPending struct {
	tmp, dst  string
	committed bool
}

func (p *dirPending) Commit() error {
	if err := os.Rename(p.tmp, p.dst); err != nil {
		return fmt.Errorf("dir sink: rename: %w", err)
	}
	p.committed = true
	return nil
}

func (p *dirPending) Discard() error {
	name := p.tmp
	if p.committed {
		name = p.dst
	}
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("dir sink: discard: %w", err)
	}
	return nil
}
