package browser

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
)

var (
	//go:embed js/normalize.js
	normalizeJS string
	//go:embed js/restore.js
	restoreJS string
)

// Normalizer forces the live slide root into its settled appearance. CDP
// screenshots the live DOM, so prior inline styles are recorded in the
// page and put back by the returned Restore; canvases are detached and
// reinserted at their original position.
type Normalizer struct {
	Decorative []string
}

func (n Normalizer) Normalize(ctx context.Context, t capture.Target, box capture.Box) (capture.Restore, error) {
	tg, ok := t.(*Target)
	if !ok {
		return nil, fmt.Errorf("browser: cannot normalize %T", t)
	}
	decorative := n.Decorative
	if decorative == nil {
		decorative = []string{}
	}
	res, err := tg.el.Context(ctx).Eval(normalizeJS, decorative, box.Width, box.Height)
	if err != nil {
		return nil, fmt.Errorf("browser: normalize: %w", err)
	}
	if !res.Value.Bool() {
		// Already normalized; the first Restore owns the recorded originals.
		return capture.NoRestore, nil
	}
	el := tg.el
	return func(ctx context.Context) error {
		if _, err := el.Context(context.WithoutCancel(ctx)).Eval(restoreJS); err != nil {
			return fmt.Errorf("browser: restore: %w", err)
		}
		return nil
	}, nil
}
