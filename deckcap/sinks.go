package deckcap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hazyhaar/deckcap/deckcap/internal/sink"
)

// Sink receives finished documents.
type Sink = sink.Sink

// Artifact is one finished document.
type Artifact = sink.Artifact

// NewDirSink writes artifacts into dir.
func NewDirSink(dir string) (Sink, error) {
	return sink.NewDir(dir)
}

// NewWebhookSink POSTs artifacts to url with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewManifestSink writes one JSON line per artifact to w.
func NewManifestSink(w io.Writer) Sink {
	return sink.NewManifest(w)
}

// NewCallbackSink hands artifacts to fn in-process.
func NewCallbackSink(fn func(ctx context.Context, a Artifact) error) Sink {
	return sink.NewCallback(fn)
}

// buildSinks turns configuration entries into sinks.
func buildSinks(cfgs []SinkConfig, logger *slog.Logger) ([]sink.Sink, error) {
	var out []sink.Sink
	for i, c := range cfgs {
		switch c.Type {
		case "dir":
			d, err := sink.NewDir(c.Path)
			if err != nil {
				return nil, fmt.Errorf("deckcap: sinks[%d]: %w", i, err)
			}
			out = append(out, d)
		case "webhook":
			out = append(out, sink.NewWebhook(c.URL,
				sink.WithWebhookRetries(c.Retries),
				sink.WithWebhookBackoff(c.Backoff),
				sink.WithWebhookLogger(logger)))
		case "manifest":
			if c.Path == "-" {
				out = append(out, sink.NewManifest(os.Stdout))
				continue
			}
			f, err := os.OpenFile(c.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, fmt.Errorf("deckcap: sinks[%d]: %w", i, err)
			}
			out = append(out, &fileManifest{Manifest: sink.NewManifest(f), f: f})
		default:
			return nil, fmt.Errorf("deckcap: sinks[%d]: unknown type %q", i, c.Type)
		}
	}
	return out, nil
}

// fileManifest closes its file with the sink.
type fileManifest struct {
	*sink.Manifest
	f *os.File
}

func (m *fileManifest) Close() error { return m.f.Close() }
