package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func testArtifact() Artifact {
	return NewArtifact("run-1", "Acme_report_globex_2026-10-17.pdf", "application/pdf", 3, []byte("%PDF-1.7 test"))
}

func TestNewArtifact_Digest(t *testing.T) {
	a := testArtifact()
	if a.Size != len(a.Data) {
		t.Errorf("size = %d", a.Size)
	}
	if len(a.Digest) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(a.Digest))
	}
	if Digest([]byte("other")) == a.Digest {
		t.Error("digest collision on different input")
	}
}

func TestDir_WritesAtomically(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDir(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatal(err)
	}
	a := testArtifact()
	if err := d.Deliver(context.Background(), a); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(d.Path(), a.Filename))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, a.Data) {
		t.Error("content mismatch")
	}
	entries, _ := os.ReadDir(d.Path())
	if len(entries) != 1 {
		t.Errorf("leftover files: %d entries", len(entries))
	}
}

func TestDir_RejectsTraversal(t *testing.T) {
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a := testArtifact()
	a.Filename = ".."
	if err := d.Deliver(context.Background(), a); err == nil {
		t.Fatal("want error for invalid filename")
	}
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	var gotBody []byte
	var gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		gotBody, _ = io.ReadAll(r.Body)
		gotName = r.Header.Get("X-Deckcap-Filename")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	a := testArtifact()
	if err := wh.Deliver(context.Background(), a); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if !bytes.Equal(gotBody, a.Data) || gotName != a.Filename {
		t.Errorf("body/header mismatch: %q %q", gotBody, gotName)
	}
}

func TestWebhook_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond))
	if err := wh.Deliver(context.Background(), testArtifact()); err == nil {
		t.Fatal("want error after retries")
	}
}

type failing struct{ err error }

func (f failing) Deliver(context.Context, Artifact) error { return f.err }
func (f failing) Close() error                            { return nil }

func TestRouter_StopsAtFirstError(t *testing.T) {
	var got []string
	boom := errors.New("boom")
	r := NewRouter(nil,
		failing{err: boom},
		NewCallback(func(_ context.Context, a Artifact) error {
			got = append(got, a.Filename)
			return nil
		}),
	)
	err := r.Deliver(context.Background(), testArtifact())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(got) != 0 {
		t.Errorf("later sink received the artifact after an earlier one failed: %v", got)
	}
}

func TestRouter_FailedSinkLeavesNoFile(t *testing.T) {
	tests := []struct {
		name  string
		sinks func(d *Dir) []Sink
	}{
		{"dir first", func(d *Dir) []Sink {
			return []Sink{d, failing{err: errors.New("webhook: 503")}}
		}},
		{"dir last", func(d *Dir) []Sink {
			return []Sink{failing{err: errors.New("webhook: 503")}, d}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDir(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			r := NewRouter(nil, tt.sinks(d)...)
			if err := r.Deliver(context.Background(), testArtifact()); err == nil {
				t.Fatal("want delivery error")
			}
			entries, _ := os.ReadDir(d.Path())
			if len(entries) != 0 {
				t.Errorf("output dir holds %d entries after a failed delivery", len(entries))
			}
		})
	}
}

type countingStager struct {
	failCommit        bool
	commits, discards int
}

func (c *countingStager) Deliver(context.Context, Artifact) error { return nil }
func (c *countingStager) Close() error                            { return nil }
func (c *countingStager) Stage(context.Context, Artifact) (Pending, error) {
	return c, nil
}
func (c *countingStager) Commit() error {
	c.commits++
	if c.failCommit {
		return errors.New("commit failed")
	}
	return nil
}
func (c *countingStager) Discard() error { c.discards++; return nil }

func TestRouter_CommitsOnlyWhenAllSucceed(t *testing.T) {
	ok := &countingStager{}
	var delivered int
	r := NewRouter(nil, ok, NewCallback(func(context.Context, Artifact) error {
		if ok.commits != 0 {
			t.Error("staged sink committed before plain sinks were delivered")
		}
		delivered++
		return nil
	}))
	if err := r.Deliver(context.Background(), testArtifact()); err != nil {
		t.Fatal(err)
	}
	if ok.commits != 1 || ok.discards != 0 || delivered != 1 {
		t.Errorf("commits=%d discards=%d delivered=%d", ok.commits, ok.discards, delivered)
	}

	first, broken := &countingStager{}, &countingStager{failCommit: true}
	r = NewRouter(nil, first, broken)
	if err := r.Deliver(context.Background(), testArtifact()); err == nil {
		t.Fatal("want commit error")
	}
	if first.discards != 1 || broken.discards != 1 {
		t.Errorf("discards: first=%d broken=%d, want 1 each", first.discards, broken.discards)
	}
}

func TestManifest_WritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	m := NewManifest(&buf)
	if err := m.Deliver(context.Background(), testArtifact()); err != nil {
		t.Fatal(err)
	}
	var env struct {
		Type string   `json:"type"`
		Data Artifact `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != "artifact" || env.Data.Pages != 3 {
		t.Errorf("envelope = %+v", env)
	}
	if bytes.Contains(buf.Bytes(), []byte("%PDF")) {
		t.Error("manifest leaked document bytes")
	}
}

func TestManifest_SkippedWhenDeliveryFails(t *testing.T) {
	var buf bytes.Buffer
	r := NewRouter(nil, NewManifest(&buf), failing{err: errors.New("webhook: 503")})
	if err := r.Deliver(context.Background(), testArtifact()); err == nil {
		t.Fatal("want delivery error")
	}
	if buf.Len() != 0 {
		t.Errorf("manifest written for a failed delivery: %q", buf.String())
	}
}
