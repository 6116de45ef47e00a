package deckcap

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.exp.Handler())
	t.Cleanup(srv.Close)
	return f, srv
}

func do(t *testing.T, method, url string, hdr map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestHTTP_Health(t *testing.T) {
	_, srv := newServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	if body := decode[map[string]string](t, resp); body["status"] != "ok" {
		t.Fatalf("body: got %v", body)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("security headers missing: X-Content-Type-Options=%q", got)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID missing")
	}
}

func TestHTTP_ExportAndDownload(t *testing.T) {
	_, srv := newServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/exports?wait=true", nil)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("export: got %d: %s", resp.StatusCode, body)
	}
	run := decode[Run](t, resp)
	if run.Status != StatusComplete || run.ID == "" {
		t.Fatalf("run: got %+v", run)
	}

	resp = do(t, http.MethodPost, srv.URL+"/api/exports", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("export while complete is showing: got %d, want 409", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/exports/"+run.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get run: got %d", resp.StatusCode)
	}
	if rec := decode[Record](t, resp); rec.Filename != run.Filename {
		t.Fatalf("record filename: got %q, want %q", rec.Filename, run.Filename)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/exports/"+run.ID+"/file", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("file: got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type: got %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, run.Filename) {
		t.Fatalf("content disposition: got %q", cd)
	}
	data, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatal("download is not a PDF")
	}

	etag := resp.Header.Get("ETag")
	resp = do(t, http.MethodGet, srv.URL+"/api/exports/"+run.ID+"/file", map[string]string{"If-None-Match": etag})
	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("conditional get: got %d, want 304", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/exports", nil)
	if recs := decode[[]Record](t, resp); len(recs) != 1 || recs[0].ID != run.ID {
		t.Fatalf("history: got %+v", recs)
	}
}

func TestHTTP_Errors(t *testing.T) {
	_, srv := newServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"unknown run", http.MethodGet, "/api/exports/nope", http.StatusNotFound},
		{"unknown run file", http.MethodGet, "/api/exports/nope/file", http.StatusNotFound},
		{"malformed run id", http.MethodGet, "/api/exports/bad%20id", http.StatusBadRequest},
		{"dismiss without failure", http.MethodDelete, "/api/exports/current", http.StatusConflict},
		{"slide zero", http.MethodGet, "/api/slides/0/thumbnail", http.StatusBadRequest},
		{"slide past end", http.MethodGet, "/api/slides/9/thumbnail", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, srv.URL+tt.path, nil)
			if resp.StatusCode != tt.want {
				t.Fatalf("status: got %d, want %d", resp.StatusCode, tt.want)
			}
			if body := decode[map[string]string](t, resp); body["error"] == "" {
				t.Fatal("error body missing")
			}
		})
	}
}

func TestHTTP_Thumbnail(t *testing.T) {
	_, srv := newServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/api/slides/2/thumbnail?width=64", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type: got %q", ct)
	}
}

func TestHTTP_StatusAndFormats(t *testing.T) {
	_, srv := newServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/exports/current", nil)
	if run := decode[Run](t, resp); run.Status != StatusIdle {
		t.Fatalf("status: got %q, want idle", run.Status)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/formats", nil)
	if got := decode[[]string](t, resp); strings.Join(got, ",") != "pdf,pptx" {
		t.Fatalf("formats: got %v", got)
	}
}

func TestHTTP_EventsStartWithCurrentProgress(t *testing.T) {
	_, srv := newServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/exports/current/events", nil)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: got %q", ct)
	}
	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "event: progress\n" {
		t.Fatalf("first line: got %q", line)
	}
	line, err = r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(line, "data: {") {
		t.Fatalf("data line: got %q", line)
	}
}

func TestHTTP_ViewerMount(t *testing.T) {
	f, srv := newServer(t)
	if resp := do(t, http.MethodPost, srv.URL+"/api/viewer", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("mount: got %d", resp.StatusCode)
	}
	if !f.exp.machine.Mounted() {
		t.Fatal("viewer not mounted")
	}
	if resp := do(t, http.MethodDelete, srv.URL+"/api/viewer", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unmount: got %d", resp.StatusCode)
	}
	if f.exp.machine.Mounted() {
		t.Fatal("viewer still mounted")
	}
}
