package deckcap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/deckcap/deckcap/internal/kit"
	"github.com/hazyhaar/deckcap/deckcap/internal/safe"
	"github.com/hazyhaar/deckcap/deckcap/internal/shield"
)

// DefaultThumbnailWidth is used when the thumbnail request has no width.
const DefaultThumbnailWidth = 320

// Handler returns the HTTP API:
//
//	GET    /health
//	GET    /api/formats
//	POST   /api/exports                 start (?wait=true blocks until done)
//	GET    /api/exports                 history
//	GET    /api/exports/current         live status
//	DELETE /api/exports/current         dismiss a failed run
//	GET    /api/exports/current/events  progress as server-sent events
//	GET    /api/exports/{id}            one persisted run
//	DELETE /api/exports/{id}            dismiss the failed run id
//	GET    /api/exports/{id}/file       the stored document
//	GET    /api/slides                  slides of the current or last run
//	GET    /api/slides/{index}/thumbnail?width=N
//	POST   /api/viewer                  mount
//	DELETE /api/viewer                  unmount
func (e *Exporter) Handler() http.Handler {
	eps := e.endpoints(e.logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(shield.HeadToGet)
	r.Use(shield.SecurityHeaders(shield.APIHeaders()))
	r.Use(shield.MaxBody(shield.DefaultMaxBody))
	r.Use(shield.RequestContext(e.logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/formats", serve(eps.formats, noRequest))
	r.Get("/api/slides", serve(eps.slides, noRequest))
	r.Get("/api/slides/{index}/thumbnail", e.handleThumbnail)

	r.Route("/api/exports", func(r chi.Router) {
		r.Post("/", e.handleStart(eps.export))
		r.Get("/", serve(eps.history, func(req *http.Request) (any, error) {
			return &HistoryRequest{Limit: queryInt(req, "limit", 0)}, nil
		}))
		r.Get("/current", serve(eps.status, noRequest))
		r.Delete("/current", func(w http.ResponseWriter, _ *http.Request) {
			if err := e.Dismiss(); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, e.Status())
		})
		r.Get("/current/events", e.handleEvents)
		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			id, ok := runID(w, req)
			if !ok {
				return
			}
			rec, err := e.Get(req.Context(), id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, rec)
		})
		r.Delete("/{id}", func(w http.ResponseWriter, req *http.Request) {
			id, ok := runID(w, req)
			if !ok {
				return
			}
			if e.Status().ID != id {
				writeError(w, fmt.Errorf("%w: run %s is not showing", ErrNotFailed, id))
				return
			}
			if err := e.Dismiss(); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, e.Status())
		})
		r.Get("/{id}/file", e.handleFile)
	})

	r.Post("/api/viewer", func(w http.ResponseWriter, req *http.Request) {
		e.Mount(context.WithoutCancel(req.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Delete("/api/viewer", func(w http.ResponseWriter, _ *http.Request) {
		e.Unmount()
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func noRequest(*http.Request) (any, error) { return nil, nil }

func runID(w http.ResponseWriter, req *http.Request) (string, bool) {
	id := chi.URLParam(req, "id")
	if err := safe.Identifier(id); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return "", false
	}
	return id, true
}

// serve adapts an endpoint to HTTP with a JSON response.
func serve(ep kit.Endpoint, decode func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		in, err := decode(req)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		out, err := ep(req.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (e *Exporter) handleStart(ep kit.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		wait, _ := strconv.ParseBool(req.URL.Query().Get("wait"))
		out, err := ep(req.Context(), &ExportRequest{Wait: wait})
		if err != nil {
			writeError(w, err)
			return
		}
		if wait {
			writeJSON(w, http.StatusOK, out)
			return
		}
		writeJSON(w, http.StatusAccepted, out)
	}
}

func (e *Exporter) handleFile(w http.ResponseWriter, req *http.Request) {
	id, ok := runID(w, req)
	if !ok {
		return
	}
	art, err := e.Artifact(req.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	etag := `"` + art.Digest + `"`
	w.Header().Set("ETag", etag)
	if req.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(art.Data)
}

func (e *Exporter) handleThumbnail(w http.ResponseWriter, req *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(req, "index"))
	if err != nil || n < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "index must be a slide number from 1"})
		return
	}
	data, err := e.Thumbnail(req.Context(), n-1, queryInt(req, "width", DefaultThumbnailWidth))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// handleEvents streams progress until the client goes away.
func (e *Exporter) handleEvents(w http.ResponseWriter, req *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	updates, cancel := e.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	send := func(v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	if !send(e.Status().Progress) {
		return
	}
	for {
		select {
		case <-req.Context().Done():
			return
		case p, ok := <-updates:
			if !ok || !send(p) {
				return
			}
		}
	}
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ErrNotFailed):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoHistory):
		return http.StatusNotImplemented
	case errors.Is(err, ErrSlideRange):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("deckcap: write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
