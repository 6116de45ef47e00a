// Package sink delivers finished export artifacts: to a directory, a
// webhook, an in-process callback, or a JSON manifest stream.
package sink

import (
	"context"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Artifact is one exported document ready for download.
type Artifact struct {
	RunID       string    `json:"run_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Pages       int       `json:"pages"`
	Size        int       `json:"size"`
	Digest      string    `json:"digest"`
	CreatedAt   time.Time `json:"created_at"`
	Data        []byte    `json:"-"`
}

// NewArtifact fills Size and Digest from data.
func NewArtifact(runID, filename, contentType string, pages int, data []byte) Artifact {
	return Artifact{
		RunID:       runID,
		Filename:    filename,
		ContentType: contentType,
		Pages:       pages,
		Size:        len(data),
		Digest:      Digest(data),
		CreatedAt:   time.Now().UTC(),
		Data:        data,
	}
}

// Digest returns the hex BLAKE2b-256 of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Sink is an artifact destination.
type Sink interface {
	Deliver(ctx context.Context, a Artifact) error
	Close() error
}

// Pending is a staged delivery. Nothing is published before Commit.
// Discard drops it, and also undoes an earlier Commit where the sink can.
type Pending interface {
	Commit() error
	Discard() error
}

// Stager is a Sink whose delivery can be held back until every other sink
// has accepted the artifact.
type Stager interface {
	Sink
	Stage(ctx context.Context, a Artifact) (Pending, error)
}
