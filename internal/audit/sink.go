// Package audit appends executed cleanup actions to an external store.
// Recording is best effort: a failing sink never blocks reclamation.
package audit

import (
	"context"
	"time"

	"github.com/ppiankov/cloudspectre/internal/models"
)

// Entry is one executed action and its outcome.
type Entry struct {
	Time      time.Time
	DryRun    bool
	Succeeded bool
	Action    models.CleanupAction
}

// Sink receives audit entries.
type Sink interface {
	Record(ctx context.Context, e Entry)
	Close() error
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}

func (Nop) Close() error { return nil }
