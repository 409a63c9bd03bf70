package production

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// ARCHIVE WRITER
// =============================================================================

// ArchiveWriter snapshots cleared orders. It only runs inside the cleared
// transition so an archive exists exactly for the orders that cleared.
type ArchiveWriter struct {
	Store ArchiveStore
	Log   zerolog.Logger
	Now   func() time.Time
}

func NewArchiveWriter(store ArchiveStore, log zerolog.Logger) *ArchiveWriter {
	return &ArchiveWriter{Store: store, Log: log, Now: time.Now}
}

// Archive writes a deep copy of o. Any failure comes back as *ArchiveError.
func (w *ArchiveWriter) Archive(ctx context.Context, o *Order, actor string) (ArchivedOrder, error) {
	if o.CurrentStage != StageCleared {
		return ArchivedOrder{}, &ArchiveError{
			OrderID: o.ID,
			Err:     fmt.Errorf("order is in %s, only cleared orders are archived", o.CurrentStage),
		}
	}

	a := ArchivedOrder{
		ID:              uuid.NewString(),
		OriginalOrderID: o.ID,
		Order:           o.Clone(),
		ArchivedAt:      w.now(),
		ArchivedBy:      actor,
	}
	if err := w.Store.CreateArchive(ctx, a); err != nil {
		return ArchivedOrder{}, &ArchiveError{OrderID: o.ID, Err: err}
	}

	w.Log.Info().
		Str("order", o.OrderNumber).
		Str("archive", a.ID).
		Str("actor", actor).
		Msg("order archived")
	return a, nil
}

func (w *ArchiveWriter) now() time.Time {
	if w.Now == nil {
		return time.Now().UTC()
	}
	return w.Now().UTC()
}
