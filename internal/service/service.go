// Package service exposes the query surface the UI layer talks to:
// timeline figures, per-session zoom windows, view toggling, and event
// and annotation mutations. Every write rebuilds both figure descriptors
// before it is acknowledged so the next render sees consistent state.
package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chainsmoker-project/chainsmoker/internal/bus"
	"github.com/chainsmoker-project/chainsmoker/internal/store"
	"github.com/chainsmoker-project/chainsmoker/internal/timeline"
	"github.com/chainsmoker-project/chainsmoker/internal/viewport"
)

// sessionZoom is the last zoom window a session reported, in the
// coordinate space of the view it was recorded against.
type sessionZoom struct {
	View   timeline.View
	Window viewport.Window
}

// Service coordinates the store, the figure builders, and the viewport
// translator. Figures are cached between writes; reads never touch the
// database.
type Service struct {
	store  *store.Store
	bus    bus.Bus
	logger *log.Logger

	mu      sync.RWMutex
	figures timeline.Figures
	zooms   map[string]sessionZoom
}

// New creates a Service and builds the initial figures from the store.
func New(ctx context.Context, st *store.Store, b bus.Bus, logger *log.Logger) (*Service, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if b == nil {
		b = bus.NewNullBus(log.New(io.Discard, "", 0))
	}

	s := &Service{
		store:  st,
		bus:    b,
		logger: logger,
		zooms:  make(map[string]sessionZoom),
	}
	if err := s.rebuild(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// rebuild reloads the event collection and replaces both cached figures.
// Always a full rebuild; there is no incremental path.
func (s *Service) rebuild(ctx context.Context) error {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load events for rebuild: %w", err)
	}
	figs := timeline.Build(events)

	s.mu.Lock()
	s.figures = figs
	s.mu.Unlock()
	return nil
}

// TimelineFigures returns the current figure descriptors for both views.
func (s *Service) TimelineFigures() timeline.Figures {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.figures
}

// NewSession issues a session identifier used to key zoom state.
func (s *Service) NewSession() string {
	return uuid.NewString()
}

// SetZoomWindow stores a session's current zoom window, replacing any
// previous one. The window is expressed in the given view's coordinates.
func (s *Service) SetZoomWindow(session string, view timeline.View, win viewport.Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zooms[session] = sessionZoom{View: view, Window: win}
}

// ClearZoom forgets a session's zoom window (double-click reset).
func (s *Service) ClearZoom(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.zooms, session)
}

// ZoomWindow returns the stored window for a session, if any.
func (s *Service) ZoomWindow(session string) (timeline.View, viewport.Window, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zooms[session]
	return z.View, z.Window, ok
}

// ToggleView flips between the compact and full views. When the session
// has a stored zoom window it is translated into the next view's
// coordinate space so the same tactic rows stay on screen; otherwise the
// next view renders at its default extent and the returned window is nil.
func (s *Service) ToggleView(session string, current timeline.View) (timeline.View, *viewport.Window) {
	next := timeline.ViewFull
	if current == timeline.ViewFull {
		next = timeline.ViewCompact
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zooms[session]
	if !ok {
		return next, nil
	}

	from := s.figures.CategoryList(z.View)
	to := s.figures.CategoryList(next)

	translated, fallbacks, err := viewport.Translate(z.Window, from, to)
	if err != nil {
		// No shared rows; drop the stored zoom and render full extent.
		s.logger.Printf("zoom translation impossible (%v), resetting view", err)
		delete(s.zooms, session)
		return next, nil
	}
	for _, f := range fallbacks {
		s.logger.Printf("zoom translation fallback: %s", f)
	}

	s.zooms[session] = sessionZoom{View: next, Window: translated}
	return next, &translated
}

// AddEvent validates and stores a new event, then rebuilds both figures
// before acknowledging the write.
func (s *Service) AddEvent(ctx context.Context, f store.EventFields, actor string) (*store.Event, error) {
	ev, err := s.store.AddEvent(ctx, f)
	if err != nil {
		return nil, err
	}
	if err := s.rebuild(ctx); err != nil {
		return nil, err
	}

	s.audit(ctx, store.AuditEntry{
		EventID: ev.ID,
		Action:  "add_event",
		Actor:   actor,
		Details: map[string]string{"tactic": ev.Tactic, "chain": ev.ChainID},
	})
	s.publish(ctx, bus.ChangeMessage{
		Action:  "event_added",
		EventID: ev.ID,
		ChainID: ev.ChainID,
		Tactic:  ev.Tactic,
		Actor:   actor,
	})
	return ev, nil
}

// DeleteEvent removes an event and its annotations, then rebuilds.
func (s *Service) DeleteEvent(ctx context.Context, id int64, actor string) error {
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		return err
	}
	if err := s.rebuild(ctx); err != nil {
		return err
	}

	s.audit(ctx, store.AuditEntry{
		EventID: id,
		Action:  "delete_event",
		Actor:   actor,
	})
	s.publish(ctx, bus.ChangeMessage{
		Action:  "event_deleted",
		EventID: id,
		Actor:   actor,
	})
	return nil
}

// AddAnnotation appends a note to an event and returns the event's
// ordered annotation list. Annotations don't alter the figures, so no
// rebuild happens.
func (s *Service) AddAnnotation(ctx context.Context, eventID int64, f store.AnnotationFields) ([]store.Annotation, error) {
	annotations, err := s.store.AddAnnotation(ctx, eventID, f)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, store.AuditEntry{
		EventID: eventID,
		Action:  "add_annotation",
		Actor:   f.Author,
	})
	s.publish(ctx, bus.ChangeMessage{
		Action:  "annotation_added",
		EventID: eventID,
		Actor:   f.Author,
	})
	return annotations, nil
}

// ListAnnotations returns an event's notes ordered by creation time.
func (s *Service) ListAnnotations(ctx context.Context, eventID int64) ([]store.Annotation, error) {
	return s.store.ListAnnotations(ctx, eventID)
}

// GetEvent resolves a clicked point's id back to its record.
func (s *Service) GetEvent(ctx context.Context, id int64) (*store.Event, error) {
	return s.store.GetEvent(ctx, id)
}

// ListEvents returns all events in plot order.
func (s *Service) ListEvents(ctx context.Context) ([]store.Event, error) {
	return s.store.ListEvents(ctx)
}

// ListAudit returns the most recent audit entries, newest first.
func (s *Service) ListAudit(ctx context.Context, limit int) ([]store.AuditEntry, error) {
	return s.store.ListAudit(ctx, limit)
}

// ImportResult summarizes a bulk insert.
type ImportResult struct {
	Added   int
	Skipped int
	Errors  []error
}

// ImportRecords bulk-inserts event-shaped records from an external
// source (spreadsheet import or the case-management feed). Rows that
// fail validation are skipped and reported; one rebuild runs at the end.
func (s *Service) ImportRecords(ctx context.Context, records []store.EventFields, actor string) (*ImportResult, error) {
	result := &ImportResult{}
	for _, rec := range records {
		if _, err := s.store.ImportEvent(ctx, rec); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Added++
	}

	if err := s.rebuild(ctx); err != nil {
		return nil, err
	}

	s.audit(ctx, store.AuditEntry{
		Action: "import",
		Actor:  actor,
		Details: map[string]string{
			"added":   fmt.Sprintf("%d", result.Added),
			"skipped": fmt.Sprintf("%d", result.Skipped),
		},
	})
	return result, nil
}

// audit records an entry; failures are logged, never propagated.
func (s *Service) audit(ctx context.Context, entry store.AuditEntry) {
	if err := s.store.RecordAudit(ctx, entry); err != nil {
		s.logger.Printf("audit write failed: %v", err)
	}
}

// publish sends a change notification; delivery is best-effort.
func (s *Service) publish(ctx context.Context, msg bus.ChangeMessage) {
	msg.Timestamp = time.Now().Unix()
	if err := s.bus.PublishChange(ctx, msg); err != nil {
		s.logger.Printf("change publish failed: %v", err)
	}
}
