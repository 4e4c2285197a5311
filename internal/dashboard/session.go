package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"orderlens/internal/aggregate"
	"orderlens/internal/filter"
	"orderlens/internal/storage"
)

// Session is the single-user dashboard state: the loaded dataset, the
// current filter and view, and the background recomputation they drive.
// Every change submits a new recomputation.
type Session struct {
	store      storage.Store
	engine     *Engine
	recomputer *Recomputer
	defaults   View
	now        func() time.Time

	mu   sync.Mutex
	spec filter.Spec
	view View
}

// NewSession starts with the default filter for the current time.
func NewSession(store storage.Store, engine *Engine, recomputer *Recomputer, defaults View, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		store:      store,
		engine:     engine,
		recomputer: recomputer,
		defaults:   defaults,
		now:        now,
		spec:       filter.Default(now()),
		view:       defaults,
	}
}

// Load replaces the dataset and resets filter and view, as if the
// dashboard were opened fresh on the new file. When the store rejects the
// dataset the previous state is kept.
func (s *Session) Load(ctx context.Context, ds storage.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Replace(ctx, ds); err != nil {
		return fmt.Errorf("replace dataset: %w", err)
	}
	s.engine.Purge()
	s.spec = filter.Default(s.now())
	s.view = s.defaults.resolveColumn(aggregate.Columns(ds.Orders))
	s.recomputer.Submit(Request{Dataset: ds, Spec: s.spec, View: s.view})
	return nil
}

// Dataset returns the current dataset or storage.ErrNoDataset.
func (s *Session) Dataset(ctx context.Context) (storage.Dataset, error) {
	return s.store.Current(ctx)
}

func (s *Session) Filter() filter.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// UpdateFilter replaces the filter with fn's result. A failing fn leaves
// the filter untouched.
func (s *Session) UpdateFilter(ctx context.Context, fn func(filter.Spec) (filter.Spec, error)) (filter.Spec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.spec)
	if err != nil {
		return s.spec, err
	}
	s.spec = next
	if err := s.submitLocked(ctx); err != nil {
		return s.spec, err
	}
	return s.spec, nil
}

// SetView validates and applies v.
func (s *Session) SetView(ctx context.Context, v View) (View, error) {
	if err := v.Validate(); err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.view = v
	if err := s.submitLocked(ctx); err != nil {
		return s.view, err
	}
	return s.view, nil
}

// submitLocked schedules a recomputation when a dataset is loaded. s.mu
// must be held.
func (s *Session) submitLocked(ctx context.Context) error {
	ds, err := s.store.Current(ctx)
	if errors.Is(err, storage.ErrNoDataset) {
		return nil
	}
	if err != nil {
		return err
	}
	s.recomputer.Submit(Request{Dataset: ds, Spec: s.spec, View: s.view})
	return nil
}

// Snapshot waits for the newest recomputation.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	snap, err := s.recomputer.Wait(ctx)
	if errors.Is(err, ErrNothingSubmitted) {
		return Snapshot{}, storage.ErrNoDataset
	}
	return snap, err
}

// Generation is the number of the newest submitted recomputation.
func (s *Session) Generation() uint64 {
	return s.recomputer.Generation()
}
