// Package store holds the current dataset for the process and reloads it
// from a configured source. Readers always see a complete dataset: a reload
// builds a new one and publishes it with a single atomic swap.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klytics/sheetkit/internal/table"
)

// ErrSourceFetch matches every *FetchError.
var ErrSourceFetch = errors.New("source fetch failed")

// FetchError reports that the source could not be read. The previously held
// dataset is kept when it occurs.
type FetchError struct {
	Source string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("could not load %s: HTTP %d: %v", e.Source, e.Status, e.Err)
	}
	return fmt.Sprintf("could not load %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSourceFetch) match any FetchError.
func (e *FetchError) Is(target error) bool { return target == ErrSourceFetch }

// Source produces a freshly parsed dataset.
type Source interface {
	Fetch(ctx context.Context) (*table.Dataset, error)
	String() string
}

// Info describes the store's current state.
type Info struct {
	Source    string    `json:"source"`
	Records   int       `json:"records"`
	Columns   int       `json:"columns"`
	LoadedAt  time.Time `json:"loadedAt,omitempty"`
	Loads     int64     `json:"loads"`
	LastError string    `json:"lastError,omitempty"`
}

// Store is the process-wide row store.
type Store struct {
	source  Source
	current atomic.Pointer[table.Dataset]
	loads   atomic.Int64
	now     func() time.Time

	// loadMu serializes reloads so an older fetch cannot overwrite a newer one.
	loadMu  sync.Mutex
	errMu   sync.Mutex
	lastErr error
}

// New creates a store reading from source. source may be nil for a store
// that is only ever filled through Replace.
func New(source Source) *Store {
	s := &Store{source: source, now: time.Now}
	s.current.Store(table.Empty())
	return s
}

// Current returns the published dataset. It is never nil and must not be
// modified.
func (s *Store) Current() *table.Dataset {
	return s.current.Load()
}

// Replace publishes ds as the current dataset.
func (s *Store) Replace(ds *table.Dataset) {
	if ds == nil {
		ds = table.Empty()
	}
	s.current.Store(ds)
}

// Load fetches and parses the source and, only on success, replaces the
// current dataset. It returns the number of records loaded.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.source == nil {
		return 0, &FetchError{Source: "(none)", Err: errors.New("no source configured")}
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	ds, err := s.source.Fetch(ctx)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{Source: s.source.String(), Err: err}
		}
		s.setErr(err)
		return 0, err
	}

	s.current.Store(ds.WithSource(s.source.String(), s.now()))
	s.loads.Add(1)
	s.setErr(nil)
	return ds.Len(), nil
}

// SourceName returns a printable description of the source.
func (s *Store) SourceName() string {
	if s.source == nil {
		return ""
	}
	return s.source.String()
}

// Info returns a snapshot of the store's state.
func (s *Store) Info() Info {
	ds := s.Current()
	info := Info{
		Source:   s.SourceName(),
		Records:  ds.Len(),
		Columns:  len(ds.Headers),
		LoadedAt: ds.LoadedAt,
		Loads:    s.loads.Load(),
	}
	s.errMu.Lock()
	if s.lastErr != nil {
		info.LastError = s.lastErr.Error()
	}
	s.errMu.Unlock()
	return info
}

func (s *Store) setErr(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
}
