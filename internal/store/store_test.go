package store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klytics/sheetkit/internal/table"
)

func TestCurrentBeforeLoad(t *testing.T) {
	s := New(nil)
	ds := s.Current()
	if ds == nil {
		t.Fatal("Current should never be nil")
	}
	if !ds.IsEmpty() {
		t.Errorf("expected empty dataset, got %d rows", ds.Len())
	}
}

func TestLoadFromHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("name,age\nAda,30\nLin,25\n"))
	}))
	defer srv.Close()

	s := New(NewHTTPSource(srv.URL, time.Second))
	n, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Load returned %d, want 2", n)
	}

	ds := s.Current()
	if ds.Source != srv.URL {
		t.Errorf("source = %q", ds.Source)
	}
	if ds.LoadedAt.IsZero() {
		t.Error("expected LoadedAt to be set")
	}
	if ds.Rows[0].Get("name") != "Ada" {
		t.Errorf("first row = %+v", ds.Rows[0])
	}
}

func TestFailedLoadKeepsPreviousDataset(t *testing.T) {
	var mu sync.Mutex
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("a\n1\n2\n3\n"))
	}))
	defer srv.Close()

	s := New(NewHTTPSource(srv.URL, time.Second))
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := s.Current()

	mu.Lock()
	fail = true
	mu.Unlock()

	_, err := s.Load(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrSourceFetch) {
		t.Errorf("expected ErrSourceFetch, got %v", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusServiceUnavailable {
		t.Errorf("expected FetchError with status 503, got %#v", err)
	}
	if s.Current() != before {
		t.Error("failed load replaced the dataset")
	}
	if s.Info().LastError == "" {
		t.Error("expected last error to be recorded")
	}
}

func TestLoadUnreachableSource(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := New(NewHTTPSource(url, 500*time.Millisecond))
	if _, err := s.Load(context.Background()); !errors.Is(err, ErrSourceFetch) {
		t.Errorf("expected ErrSourceFetch, got %v", err)
	}
}

func TestLoadWithoutSource(t *testing.T) {
	s := New(nil)
	if _, err := s.Load(context.Background()); !errors.Is(err, ErrSourceFetch) {
		t.Errorf("expected ErrSourceFetch, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "data.csv")
	os.WriteFile(csvPath, []byte("k,v\na,1\n"), 0644)
	tsvPath := filepath.Join(dir, "data.tsv")
	os.WriteFile(tsvPath, []byte("k\tv\na,b\t2\n"), 0644)
	xlsxPath := filepath.Join(dir, "data.xlsx")
	if err := table.Parse("k,v\nx,9\ny,8\n").WriteXLSXFile(xlsxPath, ""); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path  string
		count int
		key   string
		value string
	}{
		{csvPath, 1, "v", "1"},
		{tsvPath, 1, "k", "a,b"},
		{xlsxPath, 2, "v", "9"},
	}
	for _, tt := range tests {
		src, err := NewSource(tt.path, 0)
		if err != nil {
			t.Fatal(err)
		}
		s := New(src)
		n, err := s.Load(context.Background())
		if err != nil {
			t.Fatalf("%s: %v", tt.path, err)
		}
		if n != tt.count {
			t.Errorf("%s: count = %d, want %d", tt.path, n, tt.count)
		}
		if got := s.Current().Rows[0].Get(tt.key); got != tt.value {
			t.Errorf("%s: %s = %q, want %q", tt.path, tt.key, got, tt.value)
		}
	}

	s := New(&FileSource{Path: filepath.Join(dir, "missing.csv")})
	if _, err := s.Load(context.Background()); !errors.Is(err, ErrSourceFetch) {
		t.Errorf("expected ErrSourceFetch for missing file, got %v", err)
	}
}

func TestNewSource(t *testing.T) {
	if _, err := NewSource("", 0); err == nil {
		t.Error("expected error for empty location")
	}

	src, err := NewSource("https://docs.google.com/spreadsheets/d/e/x/pub?output=tsv", 0)
	if err != nil {
		t.Fatal(err)
	}
	hs, ok := src.(*HTTPSource)
	if !ok {
		t.Fatalf("expected *HTTPSource, got %T", src)
	}
	if hs.Delimiter != '\t' {
		t.Errorf("delimiter = %q, want tab", hs.Delimiter)
	}

	src, err = NewSource("./sheet.csv", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*FileSource); !ok {
		t.Errorf("expected *FileSource, got %T", src)
	}
}

func TestConcurrentReadsDuringReload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("a,b\n1,2\n3,4\n"))
	}))
	defer srv.Close()

	s := New(NewHTTPSource(srv.URL, time.Second))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				s.Load(ctx)
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				ds := s.Current()
				if n := ds.Len(); n != 0 && n != 2 {
					t.Errorf("observed partial dataset with %d rows", n)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := s.Info().Loads; got != 20 {
		t.Errorf("loads = %d, want 20", got)
	}
}
