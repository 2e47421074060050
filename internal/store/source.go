package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klytics/sheetkit/internal/table"
)

const (
	defaultFetchTimeout = 15 * time.Second
	maxSourceBytes      = 50 << 20
)

// HTTPSource downloads a published spreadsheet export with a single GET.
type HTTPSource struct {
	URL       string
	Delimiter byte
	client    *http.Client
}

// NewHTTPSource creates a source for rawURL. A zero timeout uses 15s.
func NewHTTPSource(rawURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTPSource{
		URL:       rawURL,
		Delimiter: delimiterForURL(rawURL),
		client:    &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) String() string { return s.URL }

// Fetch downloads and parses the export. Transport failures, non-2xx
// responses and oversized bodies are reported as *FetchError.
func (s *HTTPSource) Fetch(ctx context.Context) (*table.Dataset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, &FetchError{Source: s.URL, Err: fmt.Errorf("could not create request: %w", err)}
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: s.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{
			Source: s.URL,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(snippet))),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes+1))
	if err != nil {
		return nil, &FetchError{Source: s.URL, Status: resp.StatusCode, Err: fmt.Errorf("could not read response: %w", err)}
	}
	if len(body) > maxSourceBytes {
		return nil, &FetchError{Source: s.URL, Status: resp.StatusCode, Err: fmt.Errorf("response exceeds %d bytes", maxSourceBytes)}
	}

	return table.ParseWith(string(body), table.Options{Delimiter: s.Delimiter}), nil
}

// FileSource reads a local .csv, .tsv or .xlsx file.
type FileSource struct {
	Path  string
	Sheet string
}

func (s *FileSource) String() string { return s.Path }

// Fetch reads and parses the file.
func (s *FileSource) Fetch(_ context.Context) (*table.Dataset, error) {
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".xlsx":
		ds, err := table.ReadXLSXFile(s.Path, s.Sheet)
		if err != nil {
			return nil, &FetchError{Source: s.Path, Err: err}
		}
		return ds, nil
	case ".tsv", ".tab":
		return s.readText('\t')
	default:
		return s.readText(',')
	}
}

func (s *FileSource) readText(delim byte) (*table.Dataset, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, &FetchError{Source: s.Path, Err: err}
	}
	return table.ParseWith(string(data), table.Options{Delimiter: delim}), nil
}

// NewSource picks a source implementation for location: http(s) URLs become
// an HTTPSource, anything else a FileSource.
func NewSource(location string, timeout time.Duration) (Source, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errors.New("no data source configured — set source.url or pass --source")
	}
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		if _, err := url.ParseRequestURI(location); err != nil {
			return nil, fmt.Errorf("invalid source URL %q: %w", location, err)
		}
		return NewHTTPSource(location, timeout), nil
	}
	return &FileSource{Path: location}, nil
}

// delimiterForURL recognizes Google Sheets' tab-separated export.
func delimiterForURL(rawURL string) byte {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ','
	}
	q := u.Query()
	if q.Get("output") == "tsv" || q.Get("format") == "tsv" {
		return '\t'
	}
	return ','
}
