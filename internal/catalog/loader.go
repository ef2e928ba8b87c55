package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var (
	ErrEmptySource = errors.New("catalog: question source is empty")
	ErrTooLarge    = errors.New("catalog: question source exceeds size limit")
)

const maxDownload = 32 << 20

// Loader fetches the question bank from an HTTP(S) URL or a local file.
type Loader struct {
	source     string
	httpClient *http.Client
	maxBytes   int64
}

func NewLoader(source string, client *http.Client) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Loader{
		source:     strings.TrimSpace(source),
		httpClient: client,
		maxBytes:   maxDownload,
	}
}

func (l *Loader) Source() string { return l.source }

// Load reads and parses the whole bank.
func (l *Loader) Load(ctx context.Context) ([]Question, error) {
	data, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	return ParseCSV(bytes.NewReader(data))
}

func (l *Loader) read(ctx context.Context) ([]byte, error) {
	if l.source == "" {
		return nil, ErrEmptySource
	}
	if isRemote(l.source) {
		return l.download(ctx, l.source)
	}
	f, err := os.Open(l.source)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", l.source, err)
	}
	defer f.Close()
	return l.readLimited(f, l.source)
}

func (l *Loader) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build request for %s: %w", url, err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("catalog: download %s: status %d", url, resp.StatusCode)
	}
	return l.readLimited(resp.Body, url)
}

// readLimited fails instead of truncating a source larger than maxBytes.
func (l *Loader) readLimited(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", name, err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w: %s is over %d bytes", ErrTooLarge, name, l.maxBytes)
	}
	return data, nil
}

func isRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
