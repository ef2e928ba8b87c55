package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yourorg/synapse/internal/cache"
)

// ErrEmptyLibrary means no questions are available: the source could not be
// loaded and nothing was loaded before, or it holds no questions.
var ErrEmptyLibrary = errors.New("the library is empty")

var errRetryLater = errors.New("question source failed recently")

const (
	DefaultPageSize = 10
	DefaultTTL      = 5 * time.Minute

	cacheKey   = "questions:all"
	retryDelay = 30 * time.Second
)

type source interface {
	Load(ctx context.Context) ([]Question, error)
	Source() string
}

// Catalog serves queries from a TTL-cached copy of the bank. When a refresh
// fails the last good copy keeps being served.
type Catalog struct {
	loader   source
	cache    *cache.Cache
	pageSize int

	mu       sync.RWMutex
	last     []Question
	loadedAt time.Time
	lastErr  error
	retryAt  time.Time
	now      func() time.Time
}

// New builds a catalog over loader. ttl and pageSize fall back to defaults
// when non-positive.
func New(loader source, ttl time.Duration, pageSize int) *Catalog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Catalog{
		loader:   loader,
		cache:    cache.NewCache(ttl, 2*ttl),
		pageSize: pageSize,
		now:      time.Now,
	}
}

// Questions returns the full bank. After a failed load the source is not
// asked again for retryDelay; the last good copy is served meanwhile.
func (c *Catalog) Questions(ctx context.Context) ([]Question, error) {
	v, err := c.cache.GetOrLoad(cacheKey, func() (any, error) {
		if err := c.retryPending(); err != nil {
			return nil, err
		}
		items, err := c.loader.Load(ctx)
		if err == nil && len(items) == 0 {
			err = fmt.Errorf("%w: %s has no questions", ErrEmptyLibrary, c.loader.Source())
		}
		c.record(items, err)
		if err != nil {
			return nil, err
		}
		log.Printf("[CATALOG] loaded %d questions from %s", len(items), c.loader.Source())
		return items, nil
	})
	if err == nil {
		return v.([]Question), nil
	}

	c.mu.RLock()
	stale := c.last
	c.mu.RUnlock()
	if len(stale) > 0 {
		if !errors.Is(err, errRetryLater) {
			log.Printf("[CATALOG] refresh failed, serving %d cached questions: %v", len(stale), err)
		}
		return stale, nil
	}
	if errors.Is(err, ErrEmptyLibrary) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %v", ErrEmptyLibrary, err)
}

func (c *Catalog) record(items []Question, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
	if err != nil {
		c.retryAt = c.now().Add(retryDelay)
		return
	}
	c.last = items
	c.loadedAt = c.now().UTC()
	c.retryAt = time.Time{}
}

// retryPending returns the last load error while the source is backing off.
func (c *Catalog) retryPending() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastErr == nil || !c.now().Before(c.retryAt) {
		return nil
	}
	return fmt.Errorf("%w: %w", errRetryLater, c.lastErr)
}

// Query filters the bank and returns the requested page. A non-positive
// limit uses the configured page size.
func (c *Catalog) Query(ctx context.Context, f Filter, page, limit int) (Page, error) {
	items, err := c.Questions(ctx)
	if err != nil {
		return Page{}, err
	}
	if limit <= 0 {
		limit = c.pageSize
	}
	return Paginate(f.Apply(items), page, limit), nil
}

func (c *Catalog) Facets(ctx context.Context) (Facets, error) {
	items, err := c.Questions(ctx)
	if err != nil {
		return Facets{}, err
	}
	return BuildFacets(items), nil
}

// Refresh drops the cached copy and any retry backoff so that the next
// query reloads.
func (c *Catalog) Refresh() {
	c.mu.Lock()
	c.retryAt = time.Time{}
	c.mu.Unlock()
	c.cache.Delete(cacheKey)
}

// Status summarises the catalog for health checks.
type Status struct {
	Source    string      `json:"source"`
	Loaded    bool        `json:"loaded"`
	Questions int         `json:"questions"`
	LoadedAt  time.Time   `json:"loaded_at,omitempty"`
	LastError string      `json:"last_error,omitempty"`
	RetryAt   time.Time   `json:"retry_at,omitempty"`
	Cache     cache.Stats `json:"cache"`
}

func (c *Catalog) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Status{
		Source:    c.loader.Source(),
		Loaded:    len(c.last) > 0,
		Questions: len(c.last),
		LoadedAt:  c.loadedAt,
		Cache:     c.cache.GetStats(),
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
		s.RetryAt = c.retryAt
	}
	return s
}

// Close stops the cache sweeper.
func (c *Catalog) Close() {
	c.cache.Stop()
}
