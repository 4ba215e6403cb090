package pages

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raaihank/consolemask/internal/dom"
	"github.com/raaihank/consolemask/internal/logger"
)

// ErrNotFound is returned for unknown or expired page IDs.
var ErrNotFound = errors.New("page not found")

// Page is a live document held between commands.
type Page struct {
	ID          string
	Doc         *dom.Document
	CreatedAt   time.Time
	LastUsed    time.Time
	LastCommand string

	mu sync.Mutex
}

// Info is the lock-free view of a page returned to callers.
type Info struct {
	ID          string    `json:"id"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsed    time.Time `json:"last_used"`
	LastCommand string    `json:"last_command,omitempty"`
}

// Registry holds live documents keyed by ID. Each page has its own lock, so
// commands on one page run one at a time while different pages proceed in
// parallel.
type Registry struct {
	mu       sync.Mutex
	pages    map[string]*Page
	ttl      time.Duration
	maxPages int
	now      func() time.Time
	logger   *logger.Logger
}

// NewRegistry creates a registry. ttl <= 0 disables expiry; maxPages <= 0
// disables the capacity bound.
func NewRegistry(ttl time.Duration, maxPages int, log *logger.Logger) *Registry {
	return &Registry{
		pages:    make(map[string]*Page),
		ttl:      ttl,
		maxPages: maxPages,
		now:      time.Now,
		logger:   log,
	}
}

// Add stores doc under a fresh ID. At capacity the least recently used page
// is evicted first.
func (r *Registry) Add(doc *dom.Document) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.maxPages > 0 && len(r.pages) >= r.maxPages {
		r.evictOldestLocked()
	}

	now := r.now()
	id := uuid.New().String()
	r.pages[id] = &Page{ID: id, Doc: doc, CreatedAt: now, LastUsed: now}
	return id
}

// With runs fn on the page while holding that page's lock. command is
// recorded as the page's last command when non-empty.
func (r *Registry) With(ctx context.Context, id, command string, fn func(p *Page) error) error {
	r.mu.Lock()
	page, ok := r.pages[id]
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	page.mu.Lock()
	defer page.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	// The page may have been removed while we waited for its lock.
	r.mu.Lock()
	_, still := r.pages[id]
	if still {
		page.LastUsed = r.now()
		if command != "" {
			page.LastCommand = command
		}
	}
	r.mu.Unlock()
	if !still {
		return ErrNotFound
	}

	return fn(page)
}

// Get returns a snapshot of the page's metadata.
func (r *Registry) Get(id string) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	page, ok := r.pages[id]
	if !ok {
		return Info{}, ErrNotFound
	}
	return infoOf(page), nil
}

// List returns every page, most recently used first.
func (r *Registry) List() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.pages))
	for _, p := range r.pages {
		out = append(out, infoOf(p))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsed.After(out[j].LastUsed)
	})
	return out
}

// Remove drops the page. Commands already holding its lock finish normally.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pages[id]; !ok {
		return ErrNotFound
	}
	delete(r.pages, id)
	return nil
}

// Len reports how many pages are held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

// Expire removes pages idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Expire() int {
	if r.ttl <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	removed := 0
	for id, p := range r.pages {
		if p.LastUsed.Before(cutoff) {
			delete(r.pages, id)
			removed++
		}
	}
	return removed
}

// StartCleanup expires pages every interval until ctx is done.
func (r *Registry) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 || r.ttl <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Expire(); n > 0 {
					r.logger.Debug("Expired idle pages",
						zap.Int("removed", n),
						zap.Int("remaining", r.Len()))
				}
			}
		}
	}()
}

func (r *Registry) evictOldestLocked() {
	var oldest *Page
	for _, p := range r.pages {
		if oldest == nil || p.LastUsed.Before(oldest.LastUsed) {
			oldest = p
		}
	}
	if oldest != nil {
		delete(r.pages, oldest.ID)
		r.logger.Debug("Evicted page at capacity", zap.String("page_id", oldest.ID))
	}
}

func infoOf(p *Page) Info {
	info := Info{
		ID:          p.ID,
		CreatedAt:   p.CreatedAt,
		LastUsed:    p.LastUsed,
		LastCommand: p.LastCommand,
	}
	if p.Doc != nil && p.Doc.URL != nil {
		info.URL = p.Doc.URL.String()
	}
	return info
}
