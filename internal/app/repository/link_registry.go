package repository

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/sifan077/tinylink/internal/app/model"
	"github.com/sifan077/tinylink/internal/app/shortcode"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	DefaultListLimit     = 50
	defaultExpectedLinks = 100_000
	bloomFalsePositive   = 0.01
)

// NewLink captures data required to register a link. An empty Code asks the
// registry to generate one.
type NewLink struct {
	Code      string
	URL       string
	ExpiresAt *time.Time
}

// RegistryOptions tunes a LinkRegistry. Zero values select defaults.
type RegistryOptions struct {
	Generator     *shortcode.Generator
	CodeLength    int
	ExpectedLinks uint
	Now           func() time.Time
	Logger        *zap.Logger
}

// LinkRegistry owns the code -> link mapping and writes the full mapping to
// disk after every mutation. Mutations and their write are serialized under
// one lock; readers get copies and never see a half-applied change.
type LinkRegistry struct {
	mu    sync.RWMutex
	links map[string]*model.Link
	order []string
	// seen holds every code ever registered in this process. A negative
	// answer lets generation skip the map; deletions leave stale bits, which
	// only cost a map lookup.
	seen *bloom.BloomFilter

	store      *snapshotFile
	gen        *shortcode.Generator
	codeLength int
	now        func() time.Time
	logger     *zap.Logger
}

// NewLinkRegistry loads the snapshot at path. A missing file yields an empty
// registry.
func NewLinkRegistry(fs afero.Fs, path string, opts RegistryOptions) (*LinkRegistry, error) {
	r := &LinkRegistry{
		store:      &snapshotFile{fs: fs, path: path},
		gen:        opts.Generator,
		codeLength: opts.CodeLength,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	if r.gen == nil {
		r.gen = shortcode.New()
	}
	if r.codeLength <= 0 {
		r.codeLength = shortcode.DefaultLength
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}

	order, links, err := r.store.load()
	if err != nil {
		return nil, fmt.Errorf("load link registry: %w", err)
	}

	expected := opts.ExpectedLinks
	if expected == 0 {
		expected = defaultExpectedLinks
	}
	if n := uint(len(order)) * 2; n > expected {
		expected = n
	}
	r.seen = bloom.NewWithEstimates(expected, bloomFalsePositive)
	for _, code := range order {
		r.seen.AddString(code)
	}
	r.order = order
	r.links = links

	r.logger.Info("link registry loaded", zap.String("path", path), zap.Int("links", len(order)))
	return r, nil
}

// Insert validates and registers a new link, then persists the registry.
func (r *LinkRegistry) Insert(input NewLink) (*model.Link, error) {
	input.URL = strings.TrimSpace(input.URL)
	if err := validateURL(input.URL); err != nil {
		return nil, err
	}
	if input.Code != "" && !shortcode.Valid(input.Code) {
		return nil, ErrInvalidCode
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	code := input.Code
	if code != "" {
		if r.containsLocked(code) {
			return nil, ErrCodeConflict
		}
	} else {
		generated, err := r.gen.Generate(r.codeLength, r.containsLocked)
		if err != nil {
			if errors.Is(err, shortcode.ErrExhausted) {
				return nil, fmt.Errorf("%w: %w", ErrExhaustedKeyspace, err)
			}
			return nil, err
		}
		code = generated
	}

	link := &model.Link{
		Code:      code,
		URL:       input.URL,
		CreatedAt: r.now().UTC(),
		Clicks:    0,
	}
	if input.ExpiresAt != nil {
		expires := input.ExpiresAt.UTC()
		link.ExpiresAt = &expires
	}

	r.links[code] = link
	r.order = append(r.order, code)
	if err := r.persistLocked(); err != nil {
		delete(r.links, code)
		r.order = r.order[:len(r.order)-1]
		return nil, err
	}
	r.seen.AddString(code)

	return link.Clone(), nil
}

// Get returns a copy of the link registered under code.
func (r *LinkRegistry) Get(code string) (*model.Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	link, ok := r.links[code]
	if !ok {
		return nil, ErrLinkNotFound
	}
	return link.Clone(), nil
}

// List returns up to limit links in insertion order. A non-positive limit
// selects DefaultListLimit.
func (r *LinkRegistry) List(limit int) []model.Link {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := min(limit, len(r.order))
	result := make([]model.Link, 0, n)
	for _, code := range r.order[:n] {
		result = append(result, *r.links[code].Clone())
	}
	return result
}

// Len reports how many links are registered.
func (r *LinkRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Delete removes the link registered under code and persists the registry.
func (r *LinkRegistry) Delete(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[code]
	if !ok {
		return ErrLinkNotFound
	}

	prevOrder := r.order
	next := make([]string, 0, len(prevOrder)-1)
	for _, c := range prevOrder {
		if c != code {
			next = append(next, c)
		}
	}

	delete(r.links, code)
	r.order = next
	if err := r.persistLocked(); err != nil {
		r.links[code] = link
		r.order = prevOrder
		return err
	}
	return nil
}

// RecordClick increments the click counter of code and persists the registry.
func (r *LinkRegistry) RecordClick(code string) (*model.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[code]
	if !ok {
		return nil, ErrLinkNotFound
	}

	link.Clicks++
	if err := r.persistLocked(); err != nil {
		link.Clicks--
		return nil, err
	}
	return link.Clone(), nil
}

func (r *LinkRegistry) containsLocked(code string) bool {
	if !r.seen.TestString(code) {
		return false
	}
	_, ok := r.links[code]
	return ok
}

func (r *LinkRegistry) persistLocked() error {
	if err := r.store.save(r.order, r.links); err != nil {
		r.logger.Error("failed to persist link registry",
			zap.String("path", r.store.path),
			zap.Int("links", len(r.order)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidURL
	}
	if parsed.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
