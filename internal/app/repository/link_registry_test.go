package repository

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sifan077/tinylink/internal/app/model"
	"github.com/sifan077/tinylink/internal/app/shortcode"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLinksPath = "/data/links.json"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T, fs afero.Fs, opts RegistryOptions) *LinkRegistry {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	r, err := NewLinkRegistry(fs, testLinksPath, opts)
	require.NoError(t, err)
	return r
}

func assertSameLink(t *testing.T, want, got model.Link) {
	t.Helper()
	assert.Equal(t, want.Code, got.Code)
	assert.Equal(t, want.URL, got.URL)
	assert.Equal(t, want.Clicks, got.Clicks)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", want.CreatedAt, got.CreatedAt)
	if want.ExpiresAt == nil {
		assert.Nil(t, got.ExpiresAt)
	} else {
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, want.ExpiresAt.Equal(*got.ExpiresAt))
	}
}

func TestLinkRegistry_MissingFileIsEmpty(t *testing.T) {
	r := newTestRegistry(t, afero.NewMemMapFs(), RegistryOptions{})
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.List(0))
}

func TestLinkRegistry_InsertGeneratedCode(t *testing.T) {
	r := newTestRegistry(t, afero.NewMemMapFs(), RegistryOptions{})

	link, err := r.Insert(NewLink{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Len(t, link.Code, 6)
	assert.True(t, shortcode.Valid(link.Code))
	assert.Equal(t, int64(0), link.Clicks)
	assert.True(t, testNow.Equal(link.CreatedAt))

	got, err := r.Get(link.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Clicks)

	updated, err := r.RecordClick(link.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Clicks)

	got, err = r.Get(link.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Clicks)
}

func TestLinkRegistry_GeneratedCodeAvoidsExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := bytes.NewReader([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1})
	r := newTestRegistry(t, fs, RegistryOptions{Generator: shortcode.New(shortcode.WithRandom(src))})

	first, err := r.Insert(NewLink{URL: "https://example.com/1"})
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first.Code)

	second, err := r.Insert(NewLink{URL: "https://example.com/2"})
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", second.Code)
}

func TestLinkRegistry_InsertExhausted(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := bytes.NewReader(bytes.Repeat([]byte{0}, 64))
	gen := shortcode.New(shortcode.WithRandom(src), shortcode.WithMaxAttempts(3))
	r := newTestRegistry(t, fs, RegistryOptions{Generator: gen, CodeLength: 2})

	_, err := r.Insert(NewLink{Code: "AA", URL: "https://example.com"})
	require.NoError(t, err)

	_, err = r.Insert(NewLink{URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrExhaustedKeyspace)
	assert.Equal(t, 1, r.Len())
}

func TestLinkRegistry_InsertErrors(t *testing.T) {
	r := newTestRegistry(t, afero.NewMemMapFs(), RegistryOptions{})

	_, err := r.Insert(NewLink{Code: "promo1", URL: "https://example.com/sale"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   NewLink
		wantErr error
	}{
		{name: "duplicate custom code", input: NewLink{Code: "promo1", URL: "https://example.com/other"}, wantErr: ErrCodeConflict},
		{name: "ftp scheme", input: NewLink{URL: "ftp://example.com"}, wantErr: ErrInvalidURL},
		{name: "no scheme", input: NewLink{URL: "example.com"}, wantErr: ErrInvalidURL},
		{name: "no host", input: NewLink{URL: "https://"}, wantErr: ErrInvalidURL},
		{name: "javascript scheme", input: NewLink{URL: "javascript:alert(1)"}, wantErr: ErrInvalidURL},
		{name: "hyphenated code", input: NewLink{Code: "my-code", URL: "https://example.com"}, wantErr: ErrInvalidCode},
		{name: "code with slash", input: NewLink{Code: "a/b", URL: "https://example.com"}, wantErr: ErrInvalidCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Insert(tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, 1, r.Len())
}

func TestLinkRegistry_CodesAreCaseSensitive(t *testing.T) {
	r := newTestRegistry(t, afero.NewMemMapFs(), RegistryOptions{})

	_, err := r.Insert(NewLink{Code: "abc123", URL: "https://example.com/lower"})
	require.NoError(t, err)
	_, err = r.Insert(NewLink{Code: "ABC123", URL: "https://example.com/upper"})
	require.NoError(t, err)

	lower, err := r.Get("abc123")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/lower", lower.URL)
}

func TestLinkRegistry_GetIsIdempotentAndIsolated(t *testing.T) {
	r := newTestRegistry(t, afero.NewMemMapFs(), RegistryOptions{})
	_, err := r.Insert(NewLink{Code: "same", URL: "https://example.com"})
	require.NoError(t, err)

	a, err := r.Get("same")
	require.NoError(t, err)
	b, err := r.Get("same")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	a.Clicks = 99
	c, err := r.Get("same")
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Clicks, "mutating a returned record must not leak into the registry")
}

func TestLinkRegistry_NotFound(t *testing.T) {
	r := newTestRegistry(t, afero.NewMemMapFs(), RegistryOptions{})

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrLinkNotFound)
	_, err = r.RecordClick("missing")
	assert.ErrorIs(t, err, ErrLinkNotFound)
	assert.ErrorIs(t, r.Delete("missing"), ErrLinkNotFound)
}

func TestLinkRegistry_ListInsertionOrderAndLimit(t *testing.T) {
	r := newTestRegistry(t, afero.NewMemMapFs(), RegistryOptions{})
	codes := []string{"zeta", "alpha", "mid", "Beta"}
	for _, c := range codes {
		_, err := r.Insert(NewLink{Code: c, URL: "https://example.com/" + c})
		require.NoError(t, err)
	}

	all := r.List(0)
	require.Len(t, all, 4)
	for i, c := range codes {
		assert.Equal(t, c, all[i].Code)
	}

	two := r.List(2)
	require.Len(t, two, 2)
	assert.Equal(t, "zeta", two[0].Code)
	assert.Equal(t, "alpha", two[1].Code)
}

func TestLinkRegistry_ListDefaultLimit(t *testing.T) {
	r := newTestRegistry(t, afero.NewMemMapFs(), RegistryOptions{})
	for i := 0; i < DefaultListLimit+5; i++ {
		_, err := r.Insert(NewLink{Code: fmt.Sprintf("c%d", i), URL: "https://example.com"})
		require.NoError(t, err)
	}
	assert.Len(t, r.List(0), DefaultListLimit)
	assert.Equal(t, DefaultListLimit+5, r.Len())
}

func TestLinkRegistry_Delete(t *testing.T) {
	fs := afero.NewMemMapFs()
	r := newTestRegistry(t, fs, RegistryOptions{})
	for _, c := range []string{"one", "two", "three"} {
		_, err := r.Insert(NewLink{Code: c, URL: "https://example.com"})
		require.NoError(t, err)
	}

	require.NoError(t, r.Delete("two"))
	_, err := r.Get("two")
	assert.ErrorIs(t, err, ErrLinkNotFound)

	list := r.List(0)
	require.Len(t, list, 2)
	assert.Equal(t, "one", list[0].Code)
	assert.Equal(t, "three", list[1].Code)

	// A deleted code may be registered again.
	_, err = r.Insert(NewLink{Code: "two", URL: "https://example.com/again"})
	require.NoError(t, err)

	reloaded := newTestRegistry(t, fs, RegistryOptions{})
	codes := make([]string, 0)
	for _, l := range reloaded.List(0) {
		codes = append(codes, l.Code)
	}
	assert.Equal(t, []string{"one", "three", "two"}, codes)
}

func TestLinkRegistry_PersistRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	r := newTestRegistry(t, fs, RegistryOptions{})

	expires := testNow.Add(48 * time.Hour)
	_, err := r.Insert(NewLink{Code: "first", URL: "https://example.com/a"})
	require.NoError(t, err)
	_, err = r.Insert(NewLink{Code: "second", URL: "http://example.com/b?q=1&r=2", ExpiresAt: &expires})
	require.NoError(t, err)
	_, err = r.RecordClick("first")
	require.NoError(t, err)
	_, err = r.RecordClick("first")
	require.NoError(t, err)

	reloaded := newTestRegistry(t, fs, RegistryOptions{})
	want := r.List(0)
	got := reloaded.List(0)
	require.Len(t, got, len(want))
	for i := range want {
		assertSameLink(t, want[i], got[i])
	}
}

func TestLinkRegistry_LoadsLegacyDocument(t *testing.T) {
	fs := afero.NewMemMapFs()
	doc := `{
  "zz9": {"url": "https://example.com/z", "created_at": "2024-01-02T03:04:05.123456", "expires_at": null, "clicks": 4},
  "aa1": {"url": "https://example.com/a", "created_at": "2024-01-03T00:00:00", "expires_at": "2030-01-01T00:00:00", "clicks": 0}
}`
	require.NoError(t, afero.WriteFile(fs, testLinksPath, []byte(doc), 0o644))

	r := newTestRegistry(t, fs, RegistryOptions{})
	list := r.List(0)
	require.Len(t, list, 2)
	assert.Equal(t, "zz9", list[0].Code)
	assert.Equal(t, int64(4), list[0].Clicks)
	assert.Nil(t, list[0].ExpiresAt)
	assert.Equal(t, "aa1", list[1].Code)
	require.NotNil(t, list[1].ExpiresAt)
	assert.Equal(t, 2030, list[1].ExpiresAt.Year())

	_, err := r.Insert(NewLink{Code: "zz9", URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrCodeConflict)
}

func TestLinkRegistry_CorruptDocument(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testLinksPath, []byte(`{"abc": {"url": `), 0o644))

	_, err := NewLinkRegistry(fs, testLinksPath, RegistryOptions{})
	assert.Error(t, err)
}

func TestLinkRegistry_PersistenceFailureRollsBack(t *testing.T) {
	base := afero.NewMemMapFs()
	seed := newTestRegistry(t, base, RegistryOptions{})
	_, err := seed.Insert(NewLink{Code: "kept", URL: "https://example.com"})
	require.NoError(t, err)

	r := newTestRegistry(t, afero.NewReadOnlyFs(base), RegistryOptions{})
	require.Equal(t, 1, r.Len())

	_, err = r.Insert(NewLink{Code: "fresh", URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrPersistence)
	_, err = r.Get("fresh")
	assert.ErrorIs(t, err, ErrLinkNotFound, "a failed insert must not stay visible")

	_, err = r.RecordClick("kept")
	assert.ErrorIs(t, err, ErrPersistence)
	kept, err := r.Get("kept")
	require.NoError(t, err)
	assert.Equal(t, int64(0), kept.Clicks)

	assert.ErrorIs(t, r.Delete("kept"), ErrPersistence)
	_, err = r.Get("kept")
	assert.NoError(t, err)
	assert.Equal(t, 1, r.Len())
}

func TestLinkRegistry_ConcurrentClicks(t *testing.T) {
	fs := afero.NewMemMapFs()
	r := newTestRegistry(t, fs, RegistryOptions{})
	_, err := r.Insert(NewLink{Code: "hot", URL: "https://example.com"})
	require.NoError(t, err)

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := r.RecordClick("hot")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := r.Get("hot")
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.Clicks)

	reloaded := newTestRegistry(t, fs, RegistryOptions{})
	persisted, err := reloaded.Get("hot")
	require.NoError(t, err)
	assert.Equal(t, int64(n), persisted.Clicks)
}

func TestLinkRegistry_ConcurrentInsertsAndReads(t *testing.T) {
	r := newTestRegistry(t, afero.NewMemMapFs(), RegistryOptions{})

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n * 2)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := r.Insert(NewLink{URL: "https://example.com"})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			for _, l := range r.List(0) {
				assert.NotEmpty(t, l.Code)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, n, r.Len())
}
