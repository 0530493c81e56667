package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sifan077/tinylink/internal/app/model"
	"github.com/sifan077/tinylink/internal/app/repository"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

var serviceNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	fs       afero.Fs
	registry *repository.LinkRegistry
	ledger   *repository.ClickLedger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	registry, err := repository.NewLinkRegistry(fs, "/data/links.json", repository.RegistryOptions{
		Now: func() time.Time { return serviceNow },
	})
	require.NoError(t, err)
	return fixture{
		fs:       fs,
		registry: registry,
		ledger:   repository.NewClickLedger(fs, "/data/clicks", nil, nil),
	}
}

type failingLedger struct {
	ClickLedger
	appends int
}

func (l *failingLedger) Append(model.ClickEvent) error {
	l.appends++
	return &repository.PersistenceError{Op: "append click", Err: errors.New("disk full")}
}

type recordingMirror struct {
	mu     sync.Mutex
	events []model.ClickEvent
	err    error
}

func (m *recordingMirror) Publish(_ context.Context, event model.ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

type failingArchive struct {
	err error
}

func (a *failingArchive) CountByCode(context.Context, string) (int64, error) {
	return 0, a.err
}
