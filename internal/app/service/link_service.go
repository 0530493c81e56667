package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sifan077/tinylink/internal/app/model"
	"github.com/sifan077/tinylink/internal/app/repository"
	"go.uber.org/zap"
)

// reservedCodes are top-level path segments owned by the HTTP layer. Routing
// is case-insensitive, so they are matched case-insensitively too.
var reservedCodes = []string{"api", "health"}

// IsReservedCode reports whether code collides with a fixed route.
func IsReservedCode(code string) bool {
	for _, reserved := range reservedCodes {
		if strings.EqualFold(code, reserved) {
			return true
		}
	}
	return false
}

// LinkRegistry is the registry contract the services depend on.
// *repository.LinkRegistry implements it.
type LinkRegistry interface {
	Insert(input repository.NewLink) (*model.Link, error)
	Get(code string) (*model.Link, error)
	List(limit int) []model.Link
	Len() int
	Delete(code string) error
	RecordClick(code string) (*model.Link, error)
}

// ClickLedger is the click-log contract. *repository.ClickLedger implements it.
type ClickLedger interface {
	Append(event model.ClickEvent) error
	Aggregate(code string) (model.ClickStats, error)
}

// Metrics receives business signals. *prometheus.Metrics implements it.
type Metrics interface {
	LinkCreated(total int)
	LinkDeleted(total int)
	Redirect(outcome string)
	ClickLogFailed()
	ClickMirrorFailed()
}

type nopMetrics struct{}

func (nopMetrics) LinkCreated(int) {}
func (nopMetrics) LinkDeleted(int) {}
func (nopMetrics) Redirect(string) {}
func (nopMetrics) ClickLogFailed() {}
func (nopMetrics) ClickMirrorFailed() {}

// LinkService defines behaviour-level operations on links.
type LinkService interface {
	CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error)
	GetLink(ctx context.Context, code string) (*model.Link, error)
	ListLinks(ctx context.Context, limit int) (*LinkPage, error)
	DeleteLink(ctx context.Context, code string) error
	LinkStats(ctx context.Context, code string) (*LinkStats, error)
	CountLinks() int
}

// CreateLinkInput captures data required to create a link.
type CreateLinkInput struct {
	Code      string
	URL       string
	ExpiresAt *time.Time
}

// LinkPage is a truncated listing plus the registry size.
type LinkPage struct {
	Links []model.Link
	Total int
}

// LinkStats combines a link with its logged clicks. Archived is nil unless
// the Postgres click archive is enabled and answered.
type LinkStats struct {
	Link     *model.Link
	Clicks   model.ClickStats
	Archived *int64
}

// ClickArchive counts clicks mirrored to long-term storage.
// repository.ClickArchiveRepository implements it.
type ClickArchive interface {
	CountByCode(ctx context.Context, code string) (int64, error)
}

// LinkServiceOption customises NewLinkService.
type LinkServiceOption func(*linkService)

// WithClickArchive adds the archived click count to LinkStats. Archive
// failures are logged and leave the count unset.
func WithClickArchive(archive ClickArchive, logger *zap.Logger) LinkServiceOption {
	return func(s *linkService) {
		s.archive = archive
		if logger != nil {
			s.logger = logger
		}
	}
}

type linkService struct {
	links   LinkRegistry
	clicks  ClickLedger
	metrics Metrics
	archive ClickArchive
	logger  *zap.Logger
}

// NewLinkService returns a service backed by the given registry and ledger.
// metrics may be nil.
func NewLinkService(links LinkRegistry, clicks ClickLedger, metrics Metrics, opts ...LinkServiceOption) LinkService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	s := &linkService{links: links, clicks: clicks, metrics: metrics, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *linkService) CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error) {
	if IsReservedCode(input.Code) {
		return nil, fmt.Errorf("create link: %q is reserved: %w", input.Code, repository.ErrInvalidCode)
	}
	link, err := s.links.Insert(repository.NewLink{
		Code:      input.Code,
		URL:       input.URL,
		ExpiresAt: input.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}
	s.metrics.LinkCreated(s.links.Len())
	return link, nil
}

func (s *linkService) GetLink(ctx context.Context, code string) (*model.Link, error) {
	link, err := s.links.Get(code)
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

func (s *linkService) ListLinks(ctx context.Context, limit int) (*LinkPage, error) {
	return &LinkPage{
		Links: s.links.List(limit),
		Total: s.links.Len(),
	}, nil
}

func (s *linkService) DeleteLink(ctx context.Context, code string) error {
	if err := s.links.Delete(code); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	s.metrics.LinkDeleted(s.links.Len())
	return nil
}

// LinkStats fails with repository.ErrLinkNotFound for unknown codes even if
// old clicks for the code are still logged.
func (s *linkService) LinkStats(ctx context.Context, code string) (*LinkStats, error) {
	link, err := s.links.Get(code)
	if err != nil {
		return nil, fmt.Errorf("link stats: %w", err)
	}
	clicks, err := s.clicks.Aggregate(code)
	if err != nil {
		return nil, fmt.Errorf("link stats: aggregate clicks: %w", err)
	}
	stats := &LinkStats{Link: link, Clicks: clicks}
	if s.archive != nil {
		archived, err := s.archive.CountByCode(ctx, code)
		if err != nil {
			s.logger.Warn("failed to count archived clicks", zap.String("code", code), zap.Error(err))
		} else {
			stats.Archived = &archived
		}
	}
	return stats, nil
}

func (s *linkService) CountLinks() int {
	return s.links.Len()
}
