package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sifan077/tinylink/internal/app/model"
	"github.com/sifan077/tinylink/internal/app/repository"
	"github.com/sifan077/tinylink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// ClickMirror forwards logged clicks to an external consumer.
type ClickMirror interface {
	Publish(ctx context.Context, event model.ClickEvent) error
}

// Visitor describes the client behind a redirect request.
type Visitor struct {
	IP        string
	UserAgent string
	Referer   string
}

// RedirectDeps groups dependencies required by RedirectService.
type RedirectDeps struct {
	Logger  *zap.Logger
	Links   LinkRegistry
	Clicks  ClickLedger
	Mirror  ClickMirror
	Metrics Metrics
	Now     func() time.Time
}

// RedirectService resolves a code for a visitor: lookup, expiry check, click
// increment, then click log append.
type RedirectService struct {
	logger  *zap.Logger
	links   LinkRegistry
	clicks  ClickLedger
	mirror  ClickMirror
	metrics Metrics
	now     func() time.Time
}

// NewRedirectService creates a redirect service with the provided dependencies.
func NewRedirectService(deps RedirectDeps) *RedirectService {
	s := &RedirectService{
		logger:  deps.Logger,
		links:   deps.Links,
		clicks:  deps.Clicks,
		mirror:  deps.Mirror,
		metrics: deps.Metrics,
		now:     deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Resolve returns the link to redirect to and counts the click.
//
// Expired links fail with repository.ErrLinkExpired before anything is
// mutated. Once the click count is persisted it stands: a failed log append
// is reported and swallowed.
func (s *RedirectService) Resolve(ctx context.Context, code string, visitor Visitor) (*model.Link, error) {
	link, err := s.links.Get(code)
	if err != nil {
		s.observe(err)
		return nil, fmt.Errorf("resolve %q: %w", code, err)
	}

	now := s.now().UTC()
	if link.IsExpired(now) {
		s.observe(repository.ErrLinkExpired)
		return nil, fmt.Errorf("resolve %q: %w", code, repository.ErrLinkExpired)
	}

	updated, err := s.links.RecordClick(code)
	if err != nil {
		s.observe(err)
		return nil, fmt.Errorf("resolve %q: record click: %w", code, err)
	}

	event := model.NewClickEvent(code, now, visitor.IP, visitor.UserAgent, visitor.Referer)
	if err := s.clicks.Append(event); err != nil {
		s.metrics.ClickLogFailed()
		s.logger.Warn("failed to append click event",
			zap.String("code", code),
			zap.Int64("clicks", updated.Clicks),
			zap.Error(err),
		)
	} else if s.mirror != nil {
		if err := s.mirror.Publish(ctx, event); err != nil {
			s.metrics.ClickMirrorFailed()
			s.logger.Warn("failed to publish click event", zap.String("code", code), zap.Error(err))
		}
	}

	s.metrics.Redirect(prometheus.OutcomeRedirected)
	s.logger.Debug("redirecting short link", zap.String("code", code), zap.String("target", updated.URL))
	return updated, nil
}

func (s *RedirectService) observe(err error) {
	switch {
	case errors.Is(err, repository.ErrLinkNotFound):
		s.metrics.Redirect(prometheus.OutcomeNotFound)
	case errors.Is(err, repository.ErrLinkExpired):
		s.metrics.Redirect(prometheus.OutcomeExpired)
	default:
		s.metrics.Redirect(prometheus.OutcomeError)
	}
}
