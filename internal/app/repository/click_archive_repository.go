package repository

import (
	"context"
	"time"

	"github.com/sifan077/tinylink/internal/app/model"
	"gorm.io/gorm"
)

// ArchivedClick is a click event mirrored into Postgres for long-term
// reporting. The day files remain the source for Aggregate.
type ArchivedClick struct {
	ID        uint      `gorm:"primaryKey"`
	Code      string    `gorm:"size:64;index;not null"`
	ClickedAt time.Time `gorm:"index;not null"`
	IP        *string   `gorm:"size:64"`
	UserAgent string    `gorm:"size:200"`
	Referer   string    `gorm:"type:text"`
}

func (ArchivedClick) TableName() string {
	return "click_archive"
}

// ClickArchiveRepository defines the data access contract for archived clicks.
type ClickArchiveRepository interface {
	Create(ctx context.Context, event model.ClickEvent) error
	CountByCode(ctx context.Context, code string) (int64, error)
}

type clickArchiveRepository struct {
	db *gorm.DB
}

// NewClickArchiveRepository returns a GORM-backed ClickArchiveRepository.
func NewClickArchiveRepository(db *gorm.DB) ClickArchiveRepository {
	return &clickArchiveRepository{db: db}
}

func (r *clickArchiveRepository) Create(ctx context.Context, event model.ClickEvent) error {
	row := ArchivedClick{
		Code:      event.Code,
		ClickedAt: event.Time.UTC(),
		IP:        event.IP,
		UserAgent: event.UserAgent,
		Referer:   event.Referer,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *clickArchiveRepository) CountByCode(ctx context.Context, code string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&ArchivedClick{}).Where("code = ?", code).Count(&n).Error
	return n, err
}
