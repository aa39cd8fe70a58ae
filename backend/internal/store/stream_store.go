package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrStreamNotFound = errors.New("stream not found")

// Stream is one tracked stream record, the shared table the realtime
// editors work on.
type Stream struct {
	ID          uint64     `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	SourceURL   string     `gorm:"column:source_url;size:512" json:"sourceUrl"`
	Status      string     `gorm:"size:32;not null;default:planned" json:"status"`
	Notes       string     `gorm:"type:text" json:"notes"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (Stream) TableName() string { return "streams" }

type StreamStore struct{ db *gorm.DB }

func NewStreamStore(db *gorm.DB) *StreamStore {
	return &StreamStore{db: db}
}

func (s *StreamStore) List(ctx context.Context, limit, offset int) ([]Stream, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&Stream{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var streams []Stream
	err := s.db.WithContext(ctx).
		Order("id").
		Limit(limit).
		Offset(offset).
		Find(&streams).Error
	return streams, total, err
}

func (s *StreamStore) Get(ctx context.Context, id uint64) (Stream, error) {
	var stream Stream
	err := s.db.WithContext(ctx).First(&stream, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Stream{}, ErrStreamNotFound
	}
	return stream, err
}

func (s *StreamStore) Create(ctx context.Context, stream *Stream) error {
	return s.db.WithContext(ctx).Create(stream).Error
}

func (s *StreamStore) Update(ctx context.Context, stream *Stream) error {
	tx := s.db.WithContext(ctx).Model(&Stream{}).Where("id = ?", stream.ID).Updates(map[string]any{
		"title":        stream.Title,
		"source_url":   stream.SourceURL,
		"status":       stream.Status,
		"notes":        stream.Notes,
		"scheduled_at": stream.ScheduledAt,
	})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrStreamNotFound
	}
	return nil
}

func (s *StreamStore) Delete(ctx context.Context, id uint64) error {
	tx := s.db.WithContext(ctx).Delete(&Stream{}, id)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrStreamNotFound
	}
	return nil
}

// UpdateField writes one column. UpdateColumn skips gorm hooks and the
// updated_at touch: the collab broadcast is the only notification path
// for realtime cell edits, so nothing here may fire a second one.
func (s *StreamStore) UpdateField(ctx context.Context, entityID uint64, column string, value any) error {
	tx := s.db.WithContext(ctx).
		Model(&Stream{}).
		Where("id = ?", entityID).
		UpdateColumn(column, value)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrStreamNotFound
	}
	return nil
}
