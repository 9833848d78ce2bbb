// Package snippets stores canned response snippets that staff can expand
// inline in replies via {{trigger}} placeholders.
package snippets

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Snippet is a stored canned response keyed by its trigger word.
type Snippet struct {
	ID        string    `json:"id"      gorm:"type:char(36);primaryKey"`
	Trigger   string    `json:"trigger" gorm:"type:varchar(64);not null;uniqueIndex"`
	Body      string    `json:"body"    gorm:"type:text;not null"`
	CreatedBy string    `json:"created_by" gorm:"type:varchar(64)"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Snippet.
func (Snippet) TableName() string { return "snippets" }

// Store lists stored snippets. The relay only needs the full set; trigger
// matching happens at expansion time.
type Store interface {
	All(ctx context.Context) ([]Snippet, error)
}

// GormStore is the SQLite-backed snippet store.
type GormStore struct {
	DB *gorm.DB
}

// All returns every stored snippet ordered by trigger.
func (s *GormStore) All(ctx context.Context) ([]Snippet, error) {
	var out []Snippet
	err := s.DB.WithContext(ctx).Order("trigger asc").Find(&out).Error
	return out, err
}

// Create inserts a new snippet.
func (s *GormStore) Create(ctx context.Context, trigger, body, createdBy string) (*Snippet, error) {
	sn := &Snippet{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Body:      body,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.DB.WithContext(ctx).Create(sn).Error; err != nil {
		return nil, err
	}
	return sn, nil
}

// Delete removes a snippet by trigger. Deleting an absent trigger is a no-op.
func (s *GormStore) Delete(ctx context.Context, trigger string) error {
	return s.DB.WithContext(ctx).Where("trigger = ?", trigger).Delete(&Snippet{}).Error
}
