// Package repo – Thread repository.
//
// This file provides repository functions for the Thread model. All
// functions are context-aware and accept a *gorm.DB handle, making them safe
// for use within transactions or connection-scoped operations. They follow
// the "thin repository" approach: no business logic, only CRUD persistence
// and query composition.
//
// Two groups of operations deserve a note:
//
//   - The scheduled-close and scheduled-suspend field groups are always
//     written in a single UPDATE so a thread is never observed with a
//     half-populated schedule.
//
//   - AllocateNextMessageNumber runs inside a store transaction with a row
//     lock on the thread. It is the only place the reply counter advances,
//     which is what guarantees concurrent relay operations never observe
//     the same number.
//
// Error semantics: a missing thread surfaces as gorm.ErrRecordNotFound
// (aliased here as ErrNotFound); other DB errors propagate raw.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/modmailhq/go-modmail-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateThread inserts a new Thread row in OPEN status. The thread number is
// assigned as one past the highest existing number.
func CreateThread(ctx context.Context, db *gorm.DB, userID, userName, staffChannelID string) (*domain.Thread, error) {
	t := &domain.Thread{
		ID:                uuid.NewString(),
		Status:            domain.StatusOpen,
		UserID:            userID,
		UserName:          userName,
		StaffChannelID:    staffChannelID,
		NextMessageNumber: 1,
		CreatedAt:         time.Now().UTC(),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxNumber int
		if err := tx.Model(&domain.Thread{}).
			Select("COALESCE(MAX(thread_number), 0)").
			Scan(&maxNumber).Error; err != nil {
			return err
		}
		t.ThreadNumber = maxNumber + 1
		return tx.Create(t).Error
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetThread fetches a thread by ID, or ErrNotFound if missing.
func GetThread(ctx context.Context, db *gorm.DB, id string) (*domain.Thread, error) {
	var t domain.Thread
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetOpenThreadByUser fetches the open thread for a user, if any.
func GetOpenThreadByUser(ctx context.Context, db *gorm.DB, userID string) (*domain.Thread, error) {
	var t domain.Thread
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.StatusOpen).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateThreadStatus sets the lifecycle status of a thread.
func UpdateThreadStatus(ctx context.Context, db *gorm.DB, id string, status domain.ThreadStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AllocateNextMessageNumber reads, increments, and persists the per-thread
// reply counter inside a single transaction, locking the thread row for the
// duration. It returns the pre-increment value. Values handed out to
// concurrent callers are pairwise distinct and strictly increasing; a number
// is never reused even if the reply that consumed it is later rolled back.
func AllocateNextMessageNumber(ctx context.Context, db *gorm.DB, threadID string) (int, error) {
	var allocated int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t domain.Thread
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", threadID).
			First(&t).Error; err != nil {
			return err
		}
		allocated = t.NextMessageNumber
		return tx.Model(&domain.Thread{}).
			Where("id = ?", threadID).
			Update("next_message_number", allocated+1).Error
	})
	if err != nil {
		return 0, err
	}
	return allocated, nil
}

// SetScheduledClose writes all four scheduled-close fields in one UPDATE.
func SetScheduledClose(ctx context.Context, db *gorm.DB, id string, at time.Time, byID, byName string, silent bool) error {
	return updateScheduleFields(ctx, db, id, map[string]any{
		"scheduled_close_at":      at.UTC(),
		"scheduled_close_by_id":   byID,
		"scheduled_close_by_name": byName,
		"scheduled_close_silent":  silent,
	})
}

// ClearScheduledClose resets all four scheduled-close fields in one UPDATE.
func ClearScheduledClose(ctx context.Context, db *gorm.DB, id string) error {
	return updateScheduleFields(ctx, db, id, map[string]any{
		"scheduled_close_at":      nil,
		"scheduled_close_by_id":   "",
		"scheduled_close_by_name": "",
		"scheduled_close_silent":  false,
	})
}

// SetScheduledSuspend writes all scheduled-suspend fields in one UPDATE.
func SetScheduledSuspend(ctx context.Context, db *gorm.DB, id string, at time.Time, byID, byName string) error {
	return updateScheduleFields(ctx, db, id, map[string]any{
		"scheduled_suspend_at":      at.UTC(),
		"scheduled_suspend_by_id":   byID,
		"scheduled_suspend_by_name": byName,
	})
}

// ClearScheduledSuspend resets all scheduled-suspend fields in one UPDATE.
func ClearScheduledSuspend(ctx context.Context, db *gorm.DB, id string) error {
	return updateScheduleFields(ctx, db, id, map[string]any{
		"scheduled_suspend_at":      nil,
		"scheduled_suspend_by_id":   "",
		"scheduled_suspend_by_name": "",
	})
}

func updateScheduleFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AddThreadAlert adds a moderator to the thread's alert set. Adding an
// already-present id is a no-op. The read-modify-write runs in a transaction
// with the thread row locked so concurrent additions cannot drop each other.
func AddThreadAlert(ctx context.Context, db *gorm.DB, id, moderatorID string) error {
	return mutateAlerts(ctx, db, id, func(s domain.StringSet) domain.StringSet {
		return s.Add(moderatorID)
	})
}

// RemoveThreadAlert removes a moderator from the alert set. Removing an
// absent id is a no-op.
func RemoveThreadAlert(ctx context.Context, db *gorm.DB, id, moderatorID string) error {
	return mutateAlerts(ctx, db, id, func(s domain.StringSet) domain.StringSet {
		return s.Remove(moderatorID)
	})
}

// ClearThreadAlerts empties the alert set.
func ClearThreadAlerts(ctx context.Context, db *gorm.DB, id string) error {
	return mutateAlerts(ctx, db, id, func(domain.StringSet) domain.StringSet {
		return nil
	})
}

func mutateAlerts(ctx context.Context, db *gorm.DB, id string, fn func(domain.StringSet) domain.StringSet) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t domain.Thread
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&t).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Thread{}).
			Where("id = ?", id).
			Update("alert_ids", fn(t.AlertIDs)).Error
	})
}

// SetThreadLogStorage records where the thread transcript was archived.
func SetThreadLogStorage(ctx context.Context, db *gorm.DB, id, storageType string, data domain.Metadata) error {
	res := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"log_storage_type": storageType,
			"log_storage_data": data,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetThreadMetadataValue sets a single key in the thread metadata map.
func SetThreadMetadataValue(ctx context.Context, db *gorm.DB, id, key, value string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t domain.Thread
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&t).Error; err != nil {
			return err
		}
		md := t.Metadata
		if md == nil {
			md = domain.Metadata{}
		}
		md[key] = value
		return tx.Model(&domain.Thread{}).
			Where("id = ?", id).
			Update("metadata", md).Error
	})
}
