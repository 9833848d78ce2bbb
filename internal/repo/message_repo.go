// Package repo – MessageRecord repository. Records are created by the relay,
// patched with transport locations as sends succeed, and removed again when a
// failed send is compensated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/modmailhq/go-modmail-backend/internal/domain"
)

// NewMessageInput carries the caller-supplied fields for CreateMessage.
// Zero values are valid for every optional field.
type NewMessageInput struct {
	ThreadID         string
	Type             domain.MessageType
	MessageNumber    *int
	UserID           string
	UserName         string
	RoleName         string
	Body             string
	IsAnonymous      bool
	Attachments      []string
	SmallAttachments []string
	DMChannelID      string
	DMMessageID      string
	InboxMessageID   string
	Metadata         domain.Metadata
}

// CreateMessage inserts a new MessageRecord row with a UUID primary key and
// UTC timestamp.
func CreateMessage(ctx context.Context, db *gorm.DB, in NewMessageInput) (*domain.MessageRecord, error) {
	m := &domain.MessageRecord{
		ID:               uuid.NewString(),
		ThreadID:         in.ThreadID,
		Type:             in.Type,
		MessageNumber:    in.MessageNumber,
		UserID:           in.UserID,
		UserName:         in.UserName,
		RoleName:         in.RoleName,
		Body:             in.Body,
		IsAnonymous:      in.IsAnonymous,
		Attachments:      domain.StringList(in.Attachments),
		SmallAttachments: domain.StringList(in.SmallAttachments),
		DMChannelID:      in.DMChannelID,
		DMMessageID:      in.DMMessageID,
		InboxMessageID:   in.InboxMessageID,
		Metadata:         in.Metadata,
		CreatedAt:        time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteMessage removes a record by ID. Used both for explicit deletions and
// for compensating a failed send.
func DeleteMessage(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.MessageRecord{}).Error
}

// UpdateMessageBody replaces the stored body text of a record.
func UpdateMessageBody(ctx context.Context, db *gorm.DB, id, body string) error {
	return patchMessage(ctx, db, id, map[string]any{"body": body})
}

// SetMessageDMLocation records the private-channel location of a sent message.
func SetMessageDMLocation(ctx context.Context, db *gorm.DB, id, channelID, messageID string) error {
	return patchMessage(ctx, db, id, map[string]any{
		"dm_channel_id": channelID,
		"dm_message_id": messageID,
	})
}

// SetMessageInboxID records the staff-channel location of a mirrored message.
func SetMessageInboxID(ctx context.Context, db *gorm.DB, id, inboxMessageID string) error {
	return patchMessage(ctx, db, id, map[string]any{"inbox_message_id": inboxMessageID})
}

// SetMessageAttachments overwrites the stored attachment URL list.
func SetMessageAttachments(ctx context.Context, db *gorm.DB, id string, urls []string) error {
	return patchMessage(ctx, db, id, map[string]any{"attachments": domain.StringList(urls)})
}

func patchMessage(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.MessageRecord{}).
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

// GetMessageByNumber fetches the staff reply with the given per-thread number.
func GetMessageByNumber(ctx context.Context, db *gorm.DB, threadID string, number int) (*domain.MessageRecord, error) {
	var m domain.MessageRecord
	err := db.WithContext(ctx).
		Where("thread_id = ? AND message_number = ?", threadID, number).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessageByDMID fetches the record located at a private-channel message.
func GetMessageByDMID(ctx context.Context, db *gorm.DB, threadID, dmMessageID string) (*domain.MessageRecord, error) {
	var m domain.MessageRecord
	err := db.WithContext(ctx).
		Where("thread_id = ? AND dm_message_id = ?", threadID, dmMessageID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessageByInboxID fetches the record mirrored at a staff-channel message.
func GetMessageByInboxID(ctx context.Context, db *gorm.DB, threadID, inboxMessageID string) (*domain.MessageRecord, error) {
	var m domain.MessageRecord
	err := db.WithContext(ctx).
		Where("thread_id = ? AND inbox_message_id = ?", threadID, inboxMessageID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// LastDMMessageID returns the transport ID of the newest message the relay
// has seen in the user's private channel, regardless of direction (staff
// replies land there too), or "" if none is recorded. Recovery uses it as
// the fetch-after cursor.
func LastDMMessageID(ctx context.Context, db *gorm.DB, threadID string) (string, error) {
	var m domain.MessageRecord
	err := db.WithContext(ctx).
		Where("thread_id = ? AND dm_message_id <> ''", threadID).
		Order("created_at desc, id desc").
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", err
	}
	return m.DMMessageID, nil
}

// ListThreadMessages returns the full transcript ordered deterministically
// (CreatedAt ASC, ID ASC).
func ListThreadMessages(ctx context.Context, db *gorm.DB, threadID string) ([]domain.MessageRecord, error) {
	var out []domain.MessageRecord
	err := db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// UpdateMessageBodyByDMID patches the body of the record that originated from
// the given transport message, if one exists. Used to mirror channel-chatter
// edits into the transcript.
func UpdateMessageBodyByDMID(ctx context.Context, db *gorm.DB, threadID, dmMessageID, body string) error {
	return db.WithContext(ctx).
		Model(&domain.MessageRecord{}).
		Where("thread_id = ? AND dm_message_id = ?", threadID, dmMessageID).
		Update("body", body).Error
}

// DeleteMessageByDMID removes the record that originated from the given
// transport message, if one exists.
func DeleteMessageByDMID(ctx context.Context, db *gorm.DB, threadID, dmMessageID string) error {
	return db.WithContext(ctx).
		Where("thread_id = ? AND dm_message_id = ?", threadID, dmMessageID).
		Delete(&domain.MessageRecord{}).Error
}

// UpdateMessageBodyByInboxID patches the body of the record that originated
// from the given staff-channel message, if one exists.
func UpdateMessageBodyByInboxID(ctx context.Context, db *gorm.DB, threadID, inboxMessageID, body string) error {
	return db.WithContext(ctx).
		Model(&domain.MessageRecord{}).
		Where("thread_id = ? AND inbox_message_id = ?", threadID, inboxMessageID).
		Update("body", body).Error
}

// DeleteMessageByInboxID removes the record that originated from the given
// staff-channel message, if one exists.
func DeleteMessageByInboxID(ctx context.Context, db *gorm.DB, threadID, inboxMessageID string) error {
	return db.WithContext(ctx).
		Where("thread_id = ? AND inbox_message_id = ?", threadID, inboxMessageID).
		Delete(&domain.MessageRecord{}).Error
}
