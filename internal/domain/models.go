// Package domain defines the persistence models for relay threads and their
// message records. These types are mapped with GORM and form the core data
// layer of the modmail backend.
package domain

import (
	"time"
)

// ThreadStatus enumerates the lifecycle states of a Thread.
type ThreadStatus int

const (
	StatusOpen      ThreadStatus = 1
	StatusClosed    ThreadStatus = 2
	StatusSuspended ThreadStatus = 3
)

// MessageType enumerates the categories of relayed or logged activity
// a MessageRecord can represent.
type MessageType int

const (
	TypeSystem       MessageType = 1
	TypeChat         MessageType = 2
	TypeFromUser     MessageType = 3
	TypeToUser       MessageType = 4
	TypeCommand      MessageType = 5
	TypeSystemToUser MessageType = 6
	TypeReplyEdited  MessageType = 7
	TypeReplyDeleted MessageType = 8
)

// Thread represents one user's ongoing conversation with the staff team.
// It binds the user's private channel and the shared staff channel together
// and carries the relay bookkeeping: the reply-number counter seed, pending
// alert subscriptions, and any scheduled close/suspend action.
//
// The scheduled-close and scheduled-suspend field groups are written
// atomically by the repo layer: they are either fully set or fully null,
// never half-populated.
type Thread struct {
	ID             string       `json:"id"               gorm:"type:char(36);primaryKey"`
	ThreadNumber   int          `json:"thread_number"    gorm:"not null;uniqueIndex"`
	Status         ThreadStatus `json:"status"           gorm:"not null;index"`
	UserID         string       `json:"user_id"          gorm:"type:varchar(64);not null;index"`
	UserName       string       `json:"user_name"        gorm:"type:varchar(128);not null"`
	StaffChannelID string       `json:"staff_channel_id" gorm:"type:varchar(64);not null;index"`

	// NextMessageNumber is the seed for the per-thread monotonic reply
	// counter. It is only ever advanced inside a store transaction by
	// repo.AllocateNextMessageNumber.
	NextMessageNumber int `json:"next_message_number" gorm:"not null;default:1"`

	ScheduledCloseAt     *time.Time `json:"scheduled_close_at,omitempty"`
	ScheduledCloseByID   string     `json:"scheduled_close_by_id"   gorm:"type:varchar(64)"`
	ScheduledCloseByName string     `json:"scheduled_close_by_name" gorm:"type:varchar(128)"`
	ScheduledCloseSilent bool       `json:"scheduled_close_silent"`

	ScheduledSuspendAt     *time.Time `json:"scheduled_suspend_at,omitempty"`
	ScheduledSuspendByID   string     `json:"scheduled_suspend_by_id"   gorm:"type:varchar(64)"`
	ScheduledSuspendByName string     `json:"scheduled_suspend_by_name" gorm:"type:varchar(128)"`

	// AlertIDs is the set of moderators waiting to be pinged on the next
	// user message. Set semantics live on the type; the delimited-string
	// encoding is confined to its Valuer/Scanner.
	AlertIDs StringSet `json:"alert_ids" gorm:"type:text"`

	// LogStorageType and LogStorageData describe where and how the thread
	// transcript was archived after close. Opaque to the relay core.
	LogStorageType string   `json:"log_storage_type" gorm:"type:varchar(32)"`
	LogStorageData Metadata `json:"log_storage_data" gorm:"type:text"`

	Metadata  Metadata  `json:"metadata" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Thread.
func (Thread) TableName() string { return "threads" }

// HasScheduledClose reports whether a close is currently scheduled.
func (t *Thread) HasScheduledClose() bool { return t.ScheduledCloseAt != nil }

// HasScheduledSuspend reports whether a suspension is currently scheduled.
func (t *Thread) HasScheduledSuspend() bool { return t.ScheduledSuspendAt != nil }

// MessageRecord is one persisted unit of relayed or logged activity within a
// thread. A record can hold up to two transport locations: the message in the
// user's private channel (DMChannelID/DMMessageID) and the mirror in the
// staff channel (InboxMessageID). Either may be absent at creation and filled
// in once the corresponding send succeeds.
type MessageRecord struct {
	ID       string      `json:"id"        gorm:"type:char(36);primaryKey"`
	ThreadID string      `json:"thread_id" gorm:"type:char(36);not null;index:idx_thread_records,priority:1;uniqueIndex:ux_thread_msg_number,priority:1"`
	Type     MessageType `json:"type"      gorm:"not null;index"`

	// MessageNumber is set only for TypeToUser records. It is unique and
	// strictly increasing per thread; numbers may have gaps (a rolled-back
	// reply burns its number) but never collide.
	MessageNumber *int `json:"message_number,omitempty" gorm:"uniqueIndex:ux_thread_msg_number,priority:2"`

	UserID      string `json:"user_id"      gorm:"type:varchar(64);not null;index"`
	UserName    string `json:"user_name"    gorm:"type:varchar(128);not null"`
	RoleName    string `json:"role_name"    gorm:"type:varchar(128)"`
	Body        string `json:"body"         gorm:"type:text;not null"`
	IsAnonymous bool   `json:"is_anonymous" gorm:"not null"`

	// Attachments holds durable URLs in original order; SmallAttachments is
	// the subset that was re-uploaded directly rather than linked.
	Attachments      StringList `json:"attachments"       gorm:"type:text"`
	SmallAttachments StringList `json:"small_attachments" gorm:"type:text"`

	DMChannelID    string `json:"dm_channel_id"    gorm:"type:varchar(64)"`
	DMMessageID    string `json:"dm_message_id"    gorm:"type:varchar(64);index"`
	InboxMessageID string `json:"inbox_message_id" gorm:"type:varchar(64);index"`

	Metadata  Metadata  `json:"metadata"   gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_thread_records,priority:2"`

	// Thread is the owning conversation. Records are cascade-deleted if
	// their thread is removed.
	Thread Thread `json:"-" gorm:"foreignKey:ThreadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for MessageRecord.
func (MessageRecord) TableName() string { return "thread_messages" }
