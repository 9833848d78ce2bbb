package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/modmailhq/go-modmail-backend/internal/attachments"
	"github.com/modmailhq/go-modmail-backend/internal/config"
	"github.com/modmailhq/go-modmail-backend/internal/domain"
	"github.com/modmailhq/go-modmail-backend/internal/format"
	"github.com/modmailhq/go-modmail-backend/internal/hooks"
	"github.com/modmailhq/go-modmail-backend/internal/repo"
	"github.com/modmailhq/go-modmail-backend/internal/scheduler"
	"github.com/modmailhq/go-modmail-backend/internal/snippets"
	"github.com/modmailhq/go-modmail-backend/internal/transport"
)

// ---- fakes ----

type sentMessage struct {
	ChannelID string
	Content   transport.Content
	Files     []transport.File
}

type editedMessage struct {
	ChannelID string
	MessageID string
	Content   transport.Content
}

type deletedMessage struct {
	ChannelID string
	MessageID string
}

type reaction struct {
	ChannelID string
	MessageID string
	Emoji     string
}

// fakeTransport records every call and lets tests inject classified failures
// per channel.
type fakeTransport struct {
	mu     sync.Mutex
	nextID int

	DMChannelID string
	OpenErr     error
	SendErrs    map[string]error
	EditErrs    map[string]error
	DeleteErrs  map[string]error
	// SentAttachments is attached to every successful send result, used to
	// exercise the relay-canonical storage policy.
	SentAttachments []transport.Attachment
	History         []transport.Message
	HistoryErr      error

	Sent            []sentMessage
	Edits           []editedMessage
	Deletes         []deletedMessage
	DeletedChannels []string
	Reactions       []reaction
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		DMChannelID: "dm-chan",
		SendErrs:    map[string]error{},
		EditErrs:    map[string]error{},
		DeleteErrs:  map[string]error{},
	}
}

func (f *fakeTransport) OpenPrivateChannel(ctx context.Context, userID string) (string, error) {
	if f.OpenErr != nil {
		return "", f.OpenErr
	}
	return f.DMChannelID, nil
}

func (f *fakeTransport) Send(ctx context.Context, channelID string, content transport.Content, files []transport.File) (*transport.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.SendErrs[channelID]; err != nil {
		return nil, err
	}
	f.nextID++
	f.Sent = append(f.Sent, sentMessage{ChannelID: channelID, Content: content, Files: files})
	return &transport.Message{
		ID:          fmt.Sprintf("sent-%d", f.nextID),
		ChannelID:   channelID,
		Body:        content.Body,
		Attachments: f.SentAttachments,
	}, nil
}

func (f *fakeTransport) Edit(ctx context.Context, channelID, messageID string, content transport.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.EditErrs[channelID]; err != nil {
		return err
	}
	f.Edits = append(f.Edits, editedMessage{ChannelID: channelID, MessageID: messageID, Content: content})
	return nil
}

func (f *fakeTransport) Delete(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.DeleteErrs[channelID]; err != nil {
		return err
	}
	f.Deletes = append(f.Deletes, deletedMessage{ChannelID: channelID, MessageID: messageID})
	return nil
}

func (f *fakeTransport) DeleteChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeletedChannels = append(f.DeletedChannels, channelID)
	return nil
}

func (f *fakeTransport) React(ctx context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reactions = append(f.Reactions, reaction{ChannelID: channelID, MessageID: messageID, Emoji: emoji})
	return nil
}

func (f *fakeTransport) HistoryAfter(ctx context.Context, channelID string, limit int, afterMessageID string) ([]transport.Message, error) {
	if f.HistoryErr != nil {
		return nil, f.HistoryErr
	}
	if len(f.History) > limit {
		return f.History[:limit], nil
	}
	return f.History, nil
}

// sentTo returns the bodies of everything sent to channelID, in order.
func (f *fakeTransport) sentTo(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.Sent {
		if m.ChannelID == channelID {
			out = append(out, m.Content.Body)
		}
	}
	return out
}

type fakeMembers struct {
	Info ModeratorInfo
	Err  error
}

func (f *fakeMembers) Moderator(ctx context.Context, moderatorID string) (ModeratorInfo, error) {
	return f.Info, f.Err
}

type fakeBlocklist struct {
	Blocked bool
	Err     error
}

func (f *fakeBlocklist) IsBlocked(ctx context.Context, userID string) (bool, error) {
	return f.Blocked, f.Err
}

// fakePipeline saves nothing; it derives deterministic URLs from the
// attachment name.
type fakePipeline struct {
	SaveErr  error
	FetchErr error
}

func (f *fakePipeline) Save(ctx context.Context, att transport.Attachment) (attachments.Saved, error) {
	if f.SaveErr != nil {
		return attachments.Saved{}, f.SaveErr
	}
	return attachments.Saved{URL: "http://files.local/" + att.Name}, nil
}

func (f *fakePipeline) TransportFile(ctx context.Context, att transport.Attachment) (transport.File, error) {
	if f.FetchErr != nil {
		return transport.File{}, f.FetchErr
	}
	return transport.File{Name: att.Name, Data: []byte("data")}, nil
}

// ---- wiring ----

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "svc_test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&domain.Thread{}, &domain.MessageRecord{}, &snippets.Snippet{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		NameMode:              config.NameModeNickname,
		EscapeNameFormat:      true,
		AnonymousName:         "Moderator",
		SnippetStartDelimiter: "{{",
		SnippetEndDelimiter:   "}}",
		AttachmentStorage:     config.AttachmentStorageLocal,
		SmallAttachmentLimit:  2 << 20,
		RelayInlineReplies:    true,
		ReactionEmoji:         "📨",
		MessageCharLimit:      2000,
		AutoAlertDelay:        time.Minute,
		RecoveryFetchLimit:    50,
	}
}

func newTestService(t *testing.T) (*ThreadService, *fakeTransport) {
	t.Helper()
	db := newTestDB(t)
	tr := newFakeTransport()
	s := &ThreadService{
		DB:          db,
		Transport:   tr,
		Formatter:   &format.Default{AnonymousName: "Moderator"},
		Hooks:       hooks.NewBus(),
		Timers:      scheduler.NewTimers(),
		Snippets:    &snippets.GormStore{DB: db},
		Attachments: &fakePipeline{},
		Members:     &fakeMembers{Info: ModeratorInfo{Username: "mod", Nickname: "Mod Nick"}},
		Blocklist:   &fakeBlocklist{},
		Cfg:         testConfig(),
	}
	t.Cleanup(s.Timers.Stop)
	return s, tr
}

func seedThread(t *testing.T, s *ThreadService) *domain.Thread {
	t.Helper()
	th, err := repo.CreateThread(context.Background(), s.DB, "user1", "User One", "staff-chan")
	if err != nil {
		t.Fatalf("seed thread: %v", err)
	}
	return th
}

func reloadThread(t *testing.T, s *ThreadService, id string) *domain.Thread {
	t.Helper()
	th, err := repo.GetThread(context.Background(), s.DB, id)
	if err != nil {
		t.Fatalf("reload thread: %v", err)
	}
	return th
}

func listRecords(t *testing.T, s *ThreadService, threadID string) []domain.MessageRecord {
	t.Helper()
	out, err := repo.ListThreadMessages(context.Background(), s.DB, threadID)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	return out
}

func recordsOfType(recs []domain.MessageRecord, typ domain.MessageType) []domain.MessageRecord {
	var out []domain.MessageRecord
	for _, r := range recs {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

func containsBody(bodies []string, substr string) bool {
	for _, b := range bodies {
		if strings.Contains(b, substr) {
			return true
		}
	}
	return false
}

// ---- ThreadService basics ----

func TestGet_NotFound(t *testing.T) {
	s, _ := newTestService(t)
	if _, err := s.Get(context.Background(), "missing"); err != ErrThreadNotFound {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}
}

func TestSetLogStorageAndMetadata(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	th := seedThread(t, s)

	if err := s.SetLogStorage(ctx, th, "local", domain.Metadata{"path": "/logs/1"}); err != nil {
		t.Fatalf("SetLogStorage: %v", err)
	}
	if err := s.SetMetadataValue(ctx, th, "topic", "billing"); err != nil {
		t.Fatalf("SetMetadataValue: %v", err)
	}

	got := reloadThread(t, s, th.ID)
	if got.LogStorageType != "local" || got.LogStorageData["path"] != "/logs/1" {
		t.Fatalf("log storage not persisted: %+v", got)
	}
	if got.Metadata["topic"] != "billing" {
		t.Fatalf("metadata not persisted: %+v", got.Metadata)
	}
}
