// Package format renders MessageRecords into transport content. Formatting
// is pure: the relay persists first, then formats from the persisted record,
// so the transcript and the sent content can never disagree.
package format

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/modmailhq/go-modmail-backend/internal/domain"
	"github.com/modmailhq/go-modmail-backend/internal/transport"
)

// Formatter renders each content category the relay sends.
type Formatter interface {
	// StaffReplyDM is the reply as delivered to the user.
	StaffReplyDM(rec *domain.MessageRecord) transport.Content
	// StaffReplyMirror is the reply as mirrored into the staff channel.
	StaffReplyMirror(rec *domain.MessageRecord) transport.Content
	// UserReplyMirror is an incoming user message as shown to staff.
	UserReplyMirror(rec *domain.MessageRecord) transport.Content
	// SystemMessage is a staff-visible notice.
	SystemMessage(rec *domain.MessageRecord) transport.Content
	// SystemToUserDM / SystemToUserMirror render a system message addressed
	// to the user, and its staff-channel copy.
	SystemToUserDM(rec *domain.MessageRecord) transport.Content
	SystemToUserMirror(rec *domain.MessageRecord) transport.Content
	// EditNotification / DeleteNotification announce staff-reply mutations
	// in the staff channel.
	EditNotification(rec *domain.MessageRecord, oldBody, newBody string) transport.Content
	DeleteNotification(rec *domain.MessageRecord) transport.Content
}

// Default is the built-in markdown-flavored formatter.
type Default struct {
	// AnonymousName is the display name used for anonymous staff replies.
	AnonymousName string
	// ShowRoleNames prefixes staff replies with the author's role label.
	ShowRoleNames bool
}

var titleCaser = cases.Title(language.English)

func (f *Default) anonymousName() string {
	if f.AnonymousName != "" {
		return f.AnonymousName
	}
	return "Moderator"
}

// staffName composes the name shown on a staff reply, honoring anonymity and
// the role-label toggle.
func (f *Default) staffName(rec *domain.MessageRecord) string {
	role := ""
	if f.ShowRoleNames && rec.RoleName != "" {
		role = titleCaser.String(rec.RoleName)
	}
	if rec.IsAnonymous {
		if role != "" {
			return role
		}
		return f.anonymousName()
	}
	if role != "" {
		return fmt.Sprintf("(%s) %s", role, rec.UserName)
	}
	return rec.UserName
}

// StaffReplyDM renders the user-facing reply.
func (f *Default) StaffReplyDM(rec *domain.MessageRecord) transport.Content {
	body := fmt.Sprintf("**%s:** %s", f.staffName(rec), rec.Body)
	return transport.Content{Body: appendLinks(body, rec.Attachments)}
}

// StaffReplyMirror renders the staff-channel copy with the reply number.
func (f *Default) StaffReplyMirror(rec *domain.MessageRecord) transport.Content {
	num := "??"
	if rec.MessageNumber != nil {
		num = fmt.Sprintf("%d", *rec.MessageNumber)
	}
	name := f.staffName(rec)
	if rec.IsAnonymous {
		// Staff always see who wrote an anonymous reply.
		name = fmt.Sprintf("(Anonymous) %s", rec.UserName)
	}
	body := fmt.Sprintf("**[%s]** %s: %s", num, name, rec.Body)
	return transport.Content{Body: appendLinks(body, rec.Attachments)}
}

// UserReplyMirror renders an incoming user message for the staff channel.
func (f *Default) UserReplyMirror(rec *domain.MessageRecord) transport.Content {
	body := fmt.Sprintf("**%s:** %s", rec.UserName, rec.Body)
	return transport.Content{Body: appendLinks(body, rec.Attachments)}
}

// SystemMessage renders a staff-visible notice.
func (f *Default) SystemMessage(rec *domain.MessageRecord) transport.Content {
	return transport.Content{Body: rec.Body}
}

// SystemToUserDM renders a system message as delivered to the user.
func (f *Default) SystemToUserDM(rec *domain.MessageRecord) transport.Content {
	return transport.Content{Body: rec.Body}
}

// SystemToUserMirror renders the staff-channel copy of a system-to-user
// message.
func (f *Default) SystemToUserMirror(rec *domain.MessageRecord) transport.Content {
	return transport.Content{Body: fmt.Sprintf("**System (to user):** %s", rec.Body)}
}

// EditNotification announces an edited staff reply.
func (f *Default) EditNotification(rec *domain.MessageRecord, oldBody, newBody string) transport.Content {
	num := ""
	if rec.MessageNumber != nil {
		num = fmt.Sprintf(" [%d]", *rec.MessageNumber)
	}
	body := fmt.Sprintf("%s edited reply%s:\n**Before:** %s\n**After:** %s",
		rec.UserName, num, oldBody, newBody)
	return transport.Content{Body: body}
}

// DeleteNotification announces a deleted staff reply.
func (f *Default) DeleteNotification(rec *domain.MessageRecord) transport.Content {
	num := ""
	if rec.MessageNumber != nil {
		num = fmt.Sprintf(" [%d]", *rec.MessageNumber)
	}
	body := fmt.Sprintf("%s deleted reply%s:\n%s", rec.UserName, num, rec.Body)
	return transport.Content{Body: body}
}

func appendLinks(body string, urls domain.StringList) string {
	if len(urls) == 0 {
		return body
	}
	var b strings.Builder
	b.WriteString(body)
	for _, u := range urls {
		b.WriteString("\n")
		b.WriteString(u)
	}
	return b.String()
}

// EscapeMarkdown neutralizes characters that would trigger rich-text
// formatting in user-supplied display names.
func EscapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"*", "\\*",
		"_", "\\_",
		"`", "\\`",
		"~", "\\~",
		"|", "\\|",
	)
	return r.Replace(s)
}
