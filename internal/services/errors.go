// Package services implements the relay core: the Thread aggregate and its
// outbound/inbound message flow, lifecycle state machine, alert set, and
// downtime recovery. This file centralizes the service-level error values.
//
// Propagation policy: reply delivery failures (unreachable private channel,
// over-limit content, transport rejection) are caught at the relay boundary,
// converted into a staff-visible system notice, and surfaced to the caller as
// a boolean failure — they never escape the relay. ErrChannelMissing triggers
// an automatic thread close instead of propagating.
package services

import "errors"

var (
	// ErrThreadNotFound indicates the requested thread does not exist.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrDMUnavailable is returned when the user's private channel cannot
	// be opened or written (the user blocked the sender or restricted who
	// can message them).
	ErrDMUnavailable = errors.New("cannot message this user")

	// ErrChannelMissing indicates the staff channel no longer exists.
	ErrChannelMissing = errors.New("staff channel no longer exists")

	// ErrSendFailed covers any other transport delivery failure.
	ErrSendFailed = errors.New("message delivery failed")

	// ErrThreadNotOpen is returned by operations that require an open
	// thread (e.g. replying to a suspended one).
	ErrThreadNotOpen = errors.New("thread is not open")

	// ErrReplyNotFound indicates no staff reply carries the requested
	// message number.
	ErrReplyNotFound = errors.New("reply not found")
)
