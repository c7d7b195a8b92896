// SPDX-License-Identifier: MPL-2.0

// Package sipster implements the user-agent transaction layer for SIP-like
// request/response signaling. It correlates messages of one call by Call-ID,
// tracks CSeq numbers and enforces the minimal recovery rule that an
// in-flight INVITE must be acknowledged before the call is idle again.
//
// Wire parsing is delegated to the sipgo message model, transport
// establishment to a ConnectionFactory. Application code drives a Client or
// Server agent with SendRequest/RecvResponse style operations.
package sipster

import (
	"errors"
	"fmt"
	"time"
)

// defaultTimeout bounds dialog acquisition and queue pops.
const defaultTimeout = 30 * time.Second

var (
	// ErrTimeout is returned when dialog acquisition or a queue pop did not
	// complete within the agent timeout budget.
	ErrTimeout = errors.New("sipster: timed out")

	// ErrMissingHeader is returned by envelope accessors when the underlying
	// message lacks the requested header.
	ErrMissingHeader = errors.New("sipster: missing header")

	// ErrNotRespondable is returned when an auto-handler demands a reply for
	// a message that cannot be responded to (a response).
	ErrNotRespondable = errors.New("sipster: cannot respond to a response")
)

// ErrUnexpectedMessage reports a received method or status code differing
// from what the caller declared it expects.
type ErrUnexpectedMessage struct {
	Expected string
	Actual   string
}

func (e ErrUnexpectedMessage) Error() string {
	return fmt.Sprintf("sipster: unexpected message: expected %s, found %s", e.Expected, e.Actual)
}
