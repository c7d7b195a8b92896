// SPDX-License-Identifier: MPL-2.0

package sipster

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// The INVITE transaction safety net: between "INVITE sent" and "ACK sent"
// the agent is awaiting_ack, and an unexpected final response must be
// acknowledged before the error surfaces. Only ACK returns to idle, CANCEL
// does not.
const (
	txStateIdle        = "idle"
	txStateAwaitingAck = "awaiting_ack"

	txEventInvite = "invite"
	txEventAck    = "ack"
)

func newTransactionFSM() *fsm.FSM {
	return fsm.NewFSM(
		txStateIdle,
		fsm.Events{
			{Name: txEventInvite, Src: []string{txStateIdle, txStateAwaitingAck}, Dst: txStateAwaitingAck},
			{Name: txEventAck, Src: []string{txStateIdle, txStateAwaitingAck}, Dst: txStateIdle},
		},
		fsm.Callbacks{},
	)
}

// txFire drives the transaction machine, tolerating same-state transitions
// (a repeated INVITE or an ACK while already idle).
func txFire(ctx context.Context, m *fsm.FSM, event string) error {
	err := m.Event(ctx, event)
	if err == nil {
		return nil
	}
	var noop fsm.NoTransitionError
	if errors.As(err, &noop) {
		return nil
	}
	return err
}
