// SPDX-License-Identifier: MPL-2.0

package sipster

import (
	"context"
	"sync"

	"github.com/emiago/sipgo/sip"
)

// msgQueue is the unbounded inbound FIFO owned by one agent. Push never
// blocks and never drops. Pop waits for a message but on cancellation leaves
// the queue untouched, so a timed out receive does not consume anything.
type msgQueue struct {
	mu    sync.Mutex
	items []sip.Message
	wake  chan struct{}
}

func newMsgQueue() *msgQueue {
	return &msgQueue{
		wake: make(chan struct{}, 1),
	}
}

func (q *msgQueue) Push(msg sip.Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *msgQueue) Pop(ctx context.Context) (sip.Message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items = q.items[1:]
			// Keep the wake signal armed for remaining items
			if len(q.items) > 0 {
				select {
				case q.wake <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return msg, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

func (q *msgQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
