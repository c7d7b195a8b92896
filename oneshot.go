// SPDX-License-Identifier: MPL-2.0

package sipster

import (
	"context"
	"sync"
)

// dialogFuture is a one-shot handoff of the reactively created server
// dialog. First Resolve wins, later calls are no-ops. Once resolved the
// dispatcher drops any further inbound message without a Call-ID match.
type dialogFuture struct {
	once sync.Once
	done chan struct{}
	dlg  *Dialog
}

func newDialogFuture() *dialogFuture {
	return &dialogFuture{
		done: make(chan struct{}),
	}
}

func (f *dialogFuture) Resolve(d *Dialog) {
	f.once.Do(func() {
		f.dlg = d
		close(f.done)
	})
}

func (f *dialogFuture) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *dialogFuture) Wait(ctx context.Context) (*Dialog, error) {
	select {
	case <-f.done:
		return f.dlg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
