// SPDX-License-Identifier: MPL-2.0

package sipster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialogFutureFirstWriterWins(t *testing.T) {
	f := newDialogFuture()
	assert.False(t, f.Resolved())

	first := &Dialog{callID: "first"}
	second := &Dialog{callID: "second"}

	f.Resolve(first)
	require.True(t, f.Resolved())

	// Later resolutions are no-ops
	f.Resolve(second)

	got, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, got)
}

func TestDialogFutureWaitCancel(t *testing.T) {
	f := newDialogFuture()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDialogFutureWaitUnblocks(t *testing.T) {
	f := newDialogFuture()
	dlg := &Dialog{callID: "call"}

	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Resolve(dlg)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Same(t, dlg, got)
}
