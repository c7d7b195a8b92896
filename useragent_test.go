// SPDX-License-Identifier: MPL-2.0

package sipster

import (
	"context"
	"testing"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, opts ...Option) (*Client, *memFactory) {
	t.Helper()
	f := &memFactory{}
	opts = append([]Option{WithTimeout(time.Second)}, opts...)
	cli, err := NewClient(f, Config{
		ToURI:      "sip:bob@127.0.0.1:5060",
		FromURI:    "sip:alice@127.0.0.1:5066",
		ContactURI: "sip:alice@127.0.0.1:5066",
		RemoteAddr: "127.0.0.1:5060",
	}, opts...)
	require.NoError(t, err)
	return cli, f
}

func TestSendRequestCSeqIncrement(t *testing.T) {
	cli, f := testClient(t)
	ctx := context.Background()

	require.NoError(t, cli.SendRequest(ctx, sip.OPTIONS, nil))
	require.NoError(t, cli.SendRequest(ctx, sip.OPTIONS, nil))
	require.NoError(t, cli.SendRequest(ctx, sip.OPTIONS, nil))

	reqs := f.Conn(0).Requests()
	require.Len(t, reqs, 3)
	for i, req := range reqs {
		require.NotNil(t, req.CSeq())
		assert.EqualValues(t, i+1, req.CSeq().SeqNo)
		assert.Equal(t, sip.OPTIONS, req.CSeq().MethodName)
	}
	assert.EqualValues(t, 3, cli.cseq)
}

func TestSendRequestExplicitCSeqAdopted(t *testing.T) {
	cli, f := testClient(t)
	ctx := context.Background()

	hdr := &sip.CSeqHeader{SeqNo: 41, MethodName: sip.INFO}
	require.NoError(t, cli.SendRequest(ctx, sip.INFO, nil, hdr))
	assert.EqualValues(t, 41, cli.cseq)

	// The next synthesized CSeq continues from the adopted number
	require.NoError(t, cli.SendRequest(ctx, sip.OPTIONS, nil))
	assert.EqualValues(t, 42, cli.cseq)

	reqs := f.Conn(0).Requests()
	require.Len(t, reqs, 2)
	assert.EqualValues(t, 42, reqs[1].CSeq().SeqNo)
}

func TestSendRequestTransactionState(t *testing.T) {
	cli, _ := testClient(t)
	ctx := context.Background()

	assert.False(t, cli.txn.Is(txStateAwaitingAck))

	require.NoError(t, cli.SendRequest(ctx, sip.INVITE, nil))
	assert.True(t, cli.txn.Is(txStateAwaitingAck))

	require.NoError(t, cli.SendRequest(ctx, sip.CANCEL, nil))
	assert.True(t, cli.txn.Is(txStateAwaitingAck), "CANCEL must not clear the pending acknowledgment")

	require.NoError(t, cli.SendRequest(ctx, sip.ACK, nil))
	assert.False(t, cli.txn.Is(txStateAwaitingAck))
}

func TestRecvResponseTimeout(t *testing.T) {
	cli, _ := testClient(t, WithTimeout(50*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, cli.SendRequest(ctx, sip.OPTIONS, nil))

	_, err := cli.RecvResponse(ctx, 200)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestGetDialogTimeoutServer(t *testing.T) {
	srv, _ := testServer(t, WithTimeout(50*time.Millisecond))

	// No Listen, no inbound message: acquisition must time out
	_, err := srv.RecvRequest(context.Background(), sip.INVITE)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestRecvRequestCallIDAdoptionAndFilter(t *testing.T) {
	srv, _ := testServer(t)
	require.NoError(t, srv.Listen(context.Background()))
	ctx := context.Background()

	srv.dispatcher.Dispatch(testRequest(t, "INVITE", "call-a", 7))

	_, err := srv.RecvRequest(ctx, sip.INVITE)
	require.NoError(t, err)
	assert.Equal(t, "call-a", srv.CallID())
	assert.EqualValues(t, 7, srv.cseq, "CSeq counter seeded from first request")

	// A message for another Call-ID pushed into the dialog is never returned
	srv.dialog.Receive(testRequest(t, "BYE", "call-b", 1))
	srv.dialog.Receive(testRequest(t, "BYE", "call-a", 8))

	bye, err := srv.RecvRequest(ctx, sip.BYE)
	require.NoError(t, err)
	cid, err := bye.CallID()
	require.NoError(t, err)
	assert.Equal(t, "call-a", cid)
}

func TestRecvRequestOrderPreserved(t *testing.T) {
	srv, _ := testServer(t)
	require.NoError(t, srv.Listen(context.Background()))
	ctx := context.Background()

	srv.dispatcher.Dispatch(testRequest(t, "INVITE", "ordered", 1))

	_, err := srv.RecvRequest(ctx, sip.INVITE)
	require.NoError(t, err)

	srv.dialog.Receive(testRequest(t, "INFO", "ordered", 2))
	srv.dialog.Receive(testRequest(t, "BYE", "ordered", 3))

	info, err := srv.RecvRequest(ctx, sip.INFO)
	require.NoError(t, err)
	assert.EqualValues(t, 2, info.Raw.CSeq().SeqNo)

	bye, err := srv.RecvRequest(ctx, sip.BYE)
	require.NoError(t, err)
	assert.EqualValues(t, 3, bye.Raw.CSeq().SeqNo)
}

func TestRecvRequestIgnoreMethods(t *testing.T) {
	srv, _ := testServer(t)
	require.NoError(t, srv.Listen(context.Background()))
	ctx := context.Background()

	srv.dispatcher.Dispatch(testRequest(t, "OPTIONS", "keepalive", 1))

	// OPTIONS is ignored, the BYE behind it is the accepted message
	go func() {
		time.Sleep(20 * time.Millisecond)
		srv.dispatcher.Dispatch(testRequest(t, "BYE", "keepalive", 2))
	}()

	bye, err := srv.RecvRequest(ctx, sip.BYE, sip.OPTIONS)
	require.NoError(t, err)
	assert.Equal(t, sip.BYE, bye.Method())
}

func TestRecvRequestMethodMismatch(t *testing.T) {
	srv, _ := testServer(t)
	require.NoError(t, srv.Listen(context.Background()))

	srv.dispatcher.Dispatch(testRequest(t, "BYE", "wrong", 1))

	_, err := srv.RecvRequest(context.Background(), sip.INVITE)
	var mismatch ErrUnexpectedMessage
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "INVITE", mismatch.Expected)
	assert.Equal(t, "BYE", mismatch.Actual)
}

func TestRecvRouteAutoResponds(t *testing.T) {
	srv, f := testServer(t)
	require.NoError(t, srv.Listen(context.Background()))
	ctx := context.Background()

	// Registration is case insensitive
	srv.AddRoute("options", func(msg Envelope) *Reply {
		return &Reply{Status: sip.StatusOK, Reason: "OK"}
	})

	srv.dispatcher.Dispatch(testRequest(t, "INVITE", "routed", 1))
	_, err := srv.RecvRequest(ctx, sip.INVITE)
	require.NoError(t, err)

	srv.dialog.Receive(testRequest(t, "OPTIONS", "routed", 2))
	srv.dialog.Receive(testRequest(t, "BYE", "routed", 3))

	// OPTIONS is consumed by the route, BYE comes through
	bye, err := srv.RecvRequest(ctx, sip.BYE)
	require.NoError(t, err)
	assert.Equal(t, sip.BYE, bye.Method())

	resps := f.Conn(1).Responses()
	require.Len(t, resps, 1)
	assert.Equal(t, sip.StatusOK, resps[0].StatusCode)
	assert.Equal(t, sip.OPTIONS, resps[0].CSeq().MethodName)
}

func TestRecvCallbackAutoResponds(t *testing.T) {
	srv, f := testServer(t)
	require.NoError(t, srv.Listen(context.Background()))
	ctx := context.Background()

	srv.AddReceiveCallback(func(msg Envelope) *Reply {
		if req, ok := msg.(*Request); ok && req.Method() == sip.NOTIFY {
			return &Reply{Status: sip.StatusOK, Reason: "OK"}
		}
		return nil
	})

	srv.dispatcher.Dispatch(testRequest(t, "INVITE", "intercepted", 1))
	_, err := srv.RecvRequest(ctx, sip.INVITE)
	require.NoError(t, err)

	srv.dialog.Receive(testRequest(t, "NOTIFY", "intercepted", 2))
	srv.dialog.Receive(testRequest(t, "BYE", "intercepted", 3))

	bye, err := srv.RecvRequest(ctx, sip.BYE)
	require.NoError(t, err)
	assert.Equal(t, sip.BYE, bye.Method())

	resps := f.Conn(1).Responses()
	require.Len(t, resps, 1)
	assert.Equal(t, sip.NOTIFY, resps[0].CSeq().MethodName)
}

func TestRecvCallbackCannotRespondToResponse(t *testing.T) {
	cli, _ := testClient(t)
	ctx := context.Background()

	require.NoError(t, cli.SendRequest(ctx, sip.OPTIONS, nil))

	cli.AddReceiveCallback(func(msg Envelope) *Reply {
		return &Reply{Status: sip.StatusOK, Reason: "OK"}
	})

	cli.dispatcher.Dispatch(testResponse(t, 200, "OK", cli.dialog.CallID(), 1, "OPTIONS"))

	_, err := cli.RecvResponse(ctx, 200)
	require.ErrorIs(t, err, ErrNotRespondable)
}

func TestCloseIdempotent(t *testing.T) {
	cli, f := testClient(t)
	ctx := context.Background()

	require.NoError(t, cli.SendRequest(ctx, sip.OPTIONS, nil))

	require.NoError(t, cli.Close())
	require.NoError(t, cli.Close())
	assert.Equal(t, 1, f.Conn(0).Closes())
}

func TestCloseNoDialog(t *testing.T) {
	cli, f := testClient(t)
	require.NoError(t, cli.Close())
	assert.Equal(t, 0, f.ConnCount())
}
