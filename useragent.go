// SPDX-License-Identifier: MPL-2.0

package sipster

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config carries the identity of one agent. URI fields are parsed with the
// sipgo URI parser, addresses are host:port strings for the transport
// collaborator.
type Config struct {
	ToURI      string
	FromURI    string
	ContactURI string
	Password   string
	RemoteAddr string
	LocalAddr  string
}

type Option func(ua *UserAgent)

func WithLogger(l zerolog.Logger) Option {
	return func(ua *UserAgent) {
		ua.log = l
	}
}

// WithTimeout overrides the 30s budget for dialog acquisition and queue
// pops.
func WithTimeout(d time.Duration) Option {
	return func(ua *UserAgent) {
		ua.timeout = d
	}
}

// WithErrorHandler installs a hook for background dispatch failures. Those
// never propagate into message intake, they are logged, counted and handed
// here.
func WithErrorHandler(f func(error)) Option {
	return func(ua *UserAgent) {
		ua.onError = f
	}
}

// UserAgent is the single authority for one call's transaction bookkeeping:
// it owns the inbound queue, the CSeq counter, the adopted Call-ID and the
// INVITE/ACK safety state. All state except the queue is touched only from
// the one logical flow driving the agent.
type UserAgent struct {
	ToURI      sip.Uri
	FromURI    sip.Uri
	ContactURI sip.Uri
	Password   string
	RemoteAddr string
	LocalAddr  string

	dispatcher *Dispatcher
	// acquire is the subtype dialog acquisition strategy: Client opens a
	// connection, Server awaits the dispatcher ready future.
	acquire func(ctx context.Context) (*Dialog, error)

	dialog *Dialog
	queue  *msgQueue

	cseq   uint32
	callID string
	txn    *fsm.FSM

	routes          map[string]Handler
	messageCallback Handler

	timeout time.Duration
	log     zerolog.Logger
	onError func(error)
}

func newUserAgent(factory ConnectionFactory, cfg Config, opts ...Option) (*UserAgent, error) {
	ua := &UserAgent{
		Password:   cfg.Password,
		RemoteAddr: cfg.RemoteAddr,
		LocalAddr:  cfg.LocalAddr,
		queue:      newMsgQueue(),
		txn:        newTransactionFSM(),
		routes:     make(map[string]Handler),
		timeout:    defaultTimeout,
		log:        log.Logger,
	}

	for _, u := range []struct {
		raw string
		dst *sip.Uri
	}{
		{cfg.ToURI, &ua.ToURI},
		{cfg.FromURI, &ua.FromURI},
		{cfg.ContactURI, &ua.ContactURI},
	} {
		if u.raw == "" {
			continue
		}
		if err := sip.ParseUri(u.raw, u.dst); err != nil {
			return nil, fmt.Errorf("parsing uri %q: %w", u.raw, err)
		}
	}

	for _, o := range opts {
		o(ua)
	}

	ua.dispatcher = newDispatcher(ua, factory, ua.log)
	ua.dispatcher.onError = ua.onError
	return ua, nil
}

// Dispatcher exposes the per-listener demultiplexer so the transport
// collaborator can feed inbound messages into it.
func (ua *UserAgent) Dispatcher() *Dispatcher {
	return ua.dispatcher
}

// CallID returns the Call-ID adopted from the first accepted message, empty
// until then.
func (ua *UserAgent) CallID() string {
	return ua.callID
}

// AddReceiveCallback installs the single global message interceptor.
// Re-registering replaces it.
func (ua *UserAgent) AddReceiveCallback(h Handler) {
	ua.messageCallback = h
}

// AddRoute registers a handler for a method. Method matching is case
// insensitive, last write wins.
func (ua *UserAgent) AddRoute(method string, h Handler) {
	ua.routes[strings.ToUpper(method)] = h
}

// getDialog waits for the acquisition strategy to complete and caches the
// result. A second call returns the cached dialog.
func (ua *UserAgent) getDialog(ctx context.Context) (*Dialog, error) {
	if ua.dialog != nil {
		return ua.dialog, nil
	}

	ctx, cancel := context.WithTimeout(ctx, ua.timeout)
	defer cancel()

	d, err := ua.acquire(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquiring dialog: %w", ErrTimeout)
		}
		return nil, err
	}
	ua.dialog = d
	return d, nil
}

// recv drains the queue until a message of the wanted kind passes through.
// Auto-handled messages (callback or route produced a Reply) are consumed,
// messages of the other kind are skipped. The skip is deliberately
// unbounded, each iteration re-arms the pop timeout.
func (ua *UserAgent) recv(ctx context.Context, wantRequest bool) (sip.Message, error) {
	if _, err := ua.getDialog(ctx); err != nil {
		return nil, err
	}

	for {
		popCtx, cancel := context.WithTimeout(ctx, ua.timeout)
		msg, err := ua.queue.Pop(popCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				metricRecvTimeouts.Inc()
				return nil, fmt.Errorf("waiting for message: %w", ErrTimeout)
			}
			return nil, err
		}

		wrapped := ua.wrap(msg)

		if ua.messageCallback != nil {
			if rep := ua.messageCallback(wrapped); rep != nil {
				if err := wrapped.respond(ctx, rep); err != nil {
					return nil, err
				}
				continue
			}
		}

		if h := ua.routes[strings.ToUpper(messageMethod(msg))]; h != nil {
			if rep := h(wrapped); rep != nil {
				if err := wrapped.respond(ctx, rep); err != nil {
					return nil, err
				}
				continue
			}
		}

		if _, isReq := msg.(*sip.Request); isReq == wantRequest {
			return msg, nil
		}
	}
}

// RecvRequest waits for a request whose method is not ignored. The first
// accepted message adopts the agent Call-ID, later messages with another
// Call-ID are discarded. An unset CSeq counter is seeded from the message.
func (ua *UserAgent) RecvRequest(ctx context.Context, method sip.RequestMethod, ignore ...sip.RequestMethod) (*Request, error) {
	var req *sip.Request
	for {
		msg, err := ua.recv(ctx, true)
		if err != nil {
			return nil, err
		}
		req = msg.(*sip.Request)

		cid := messageCallID(msg)
		if ua.callID == "" {
			ua.callID = cid
		} else if cid != ua.callID {
			continue
		}

		if !methodIn(ignore, req.Method) {
			break
		}
	}

	if ua.cseq == 0 {
		if h := req.CSeq(); h != nil {
			ua.cseq = h.SeqNo
		}
	}

	if req.Method != method {
		return nil, ErrUnexpectedMessage{Expected: method.String(), Actual: req.Method.String()}
	}

	ua.log.Debug().Str("method", req.Method.String()).Str("call_id", ua.callID).Msg("Received request")
	return &Request{agent: ua, Raw: req}, nil
}

// RecvResponse waits for a response whose status code is not ignored,
// applying the same Call-ID adoption rule as RecvRequest. When the status
// differs from the expected one and an INVITE is awaiting acknowledgment,
// the response is ACKed before the mismatch error is returned so the peer
// transaction is not left hanging.
func (ua *UserAgent) RecvResponse(ctx context.Context, status sip.StatusCode, ignore ...sip.StatusCode) (*Response, error) {
	var res *sip.Response
	for {
		msg, err := ua.recv(ctx, false)
		if err != nil {
			return nil, err
		}
		res = msg.(*sip.Response)

		cid := messageCallID(msg)
		if ua.callID == "" {
			ua.callID = cid
		} else if cid != ua.callID {
			continue
		}

		if !statusIn(ignore, res.StatusCode) {
			break
		}
	}

	wrapped := &Response{agent: ua, Raw: res}
	if res.StatusCode != status {
		if ua.txn.Is(txStateAwaitingAck) {
			if err := wrapped.Ack(ctx); err != nil {
				ua.log.Error().Err(err).Msg("Failed to acknowledge unexpected response")
			}
		}
		return nil, ErrUnexpectedMessage{
			Expected: strconv.Itoa(int(status)),
			Actual:   fmt.Sprintf("%d %s", res.StatusCode, res.Reason),
		}
	}

	ua.log.Debug().Int("status", int(res.StatusCode)).Str("call_id", ua.callID).Msg("Received response")
	return wrapped, nil
}

// SendRequest transmits a request through the dialog. Without an explicit
// CSeq header the counter is incremented and paired with the method, an
// explicit header sets the counter to its number.
func (ua *UserAgent) SendRequest(ctx context.Context, method sip.RequestMethod, body []byte, headers ...sip.Header) error {
	return ua.sendRequest(ctx, method, headers, body, nil, nil)
}

func (ua *UserAgent) sendRequest(ctx context.Context, method sip.RequestMethod, headers []sip.Header, body []byte, to *sip.ToHeader, from *sip.FromHeader) error {
	d, err := ua.getDialog(ctx)
	if err != nil {
		return err
	}

	switch method {
	case sip.INVITE:
		if err := txFire(ctx, ua.txn, txEventInvite); err != nil {
			return err
		}
	case sip.ACK:
		if err := txFire(ctx, ua.txn, txEventAck); err != nil {
			return err
		}
	}

	var cseq *sip.CSeqHeader
	for _, h := range headers {
		if c, ok := h.(*sip.CSeqHeader); ok {
			cseq = c
			break
		}
	}
	if cseq == nil {
		ua.cseq++
		headers = append(headers, &sip.CSeqHeader{SeqNo: ua.cseq, MethodName: method})
	} else {
		ua.cseq = cseq.SeqNo
	}

	ua.log.Info().Str("method", method.String()).Msg("Sending request")
	return d.SendMessage(method, headers, body, to, from)
}

// SendResponse transmits a response answering the last received request. It
// does not touch the CSeq counter, a response echoes the CSeq of the request
// it answers.
func (ua *UserAgent) SendResponse(ctx context.Context, status sip.StatusCode, reason string, body []byte, headers ...sip.Header) error {
	return ua.sendResponse(ctx, nil, status, reason, body, headers...)
}

func (ua *UserAgent) sendResponse(ctx context.Context, req *sip.Request, status sip.StatusCode, reason string, body []byte, headers ...sip.Header) error {
	d, err := ua.getDialog(ctx)
	if err != nil {
		return err
	}

	ua.log.Info().Int("status", int(status)).Str("reason", reason).Msg("Sending response")
	return d.SendReply(req, status, reason, headers, body)
}

// Close releases the bound dialog and every connection held by the listener
// registry. No-op when no dialog is bound.
func (ua *UserAgent) Close() error {
	if ua.dialog == nil {
		return nil
	}

	err := ua.dialog.Close()
	if cerr := ua.dispatcher.closeConns(); cerr != nil && err == nil {
		err = cerr
	}
	ua.dialog = nil
	return err
}

func (ua *UserAgent) wrap(msg sip.Message) Envelope {
	if req, ok := msg.(*sip.Request); ok {
		return &Request{agent: ua, Raw: req}
	}
	return &Response{agent: ua, Raw: msg.(*sip.Response)}
}

// messageMethod names the method a message belongs to. Responses are
// attributed through their CSeq method token.
func messageMethod(msg sip.Message) string {
	switch m := msg.(type) {
	case *sip.Request:
		return m.Method.String()
	case *sip.Response:
		if h := m.CSeq(); h != nil {
			return h.MethodName.String()
		}
	}
	return ""
}

func methodIn(methods []sip.RequestMethod, m sip.RequestMethod) bool {
	for _, v := range methods {
		if v == m {
			return true
		}
	}
	return false
}

func statusIn(codes []sip.StatusCode, c sip.StatusCode) bool {
	for _, v := range codes {
		if v == c {
			return true
		}
	}
	return false
}
