// SPDX-License-Identifier: MPL-2.0

package sipster

import (
	"context"
	"fmt"

	"github.com/emiago/sipgo/sip"
)

// Envelope is the wrapped view of one inbound message handed to callbacks
// and routes. Concrete types are *Request and *Response; anything beyond the
// accessors below is reached through their exported Raw field.
type Envelope interface {
	sipMessage() sip.Message
	respond(ctx context.Context, r *Reply) error
}

// Reply is an automatic response produced by a receive callback or a method
// route. A nil Reply leaves the message to the receive loop.
type Reply struct {
	Status  sip.StatusCode
	Reason  string
	Headers []sip.Header
	Body    []byte
}

// Handler inspects a wrapped inbound message and may produce an automatic
// Reply, consuming the message.
type Handler func(msg Envelope) *Reply

// Request wraps an inbound request together with its owning agent.
type Request struct {
	agent *UserAgent
	Raw   *sip.Request
}

func (r *Request) sipMessage() sip.Message { return r.Raw }

func (r *Request) Method() sip.RequestMethod { return r.Raw.Method }

func (r *Request) CallID() (string, error) {
	if h := r.Raw.CallID(); h != nil {
		return h.Value(), nil
	}
	return "", fmt.Errorf("%w: Call-ID", ErrMissingHeader)
}

func (r *Request) CSeq() (*sip.CSeqHeader, error) {
	if h := r.Raw.CSeq(); h != nil {
		return h, nil
	}
	return nil, fmt.Errorf("%w: CSeq", ErrMissingHeader)
}

func (r *Request) Body() []byte { return r.Raw.Body() }

func (r *Request) String() string { return r.Raw.String() }

// Respond answers this request. The response echoes the request CSeq and
// carries its To/From in response orientation.
func (r *Request) Respond(ctx context.Context, status sip.StatusCode, reason string, body []byte, headers ...sip.Header) error {
	return r.agent.sendResponse(ctx, r.Raw, status, reason, body, headers...)
}

func (r *Request) respond(ctx context.Context, rep *Reply) error {
	return r.Respond(ctx, rep.Status, rep.Reason, rep.Body, rep.Headers...)
}

// Response wraps an inbound response together with its owning agent.
type Response struct {
	agent *UserAgent
	Raw   *sip.Response
}

func (r *Response) sipMessage() sip.Message { return r.Raw }

func (r *Response) StatusCode() sip.StatusCode { return r.Raw.StatusCode }

func (r *Response) Reason() string { return r.Raw.Reason }

func (r *Response) CallID() (string, error) {
	if h := r.Raw.CallID(); h != nil {
		return h.Value(), nil
	}
	return "", fmt.Errorf("%w: Call-ID", ErrMissingHeader)
}

func (r *Response) CSeq() (*sip.CSeqHeader, error) {
	if h := r.Raw.CSeq(); h != nil {
		return h, nil
	}
	return nil, fmt.Errorf("%w: CSeq", ErrMissingHeader)
}

func (r *Response) Body() []byte { return r.Raw.Body() }

func (r *Response) String() string { return r.Raw.String() }

// Ack acknowledges this response. The ACK reuses the response CSeq number
// with the method token replaced and copies the response routing.
func (r *Response) Ack(ctx context.Context) error {
	return r.followUp(ctx, sip.ACK)
}

// Cancel aborts the transaction this response belongs to.
func (r *Response) Cancel(ctx context.Context) error {
	return r.followUp(ctx, sip.CANCEL)
}

func (r *Response) followUp(ctx context.Context, method sip.RequestMethod) error {
	cseq, err := r.CSeq()
	if err != nil {
		return err
	}
	hdr := &sip.CSeqHeader{SeqNo: cseq.SeqNo, MethodName: method}
	return r.agent.sendRequest(ctx, method, []sip.Header{hdr}, nil, r.Raw.To(), r.Raw.From())
}

func (r *Response) respond(ctx context.Context, rep *Reply) error {
	return ErrNotRespondable
}
