// SPDX-License-Identifier: MPL-2.0

package sipster

import (
	"context"
	"errors"
	"sync"

	"github.com/emiago/sipgo/sip"
)

// ConnectionMode distinguishes active (client) from passive (server)
// endpoint establishment.
type ConnectionMode int

const (
	ConnectionModeActive ConnectionMode = iota
	ConnectionModePassive
)

// Connection is the serialize-and-transmit primitive of the transport
// collaborator. It matches the sipgo transport connection shape.
type Connection interface {
	WriteMsg(msg sip.Message) error
	Close() error
}

// ConnectionFactory establishes network endpoints. Implementations are
// expected to feed every inbound parsed message into the owning agent's
// Dispatcher.
type ConnectionFactory interface {
	CreateConnection(ctx context.Context, network string, laddr string, raddr string, mode ConnectionMode) (Connection, error)
}

// Dialog binds one call to one transport connection. Every inbound message
// for its Call-ID is forwarded into the owning agent's queue; outbound
// requests and replies go out through the bound connection.
type Dialog struct {
	agent *UserAgent
	conn  Connection

	callID     string
	localAddr  string
	remoteAddr string

	toURI   sip.Uri
	fromURI sip.Uri
	contact sip.Uri
	fromTag string

	mu      sync.Mutex
	lastReq *sip.Request
	closed  bool
}

// Receive pushes an inbound message onto the owning agent's queue. It never
// blocks and never drops.
func (d *Dialog) Receive(msg sip.Message) {
	if req, ok := msg.(*sip.Request); ok {
		d.mu.Lock()
		d.lastReq = req
		d.mu.Unlock()
	}
	d.agent.queue.Push(msg)
}

// CallID returns the Call-ID this dialog is bound to.
func (d *Dialog) CallID() string {
	return d.callID
}

// SendMessage builds and transmits an outbound request. to and from override
// the dialog routing when taken from a previously received message, nil
// falls back to the dialog defaults. headers must already carry the CSeq
// decided by the agent.
func (d *Dialog) SendMessage(method sip.RequestMethod, headers []sip.Header, body []byte, to *sip.ToHeader, from *sip.FromHeader) error {
	recipient := d.toURI
	if to != nil {
		recipient = to.Address
	}

	req := sip.NewRequest(method, recipient)

	if from != nil {
		req.AppendHeader(sip.HeaderClone(from))
	} else {
		fh := &sip.FromHeader{
			Address: *d.fromURI.Clone(),
			Params:  sip.NewParams(),
		}
		fh.Params.Add("tag", d.fromTag)
		req.AppendHeader(fh)
	}

	if to != nil {
		req.AppendHeader(sip.HeaderClone(to))
	} else {
		req.AppendHeader(&sip.ToHeader{
			Address: *d.toURI.Clone(),
			Params:  sip.NewParams(),
		})
	}

	callID := sip.CallIDHeader(d.callID)
	req.AppendHeader(&callID)

	req.AppendHeader(&sip.ContactHeader{Address: *d.contact.Clone()})

	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	for _, h := range headers {
		req.AppendHeader(h)
	}

	if body != nil {
		req.SetBody(body)
	}

	return d.conn.WriteMsg(req)
}

// SendReply builds and transmits a response for req. When req is nil the
// last inbound request of the dialog is answered. The response echoes the
// request CSeq and carries its To/From swapped into response orientation.
func (d *Dialog) SendReply(req *sip.Request, status sip.StatusCode, reason string, headers []sip.Header, body []byte) error {
	if req == nil {
		d.mu.Lock()
		req = d.lastReq
		d.mu.Unlock()
	}
	if req == nil {
		return errors.New("sipster: no request to reply to")
	}

	res := sip.NewResponseFromRequest(req, status, reason, body)
	res.AppendHeader(&sip.ContactHeader{Address: *d.contact.Clone()})
	for _, h := range headers {
		res.AppendHeader(h)
	}
	return d.conn.WriteMsg(res)
}

// Close releases the bound connection. Safe to call multiple times, the
// connection is closed once.
func (d *Dialog) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	return d.conn.Close()
}
