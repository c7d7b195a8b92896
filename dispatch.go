// SPDX-License-Identifier: MPL-2.0

package sipster

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/emiago/sipgo/sip"
	"github.com/rs/zerolog"
)

// Dispatcher demultiplexes raw inbound messages by Call-ID. The transport
// collaborator feeds every parsed message into Dispatch. Known Call-IDs are
// routed synchronously into their dialog, the first unmatched message
// triggers reactive dialog creation in the background so intake for other
// calls is never blocked.
type Dispatcher struct {
	agent   *UserAgent
	factory ConnectionFactory
	log     zerolog.Logger

	dialogs sync.Map // Call-ID -> *Dialog
	ready   *dialogFuture

	mu    sync.Mutex
	conns []Connection

	onError func(error)
}

func newDispatcher(agent *UserAgent, factory ConnectionFactory, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		agent:   agent,
		factory: factory,
		log:     log,
		ready:   newDialogFuture(),
	}
}

// Dispatch routes one inbound message. Entries in the Call-ID table are only
// ever inserted here and by the client dialog setup, never removed; cleanup
// belongs to connection teardown.
func (ds *Dispatcher) Dispatch(msg sip.Message) {
	metricMessagesDispatched.Inc()

	key := messageCallID(msg)
	if key == "" {
		ds.log.Warn().Msg("Dropping message without Call-ID")
		return
	}

	if v, ok := ds.dialogs.Load(key); ok {
		v.(*Dialog).Receive(msg)
		return
	}

	go ds.handleIncoming(msg)
}

// handleIncoming creates a dialog for the first unmatched inbound message.
// Once the ready future is resolved any further unmatched message is
// discarded: one listener instance serves a single inbound call.
func (ds *Dispatcher) handleIncoming(msg sip.Message) {
	if ds.ready.Resolved() {
		ds.log.Debug().Str("call_id", messageCallID(msg)).Msg("Dialog already established, discarding message")
		return
	}

	req, ok := msg.(*sip.Request)
	if !ok {
		ds.fail(fmt.Errorf("out of dialog response call_id=%s", messageCallID(msg)))
		return
	}

	to := req.To()
	contact := req.Contact()
	if to == nil || contact == nil {
		ds.fail(fmt.Errorf("request %s lacks To or Contact routing headers", req.Method))
		return
	}

	localAddr := ds.agent.LocalAddr
	if localAddr == "" {
		localAddr = uriHostPort(to.Address)
	}
	remoteAddr := uriHostPort(contact.Address)

	ctx, cancel := context.WithTimeout(context.Background(), ds.agent.timeout)
	defer cancel()

	// The connection becomes dialog owned, its close goes through the
	// dialog and not the listener registry.
	conn, err := ds.factory.CreateConnection(ctx, "udp", localAddr, remoteAddr, ConnectionModeActive)
	if err != nil {
		ds.fail(fmt.Errorf("creating connection for inbound call: %w", err))
		return
	}

	fromURI := ds.agent.FromURI
	if fromURI.Host == "" {
		fromURI = to.Address
	}

	dlg := &Dialog{
		agent:      ds.agent,
		conn:       conn,
		callID:     messageCallID(msg),
		localAddr:  localAddr,
		remoteAddr: remoteAddr,
		toURI:      contact.Address,
		fromURI:    fromURI,
		contact:    ds.agent.ContactURI,
		fromTag:    newTag(),
	}

	ds.dialogs.Store(dlg.callID, dlg)
	dlg.Receive(msg)
	ds.ready.Resolve(dlg)
	metricDialogsCreated.Inc()

	ds.log.Info().Str("call_id", dlg.callID).Str("remote_addr", remoteAddr).Msg("New inbound dialog")
}

func (ds *Dispatcher) fail(err error) {
	metricDispatchErrors.Inc()
	ds.log.Error().Err(err).Msg("Failed to handle inbound message")
	if ds.onError != nil {
		ds.onError(err)
	}
}

func (ds *Dispatcher) registerConn(conn Connection) {
	ds.mu.Lock()
	ds.conns = append(ds.conns, conn)
	ds.mu.Unlock()
}

func (ds *Dispatcher) closeConns() error {
	ds.mu.Lock()
	conns := ds.conns
	ds.conns = nil
	ds.mu.Unlock()

	var err error
	for _, c := range conns {
		if cerr := c.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}

func messageCallID(msg sip.Message) string {
	switch m := msg.(type) {
	case *sip.Request:
		if h := m.CallID(); h != nil {
			return h.Value()
		}
	case *sip.Response:
		if h := m.CallID(); h != nil {
			return h.Value()
		}
	}
	return ""
}

func uriHostPort(uri sip.Uri) string {
	return net.JoinHostPort(uri.Host, strconv.Itoa(uri.Port))
}
