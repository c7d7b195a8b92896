// SPDX-License-Identifier: MPL-2.0

package sipster

import (
	"context"
	"sync"

	"github.com/emiago/sipgo/sip"
)

// connRecorder captures outbound messages instead of hitting the network.
type connRecorder struct {
	mu     sync.Mutex
	msgs   []sip.Message
	closes int
}

func (c *connRecorder) WriteMsg(msg sip.Message) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	return nil
}

func (c *connRecorder) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return nil
}

func (c *connRecorder) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *connRecorder) Msgs() []sip.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sip.Message{}, c.msgs...)
}

func (c *connRecorder) Requests() []*sip.Request {
	var reqs []*sip.Request
	for _, m := range c.Msgs() {
		if req, ok := m.(*sip.Request); ok {
			reqs = append(reqs, req)
		}
	}
	return reqs
}

func (c *connRecorder) Responses() []*sip.Response {
	var resps []*sip.Response
	for _, m := range c.Msgs() {
		if res, ok := m.(*sip.Response); ok {
			resps = append(resps, res)
		}
	}
	return resps
}

// memFactory is an in-memory ConnectionFactory recording every established
// endpoint.
type memFactory struct {
	mu    sync.Mutex
	conns []*connRecorder
	err   error
}

func (f *memFactory) CreateConnection(ctx context.Context, network string, laddr string, raddr string, mode ConnectionMode) (Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	conn := &connRecorder{}
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *memFactory) Conn(i int) *connRecorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.conns) {
		return nil
	}
	return f.conns[i]
}

func (f *memFactory) ConnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}
