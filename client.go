// SPDX-License-Identifier: MPL-2.0

package sipster

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Client is a user agent that originates the call: dialog acquisition
// actively opens a connection to the configured remote address.
type Client struct {
	*UserAgent
}

func NewClient(factory ConnectionFactory, cfg Config, opts ...Option) (*Client, error) {
	ua, err := newUserAgent(factory, cfg, opts...)
	if err != nil {
		return nil, err
	}

	c := &Client{UserAgent: ua}
	ua.acquire = c.startDialog
	return c, nil
}

func (c *Client) startDialog(ctx context.Context) (*Dialog, error) {
	conn, err := c.dispatcher.factory.CreateConnection(ctx, "udp", c.LocalAddr, c.RemoteAddr, ConnectionModeActive)
	if err != nil {
		return nil, fmt.Errorf("starting dialog: %w", err)
	}

	dlg := &Dialog{
		agent:      c.UserAgent,
		conn:       conn,
		callID:     newCallID(),
		localAddr:  c.LocalAddr,
		remoteAddr: c.RemoteAddr,
		toURI:      c.ToURI,
		fromURI:    c.FromURI,
		contact:    c.ContactURI,
		fromTag:    newTag(),
	}

	c.dispatcher.dialogs.Store(dlg.callID, dlg)
	c.log.Debug().Str("call_id", dlg.callID).Str("remote_addr", c.RemoteAddr).Msg("New outbound dialog")
	return dlg, nil
}

func newCallID() string {
	return uuid.NewString()
}

func newTag() string {
	return uuid.NewString()[:8]
}
