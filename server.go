// SPDX-License-Identifier: MPL-2.0

package sipster

import (
	"context"
	"fmt"
)

// Server is a user agent that answers a call: dialog acquisition awaits the
// dispatcher ready signal, resolved by the first unmatched inbound message
// after Listen bound the local endpoint.
type Server struct {
	*UserAgent
}

func NewServer(factory ConnectionFactory, cfg Config, opts ...Option) (*Server, error) {
	ua, err := newUserAgent(factory, cfg, opts...)
	if err != nil {
		return nil, err
	}

	s := &Server{UserAgent: ua}
	ua.acquire = func(ctx context.Context) (*Dialog, error) {
		return ua.dispatcher.ready.Wait(ctx)
	}
	return s, nil
}

// Listen binds the local endpoint. The local address falls back to the
// Contact URI host:port when not configured.
func (s *Server) Listen(ctx context.Context) error {
	localAddr := s.LocalAddr
	if localAddr == "" {
		if s.ContactURI.Host == "" {
			return fmt.Errorf("sipster: no local address and no contact uri to listen on")
		}
		localAddr = uriHostPort(s.ContactURI)
	}

	conn, err := s.dispatcher.factory.CreateConnection(ctx, "udp", localAddr, "", ConnectionModePassive)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", localAddr, err)
	}
	s.dispatcher.registerConn(conn)

	s.log.Info().Str("local_addr", localAddr).Msg("Listening")
	return nil
}
