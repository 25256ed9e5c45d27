package server

import (
	"encoding/json"
	"log/slog"
	"net"

	"github.com/vocalcast/speakerd/internal/protocol"
)

// serveUDP drains the fire-and-forget command socket. Commands carry no
// reply channel, so failures are only logged.
func (s *Server) serveUDP() {
	defer s.wg.Done()

	buf := make([]byte, s.cfg.MaxMessageBytes+1)
	for {
		n, remote, err := s.udp.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			// Closed socket during shutdown.
			return
		}
		if n > s.cfg.MaxMessageBytes {
			s.log.Warn("dropping oversized udp command",
				slog.Int("bytes", n),
				slog.String("remote", remote.String()))
			continue
		}
		s.handleDatagram(buf[:n], remote)
	}
}

func (s *Server) handleDatagram(raw []byte, remote *net.UDPAddr) {
	var env protocol.Command
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Debug("discarding malformed udp command", slog.String("remote", remote.String()))
		return
	}
	if env.Command == "" {
		s.log.Debug("discarding udp datagram without command", slog.String("remote", remote.String()))
		return
	}

	if _, err := s.dispatch(env.Command, &commandContext{raw: raw}); err != nil {
		s.log.Warn("udp command failed",
			slog.String("command", env.Command),
			slog.String("error", err.Error()))
	}
}
