package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/vocalcast/speakerd/internal/protocol"
)

// commandContext carries what a handler may need. conn is nil on the
// UDP front, where subscription commands are unavailable and results
// are discarded.
type commandContext struct {
	conn *wsConn
	raw  []byte
}

type handlerFunc func(cc *commandContext) (any, error)

func (cc *commandContext) decode(v any) error {
	if err := json.Unmarshal(cc.raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// handlers builds the dispatch table shared by both fronts. Command
// names are matched case-insensitively.
func (s *Server) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"speak":       s.handleSpeak,
		"stop":        s.handleStop,
		"pause":       s.handlePause,
		"resume":      s.handleResume,
		"enable":      s.handleEnable,
		"disable":     s.handleDisable,
		"clear":       s.handleClear,
		"getinfo":     s.handleGetInfo,
		"commands":    s.handleCommands,
		"events":      s.handleEvents,
		"subscribe":   s.handleSubscribe,
		"unsubscribe": s.handleUnsubscribe,
	}
}

// dispatch routes one command. Unknown commands are acknowledged with an
// empty success so older daemons and newer controllers stay compatible.
func (s *Server) dispatch(name string, cc *commandContext) (any, error) {
	handler, ok := s.table[strings.ToLower(name)]
	if !ok {
		s.log.Info("unhandled command", slog.String("command", name))
		return nil, nil
	}
	return handler(cc)
}

func (s *Server) handleSpeak(cc *commandContext) (any, error) {
	var args protocol.SpeakArgs
	if err := cc.decode(&args); err != nil {
		return nil, err
	}
	id, err := s.svc.Speak(args.Message, args.Voice, args.BadWordFilter)
	if err != nil {
		return nil, err
	}
	return map[string]string{"id": id}, nil
}

func (s *Server) handleStop(cc *commandContext) (any, error) {
	s.svc.Stop()
	return nil, nil
}

func (s *Server) handlePause(cc *commandContext) (any, error) {
	s.svc.Pause()
	return nil, nil
}

func (s *Server) handleResume(cc *commandContext) (any, error) {
	s.svc.Resume()
	return nil, nil
}

func (s *Server) handleEnable(cc *commandContext) (any, error) {
	s.svc.Enable()
	return nil, nil
}

func (s *Server) handleDisable(cc *commandContext) (any, error) {
	s.svc.Disable()
	return nil, nil
}

func (s *Server) handleClear(cc *commandContext) (any, error) {
	return map[string]int{"cleared": s.svc.Clear()}, nil
}

func (s *Server) handleGetInfo(cc *commandContext) (any, error) {
	return s.svc.Info(), nil
}

func (s *Server) handleCommands(cc *commandContext) (any, error) {
	names := make([]string, 0, len(s.table))
	for name := range s.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Server) handleEvents(cc *commandContext) (any, error) {
	return protocol.KnownEvents, nil
}

func (s *Server) handleSubscribe(cc *commandContext) (any, error) {
	if cc.conn == nil {
		return nil, fmt.Errorf("subscribe requires a websocket connection")
	}
	var args protocol.SubscribeArgs
	if err := cc.decode(&args); err != nil {
		return nil, err
	}
	if len(args.Events) == 0 {
		return nil, fmt.Errorf("missing events map")
	}
	cc.conn.subs.add(args.Events)
	return cc.conn.subs.active(), nil
}

func (s *Server) handleUnsubscribe(cc *commandContext) (any, error) {
	if cc.conn == nil {
		return nil, fmt.Errorf("unsubscribe requires a websocket connection")
	}
	var args protocol.SubscribeArgs
	if err := cc.decode(&args); err != nil {
		return nil, err
	}
	if len(args.Events) == 0 {
		return nil, fmt.Errorf("missing events map")
	}
	cc.conn.subs.remove(args.Events)
	return cc.conn.subs.active(), nil
}
