package server

import (
	"context"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/gorilla/websocket"

	"github.com/vctt94/memoryscramble/pkg/board"
	"github.com/vctt94/memoryscramble/pkg/statemachine"
)

// SessionStateFn represents a session state function following Rob Pike's
// pattern.
type SessionStateFn = statemachine.StateFn[session]

// session is one websocket connection serving one player. A state machine
// drives it: join registers the player, serve handles one command frame per
// dispatch, close tears everything down. Command execution happens on the
// session's own goroutine, so a blocking flip simply parks the session.
type session struct {
	srv    *Server
	conn   *websocket.Conn
	player string
	log    slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// writeMu serializes frame writes: command replies from the session
	// goroutine, pushes from the watch goroutine, pings from the pinger.
	writeMu sync.Mutex

	// watchCancel stops the watch pusher; only the session goroutine
	// touches it.
	watchCancel context.CancelFunc

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newSession(srv *Server, conn *websocket.Conn, player string) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		srv:    srv,
		conn:   conn,
		player: player,
		log:    srv.log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// run drives the session to completion. It blocks until the connection is
// gone and every helper goroutine has exited.
func (s *session) run() {
	s.wg.Add(1)
	go s.pinger()

	sm := statemachine.New(s, sessionStateJoin)
	sm.Run(func(state string, event statemachine.Event) {
		if event == statemachine.StateEntered {
			s.log.Tracef("session %s: %s", s.player, state)
		}
	})

	s.close()
	s.wg.Wait()
}

func sessionStateJoin(s *session, notify statemachine.NotifyFn) SessionStateFn {
	if notify != nil {
		notify("join", statemachine.StateEntered)
	}
	if !board.ValidPlayerID(s.player) {
		s.reply(errorFrame("bad-player", board.ErrInvalidPlayerID))
		return sessionStateClose
	}
	s.srv.addSession(s)
	s.recordDB(func() error { return s.srv.db.RecordSession(s.player) })
	s.log.Infof("player %s connected from %s", s.player, s.conn.RemoteAddr())

	view, err := s.srv.board.Look(s.player)
	if err != nil {
		s.reply(errorFrame(errorKind(err), err))
		return sessionStateClose
	}
	s.reply("ok\n" + view)
	return sessionStateServe
}

func sessionStateServe(s *session, notify statemachine.NotifyFn) SessionStateFn {
	if notify != nil {
		notify("serve", statemachine.StateEntered)
	}
	mt, data, err := s.conn.ReadMessage()
	if err != nil {
		if s.ctx.Err() == nil {
			s.log.Debugf("player %s read: %v", s.player, err)
		}
		return sessionStateClose
	}
	if mt != websocket.TextMessage {
		s.reply("error bad-command: binary frames not supported")
		return sessionStateServe
	}

	cmd, err := parseCommand(string(data))
	if err != nil {
		s.reply("error bad-command: " + err.Error())
		return sessionStateServe
	}
	resp, done := s.execute(cmd)
	s.reply(resp)
	if done {
		return sessionStateClose
	}
	return sessionStateServe
}

func sessionStateClose(s *session, notify statemachine.NotifyFn) SessionStateFn {
	if notify != nil {
		notify("close", statemachine.StateEntered)
	}
	return nil
}

// reply sends one frame on the session goroutine, before anything else is
// read or the connection is torn down.
func (s *session) reply(frame string) {
	if err := s.writeFrame(frame); err != nil {
		s.log.Debugf("player %s write: %v", s.player, err)
		s.close()
	}
}

func (s *session) writeFrame(frame string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// pinger notices dead peers even while the session goroutine is parked
// inside a blocking flip.
func (s *session) pinger() {
	defer s.wg.Done()
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-ping.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(10*time.Second))
			s.writeMu.Unlock()
			if err != nil {
				s.close()
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// startWatch launches the push loop; a second watch is a no-op.
func (s *session) startWatch() {
	if s.watchCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.watchCancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			view, err := s.srv.board.Watch(ctx, s.player)
			if err != nil {
				return
			}
			if err := s.writeFrame("push\n" + view); err != nil {
				s.close()
				return
			}
		}
	}()
}

func (s *session) stopWatch() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
}

// close tears the session down exactly once: cancels any parked flip or
// watch, drops the registration and closes the socket.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.srv.removeSession(s)
		s.conn.Close()
		s.log.Infof("player %s disconnected", s.player)
	})
}
