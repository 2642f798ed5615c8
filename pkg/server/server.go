// Package server exposes a Board over a websocket text-command protocol.
// Each connection serves one player; commands map one-to-one onto Board
// operations, plus a stats query backed by sqlite and a watch subscription
// that pushes every new snapshot.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/gorilla/websocket"

	"github.com/vctt94/memoryscramble/pkg/board"
	"github.com/vctt94/memoryscramble/pkg/logging"
)

// Server serves a single board to any number of concurrent players.
type Server struct {
	log        slog.Logger
	logBackend *logging.LogBackend
	board      *board.Board
	db         Database

	boardFile string
	gameID    int64
	finishDB  sync.Once

	upgrader websocket.Upgrader

	mu         sync.RWMutex
	sessions   map[*session]struct{}
	transforms map[string]TransformFunc

	started time.Time
}

// NewServer creates a new scramble server around an already constructed
// board. boardFile is recorded in the games table; it may be empty for
// generated boards.
func NewServer(b *board.Board, database Database, logBackend *logging.LogBackend, boardFile string) *Server {
	srv := &Server{
		log:        logBackend.Logger("SRVR"),
		logBackend: logBackend,
		board:      b,
		db:         database,
		boardFile:  boardFile,
		sessions:   make(map[*session]struct{}),
		transforms: builtinTransforms(),
		started:    time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The protocol is player-addressed, not cookie-addressed;
			// cross-origin pages get nothing a curl would not.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	b.SetLogger(logBackend.Logger("BORD"))

	id, err := database.StartGame(b.Rows(), b.Cols(), boardFile)
	if err != nil {
		srv.log.Warnf("recording game start: %v", err)
	}
	srv.gameID = id
	return srv
}

// RegisterTransform makes f available to the map command under name,
// replacing any builtin of the same name.
func (s *Server) RegisterTransform(name string, f TransformFunc) {
	s.mu.Lock()
	s.transforms[name] = f
	s.mu.Unlock()
}

func (s *Server) transform(name string) (TransformFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.transforms[name]
	return f, ok
}

// Handler returns the HTTP routes: /ws for the game protocol, /status for
// the operational snapshot.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// handleWS upgrades the connection and runs the session until it ends.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	player := r.URL.Query().Get("player")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugf("upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	newSession(s, conn, player).run()
}

// Run serves addr until ctx is cancelled, then closes every session and
// shuts the listener down.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", addr)
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}

	s.log.Infof("shutting down")
	s.closeAllSessions()

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeSession(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

func (s *Server) closeAllSessions() {
	s.mu.RLock()
	open := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.RUnlock()
	for _, sess := range open {
		sess.close()
	}
}

// playerCount returns how many distinct players are connected.
func (s *Server) playerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{}, len(s.sessions))
	for sess := range s.sessions {
		seen[sess.player] = struct{}{}
	}
	return len(seen)
}

// boardDrained runs once when the last card leaves the board.
func (s *Server) boardDrained() {
	s.finishDB.Do(func() {
		s.log.Infof("board cleared")
		if err := s.db.FinishGame(s.gameID); err != nil {
			s.log.Warnf("recording game finish: %v", err)
		}
	})
}
