package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pbnjay/memory"
	"github.com/prometheus/procfs"
)

// statusPayload is the /status response body.
type statusPayload struct {
	Rows      int    `json:"rows"`
	Cols      int    `json:"cols"`
	CardsLeft int    `json:"cardsLeft"`
	Version   uint64 `json:"version"`
	Players   int    `json:"players"`
	UptimeSec int64  `json:"uptimeSec"`

	// Process and host figures; zero when /proc is unavailable.
	ResidentMemBytes uint64 `json:"residentMemBytes,omitempty"`
	SystemMemBytes   uint64 `json:"systemMemBytes,omitempty"`
}

// handleStatus reports an operational snapshot of the server.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := statusPayload{
		Rows:           s.board.Rows(),
		Cols:           s.board.Cols(),
		CardsLeft:      s.board.CardsLeft(),
		Version:        s.board.Version(),
		Players:        s.playerCount(),
		UptimeSec:      int64(time.Since(s.started).Seconds()),
		SystemMemBytes: memory.TotalMemory(),
	}
	if p, err := procfs.Self(); err == nil {
		if stat, err := p.Stat(); err == nil {
			payload.ResidentMemBytes = uint64(stat.ResidentMemory())
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Debugf("status encode: %v", err)
	}
}
