package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vctt94/memoryscramble/pkg/board"
)

// The wire protocol is one text frame per command and one per response.
//
//	look            -> "ok\n" board
//	flip R C        -> "ok\n" board, may block while the card is held
//	watch           -> "ok watching", then "push\n" board on every change
//	unwatch         -> "ok idle"
//	map NAME        -> "ok\n" board after the transform
//	stats           -> "ok flips=N matches=N mismatches=N sessions=N"
//	bye             -> "ok bye", server closes the connection
//
// Failures answer "error KIND: detail" and keep the connection open.

// TransformFunc rewrites a card value for the map command.
type TransformFunc func(string) (string, error)

// builtinTransforms are the value rewrites clients may request by name.
// Arbitrary client-supplied code is never accepted.
func builtinTransforms() map[string]TransformFunc {
	return map[string]TransformFunc{
		"upper": func(v string) (string, error) { return strings.ToUpper(v), nil },
		"lower": func(v string) (string, error) { return strings.ToLower(v), nil },
		"tag":   func(v string) (string, error) { return v + "_x", nil },
	}
}

type command struct {
	name string
	args []string
}

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}
	return command{name: fields[0], args: fields[1:]}, nil
}

// errorKind maps a board error to the protocol's error discriminator.
func errorKind(err error) string {
	switch {
	case errors.Is(err, board.ErrNoCard):
		return "no-card"
	case errors.Is(err, board.ErrControlled):
		return "controlled"
	case errors.Is(err, board.ErrInvalidCoordinates):
		return "bad-coordinates"
	case errors.Is(err, board.ErrInvalidPlayerID):
		return "bad-player"
	case errors.Is(err, board.ErrInvalidMappedValue):
		return "bad-value"
	default:
		return "internal"
	}
}

func errorFrame(kind string, err error) string {
	return fmt.Sprintf("error %s: %v", kind, err)
}

// execute runs one parsed command against the session's board and returns
// the response frame. Returning done=true closes the session afterwards.
func (s *session) execute(cmd command) (resp string, done bool) {
	switch cmd.name {
	case "look":
		view, err := s.srv.board.Look(s.player)
		if err != nil {
			return errorFrame(errorKind(err), err), false
		}
		return "ok\n" + view, false

	case "flip":
		if len(cmd.args) != 2 {
			return "error bad-command: usage: flip ROW COL", false
		}
		row, err1 := strconv.Atoi(cmd.args[0])
		col, err2 := strconv.Atoi(cmd.args[1])
		if err1 != nil || err2 != nil {
			return "error bad-command: coordinates must be integers", false
		}
		return s.flip(row, col), false

	case "watch":
		s.startWatch()
		return "ok watching", false

	case "unwatch":
		s.stopWatch()
		return "ok idle", false

	case "map":
		if len(cmd.args) != 1 {
			return "error bad-command: usage: map NAME", false
		}
		f, ok := s.srv.transform(cmd.args[0])
		if !ok {
			return fmt.Sprintf("error bad-command: unknown transform %q", cmd.args[0]), false
		}
		if err := s.srv.board.Map(f); err != nil {
			return errorFrame(errorKind(err), err), false
		}
		view, err := s.srv.board.Look(s.player)
		if err != nil {
			return errorFrame(errorKind(err), err), false
		}
		return "ok\n" + view, false

	case "stats":
		stats, err := s.srv.db.GetPlayerStats(s.player)
		if err != nil {
			s.log.Errorf("stats for %s: %v", s.player, err)
			return "error internal: stats unavailable", false
		}
		return fmt.Sprintf("ok flips=%d matches=%d mismatches=%d sessions=%d",
			stats.Flips, stats.Matches, stats.Mismatches, stats.Sessions), false

	case "bye":
		return "ok bye", true

	default:
		return fmt.Sprintf("error bad-command: unknown command %q", cmd.name), false
	}
}

// flip runs the blocking board flip and keeps the stats counters current.
func (s *session) flip(row, col int) string {
	before := s.srv.board.CardsLeft()
	view, err := s.srv.board.Flip(s.ctx, s.player, row, col)
	// The cleanup that removes the last pair runs inside a first flip, and
	// that flip then fails with no-card, so check before looking at err.
	if left := s.srv.board.CardsLeft(); left == 0 && before > 0 {
		s.srv.boardDrained()
	}
	if err != nil {
		if errors.Is(err, s.ctx.Err()) {
			return "error closed: session closing"
		}
		// A failed second flip still ends the move: the board then has a
		// completed (non-matching) move awaiting cleanup. A failed first
		// flip leaves nothing pending, since its cleanup already ran.
		if errors.Is(err, board.ErrNoCard) || errors.Is(err, board.ErrControlled) {
			if pending, _ := s.srv.board.LastMove(s.player); pending && s.srv.board.Holding(s.player) == 0 {
				s.recordDB(func() error { return s.srv.db.RecordMoveOutcome(s.player, false) })
			}
		}
		return errorFrame(errorKind(err), err)
	}
	s.recordDB(func() error { return s.srv.db.RecordFlip(s.player) })

	// Holding nothing with a move pending cleanup means this flip was the
	// second card and just closed a move.
	if pending, matched := s.srv.board.LastMove(s.player); pending && s.srv.board.Holding(s.player) == 0 {
		s.recordDB(func() error { return s.srv.db.RecordMoveOutcome(s.player, matched) })
	}
	return "ok\n" + view
}

func (s *session) recordDB(f func() error) {
	if err := f(); err != nil {
		s.log.Warnf("stats update for %s: %v", s.player, err)
	}
}
