package board

import (
	"errors"
	"fmt"
)

// Sentinel errors reported by Board operations. Callers match them with
// errors.Is and decide whether to retry the move.
var (
	// ErrNoCard is returned when the targeted cell holds no card, either
	// because the pair was removed or because a second flip raced a removal.
	ErrNoCard = errors.New("no card at that position")

	// ErrControlled is returned by a second flip when the targeted card is
	// held by another player, or when a player flips the same cell twice.
	ErrControlled = errors.New("card is controlled by another player")

	// ErrInvalidCoordinates is returned when row or col fall outside the grid.
	ErrInvalidCoordinates = errors.New("coordinates out of range")

	// ErrInvalidPlayerID is returned for IDs outside the allowed alphabet.
	ErrInvalidPlayerID = errors.New("invalid player id")

	// ErrInvalidMappedValue aborts Map before any cell is rewritten.
	ErrInvalidMappedValue = errors.New("mapped value is empty or contains whitespace")
)

// ParseError describes a board file that violates the grammar. Line is
// 1-based; 0 means the error is not tied to a single line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("board file line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("board file: %s", e.Msg)
}
