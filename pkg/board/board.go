// Package board implements the shared, mutable board for the Memory
// Scramble matching game. An arbitrary set of players, identified by opaque
// string IDs, concurrently flip cards; the board enforces control of face-up
// cards, deferred removal of matched pairs and deferred hiding of mismatched
// ones, and lets observers block until the visible state changes.
package board

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/decred/slog"
)

// Board is the game state shared by all players. All exported methods are
// safe for concurrent use; a single mutex guards the grid, the player table
// and the version counter. Flip may block while another player holds the
// targeted card, Watch blocks until the board changes; neither holds the
// mutex while parked.
type Board struct {
	mu   sync.Mutex
	rows int
	cols int

	cells   []cell
	players map[string]*playerMove

	// waiters holds, per linear cell index, the flips parked on that cell
	// in arrival order.
	waiters map[int][]*posWaiter

	// version counts look-visible mutations. changed is closed and replaced
	// whenever version advances, waking every parked Watch.
	version uint64
	changed chan struct{}

	log slog.Logger
}

// playerMove tracks one player's progress through their current move and
// the not-yet-cleaned-up outcome of their previous one. Entries are created
// lazily and live for the lifetime of the board.
type playerMove struct {
	current     []int
	prev        []int
	prevMatched bool
}

// posWaiter is a flip parked on a controlled cell. ready is closed when the
// cell is released to this player or removed.
type posWaiter struct {
	player string
	ready  chan struct{}
}

// New constructs a board from a row-major list of card values. Every card
// starts face down, uncontrolled, with no players registered.
func New(rows, cols int, values []string) (*Board, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("board: dimensions %dx%d out of range", rows, cols)
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("board: got %d cards, want %d", len(values), rows*cols)
	}
	cells := make([]cell, len(values))
	for i, v := range values {
		if !validCardValue(v) {
			return nil, fmt.Errorf("board: card %d: value %q is empty or contains whitespace", i, v)
		}
		cells[i] = cell{value: v, face: FaceDown}
	}
	return &Board{
		rows:    rows,
		cols:    cols,
		cells:   cells,
		players: make(map[string]*playerMove),
		waiters: make(map[int][]*posWaiter),
		changed: make(chan struct{}),
		log:     slog.Disabled,
	}, nil
}

// NewShuffled constructs a rows x cols board whose cards are pairs drawn
// from symbols, shuffled with rng. When the grid has an odd number of cells
// the last card is unpaired. symbols must not be empty and every symbol must
// be a valid card value.
func NewShuffled(rows, cols int, symbols []string, rng *rand.Rand) (*Board, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("board: no symbols to deal from")
	}
	n := rows * cols
	values := make([]string, 0, n)
	for i := 0; len(values)+2 <= n; i++ {
		s := symbols[i%len(symbols)]
		values = append(values, s, s)
	}
	if len(values) < n {
		values = append(values, symbols[(n/2)%len(symbols)])
	}
	rng.Shuffle(len(values), func(i, j int) {
		values[i], values[j] = values[j], values[i]
	})
	return New(rows, cols, values)
}

// SetLogger routes the board's debug tracing to log. The default discards
// everything.
func (b *Board) SetLogger(log slog.Logger) {
	b.mu.Lock()
	b.log = log
	b.mu.Unlock()
}

// Rows returns the number of rows, fixed at construction.
func (b *Board) Rows() int { return b.rows }

// Cols returns the number of columns, fixed at construction.
func (b *Board) Cols() int { return b.cols }

// Version returns the current change counter. It advances whenever a card is
// turned, removed or rewritten by Map, and on every completed or failed
// second flip. A first flip that only takes control of a card already face
// up does not advance it.
func (b *Board) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// CardsLeft returns how many cards have not been removed yet.
func (b *Board) CardsLeft() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for i := range b.cells {
		if !b.cells[i].removed {
			n++
		}
	}
	return n
}

// Holding returns how many cards player currently controls: 0 when idle,
// 1 mid-move.
func (b *Board) Holding(player string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.players[player]; ok {
		return len(p.current)
	}
	return 0
}

// LastMove reports whether player has a completed move awaiting cleanup,
// and if so whether it was a match.
func (b *Board) LastMove(player string) (pending, matched bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.players[player]; ok {
		return len(p.prev) > 0, p.prevMatched
	}
	return false, false
}

// Look returns a snapshot of the grid from player's perspective in the wire
// format: "RxC" followed by one line per cell in row-major order, each
// "none", "down", "up VALUE" or, for cards this player controls, "my VALUE".
// It never blocks and never mutates.
func (b *Board) Look(player string) (string, error) {
	if !ValidPlayerID(player) {
		return "", fmt.Errorf("look %q: %w", player, ErrInvalidPlayerID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lookLocked(player), nil
}

func (b *Board) lookLocked(player string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%dx%d", b.rows, b.cols)
	for i := range b.cells {
		sb.WriteByte('\n')
		c := &b.cells[i]
		switch {
		case c.removed:
			sb.WriteString("none")
		case c.face == FaceDown:
			sb.WriteString("down")
		case c.owner == player:
			sb.WriteString("my ")
			sb.WriteString(c.value)
		default:
			sb.WriteString("up ")
			sb.WriteString(c.value)
		}
	}
	return sb.String()
}

// Flip attempts the next flip in player's move. While the player holds no
// card this is a first flip: cleanup of the previous move runs, then the
// flip either takes the card, fails because the cell is empty, or parks
// until the holding player releases the card to us. While the player holds
// one card this is a second flip: it never parks, and either completes the
// move (match or mismatch) or fails permanently, releasing the first card.
//
// On success Flip returns the player's new Look view. Cancelling ctx while
// parked abandons the flip without changing board state.
func (b *Board) Flip(ctx context.Context, player string, row, col int) (string, error) {
	if !ValidPlayerID(player) {
		return "", fmt.Errorf("flip %q: %w", player, ErrInvalidPlayerID)
	}
	b.mu.Lock()
	if row < 0 || row >= b.rows || col < 0 || col >= b.cols {
		b.mu.Unlock()
		return "", fmt.Errorf("flip %d,%d: %w", row, col, ErrInvalidCoordinates)
	}
	idx := row*b.cols + col
	p := b.playerLocked(player)

	for {
		if len(p.current) == 0 {
			view, wait, err := b.firstFlipLocked(p, player, idx)
			if err != nil {
				b.mu.Unlock()
				return "", err
			}
			if wait == nil {
				b.mu.Unlock()
				return view, nil
			}
			// Park until the holder releases the card to us or the cell is
			// removed, then re-evaluate from the top.
			b.mu.Unlock()
			select {
			case <-wait.ready:
				b.mu.Lock()
			case <-ctx.Done():
				b.mu.Lock()
				b.dropWaiterLocked(idx, wait)
				b.mu.Unlock()
				return "", ctx.Err()
			}
			continue
		}

		view, err := b.secondFlipLocked(p, player, idx)
		b.mu.Unlock()
		return view, err
	}
}

// firstFlipLocked evaluates the first-card rules for player at idx. It
// returns a finished look view, or a waiter to park on, or an error.
func (b *Board) firstFlipLocked(p *playerMove, player string, idx int) (string, *posWaiter, error) {
	b.cleanupLocked(p, player)

	c := &b.cells[idx]
	switch {
	case c.removed:
		return "", nil, fmt.Errorf("flip %s: %w", b.coord(idx), ErrNoCard)

	case c.holder() != "" && c.holder() != player:
		w := &posWaiter{player: player, ready: make(chan struct{})}
		b.waiters[idx] = append(b.waiters[idx], w)
		b.log.Debugf("%s waiting on %s held by %s", player, b.coord(idx), c.holder())
		return "", w, nil

	default:
		// Available, or reserved for us by a release.
		c.reserved = ""
		b.claimLocked(idx)
		if c.face == FaceDown {
			c.face = FaceUp
			b.bumpLocked()
		}
		c.owner = player
		p.current = append(p.current, idx)
		b.log.Tracef("%s took %s (%s)", player, b.coord(idx), c.value)
		return b.lookLocked(player), nil, nil
	}
}

// secondFlipLocked evaluates the second-card rules for player at idx. These
// never park: the flip completes the move or fails permanently, and a
// failure releases the player's first card.
func (b *Board) secondFlipLocked(p *playerMove, player string, idx int) (string, error) {
	first := p.current[0]

	fail := func(err error) (string, error) {
		c := &b.cells[first]
		if c.owner == player {
			c.owner = ""
			b.promoteLocked(first)
		}
		p.current = nil
		p.prev = []int{first}
		p.prevMatched = false
		b.bumpLocked()
		return "", err
	}

	if idx == first {
		// Flipping the held card again ends the move; the card stays face
		// up but is no longer ours.
		b.log.Debugf("%s flipped %s twice", player, b.coord(idx))
		return fail(fmt.Errorf("flip %s: %w", b.coord(idx), ErrControlled))
	}

	c := &b.cells[idx]
	switch {
	case c.removed:
		return fail(fmt.Errorf("flip %s: %w", b.coord(idx), ErrNoCard))

	case c.holder() != "" && c.holder() != player:
		// Never wait on a second flip: two players each holding one card
		// and reaching for the other's must not deadlock.
		return fail(fmt.Errorf("flip %s: %w", b.coord(idx), ErrControlled))
	}

	c.reserved = ""
	b.claimLocked(idx)
	if c.face == FaceDown {
		c.face = FaceUp
	}
	firstCell := &b.cells[first]
	if c.value == firstCell.value {
		// Matched. The pair is briefly under our control, then shown face
		// up without a controller; it stays locked against other players
		// until our next move removes it, so parked flips are not woken
		// here, only by the removal.
		c.owner = player
		p.current = append(p.current, idx)
		firstCell.owner = ""
		c.owner = ""
		firstCell.heldFor = player
		c.heldFor = player
		p.current = nil
		p.prev = []int{first, idx}
		p.prevMatched = true
		b.log.Debugf("%s matched %s and %s (%s)",
			player, b.coord(first), b.coord(idx), c.value)
	} else {
		firstCell.owner = ""
		p.current = nil
		p.prev = []int{first, idx}
		p.prevMatched = false
		b.promoteLocked(first)
		b.promoteLocked(idx)
		b.log.Debugf("%s mismatched %s (%s) and %s (%s)",
			player, b.coord(first), firstCell.value, b.coord(idx), c.value)
	}
	b.bumpLocked()
	return b.lookLocked(player), nil
}

// cleanupLocked applies the deferred outcome of player's previous move:
// matched pairs are removed, mismatched cards still lying face up and
// unclaimed are turned back down. Runs before the first-card rules so the
// effects are visible to this and every later operation.
func (b *Board) cleanupLocked(p *playerMove, player string) {
	if len(p.prev) == 0 {
		return
	}
	changed := false
	for _, i := range p.prev {
		c := &b.cells[i]
		if c.removed {
			continue
		}
		if p.prevMatched {
			b.removeLocked(i)
			changed = true
			b.log.Debugf("%s removed %s", player, b.coord(i))
		} else if c.face == FaceUp && c.holder() == "" {
			c.face = FaceDown
			changed = true
		}
	}
	p.prev = nil
	p.prevMatched = false
	if changed {
		b.bumpLocked()
	}
}

// claimLocked records that cell idx is part of a new move: it leaves any
// not-yet-cleaned mismatched previous move, so only one cleanup can ever
// touch it. Matched previous moves keep the cell; removal always wins.
func (b *Board) claimLocked(idx int) {
	for _, p := range b.players {
		if !p.prevMatched && len(p.prev) > 0 {
			p.prev = withoutPosition(p.prev, idx)
		}
	}
}

// removeLocked makes cell i permanently empty. Any controller loses the
// card, and every flip parked on the cell is woken to fail.
func (b *Board) removeLocked(i int) {
	c := &b.cells[i]
	if c.owner != "" {
		// Matched cards are held for removal, so no one normally controls
		// them here; should one be controlled, that open move loses the
		// position.
		if p, ok := b.players[c.owner]; ok {
			p.current = withoutPosition(p.current, i)
		}
	}
	c.removed = true
	c.value = ""
	c.face = FaceDown
	c.owner = ""
	c.reserved = ""
	c.heldFor = ""
	for _, w := range b.waiters[i] {
		close(w.ready)
	}
	delete(b.waiters, i)
}

// promoteLocked hands a just-released cell to the oldest parked flip, if
// any. The cell is reserved for that player until their flip resumes, so no
// other operation can slip in between release and wake.
func (b *Board) promoteLocked(i int) {
	c := &b.cells[i]
	q := b.waiters[i]
	if len(q) == 0 {
		c.reserved = ""
		return
	}
	w := q[0]
	if len(q) == 1 {
		delete(b.waiters, i)
	} else {
		b.waiters[i] = q[1:]
	}
	c.reserved = w.player
	close(w.ready)
}

// dropWaiterLocked removes a cancelled waiter. If the cell had already been
// released to it, the reservation moves on to the next waiter so the card
// does not stay locked for a flip that will never resume.
func (b *Board) dropWaiterLocked(i int, w *posWaiter) {
	q := b.waiters[i]
	for n, o := range q {
		if o == w {
			b.waiters[i] = append(q[:n:n], q[n+1:]...)
			if len(b.waiters[i]) == 0 {
				delete(b.waiters, i)
			}
			return
		}
	}
	c := &b.cells[i]
	if !c.removed && c.reserved == w.player {
		c.reserved = ""
		b.promoteLocked(i)
	}
}

// Map rewrites every remaining card's value to f(value), atomically with
// respect to every other operation: no flip or look observes a partially
// mapped grid. Cards that held equal values before still do after. f runs
// once per distinct value while the board is locked; it may block. A result
// that is empty or contains whitespace aborts the whole rewrite with
// ErrInvalidMappedValue.
func (b *Board) Map(f func(string) (string, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	mapped := make(map[string]string)
	for i := range b.cells {
		c := &b.cells[i]
		if c.removed {
			continue
		}
		if _, ok := mapped[c.value]; ok {
			continue
		}
		nv, err := f(c.value)
		if err != nil {
			return fmt.Errorf("map %q: %w", c.value, err)
		}
		if !validCardValue(nv) {
			return fmt.Errorf("map %q -> %q: %w", c.value, nv, ErrInvalidMappedValue)
		}
		mapped[c.value] = nv
	}

	changed := false
	for i := range b.cells {
		c := &b.cells[i]
		if c.removed {
			continue
		}
		if nv := mapped[c.value]; nv != c.value {
			c.value = nv
			changed = true
		}
	}
	if changed {
		b.bumpLocked()
	}
	return nil
}

// Watch blocks until the board's version exceeds what it was when the call
// was made, then returns player's Look view of the new state. Successive
// Watch calls see monotonically increasing versions. Cancelling ctx ends
// the wait with ctx's error.
func (b *Board) Watch(ctx context.Context, player string) (string, error) {
	if !ValidPlayerID(player) {
		return "", fmt.Errorf("watch %q: %w", player, ErrInvalidPlayerID)
	}
	b.mu.Lock()
	v0 := b.version
	for b.version == v0 {
		ch := b.changed
		b.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		b.mu.Lock()
	}
	view := b.lookLocked(player)
	b.mu.Unlock()
	return view, nil
}

// bumpLocked records a look-visible mutation and wakes every parked Watch.
func (b *Board) bumpLocked() {
	b.version++
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *Board) playerLocked(player string) *playerMove {
	p, ok := b.players[player]
	if !ok {
		p = &playerMove{}
		b.players[player] = p
	}
	return p
}

func (b *Board) coord(idx int) string {
	return fmt.Sprintf("%d,%d", idx/b.cols, idx%b.cols)
}

func withoutPosition(s []int, i int) []int {
	out := s[:0]
	for _, v := range s {
		if v != i {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
