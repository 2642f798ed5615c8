package board

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"
	"github.com/stretchr/testify/require"
)

// createTestLogger creates a simple logger for testing
func createTestLogger() slog.Logger {
	backend := slog.NewBackend(os.Stderr)
	log := backend.Logger("test")
	log.SetLevel(slog.LevelError) // Reduce noise in tests
	return log
}

// scrambleValues is the 3x3 layout used throughout these tests:
//
//	🦄 🦄 🌈
//	🌈 ⭐ ⭐
//	☀  ☀  🌙
var scrambleValues = []string{"🦄", "🦄", "🌈", "🌈", "⭐", "⭐", "☀", "☀", "🌙"}

func newScrambleBoard(t *testing.T) *Board {
	t.Helper()
	b, err := New(3, 3, scrambleValues)
	require.NoError(t, err)
	b.SetLogger(createTestLogger())
	return b
}

// view builds the expected look string from spot lines.
func view(dim string, spots ...string) string {
	return dim + "\n" + strings.Join(spots, "\n")
}

func mustFlip(t *testing.T, b *Board, player string, row, col int) string {
	t.Helper()
	v, err := b.Flip(context.Background(), player, row, col)
	require.NoError(t, err)
	return v
}

func TestNewValidation(t *testing.T) {
	if _, err := New(0, 3, nil); err == nil {
		t.Error("expected error for 0 rows")
	}
	if _, err := New(2, 2, []string{"a", "b", "c"}); err == nil {
		t.Error("expected error for wrong card count")
	}
	if _, err := New(1, 2, []string{"a b", "c"}); err == nil {
		t.Error("expected error for card with whitespace")
	}
}

func TestNewShuffledDealsPairs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	b, err := NewShuffled(4, 4, []string{"A", "B", "C"}, rng)
	require.NoError(t, err)

	counts := make(map[string]int)
	for i := range b.cells {
		counts[b.cells[i].value]++
	}
	for v, n := range counts {
		if n%2 != 0 {
			t.Errorf("value %q dealt %d times, want even", v, n)
		}
	}

	// Odd cell count leaves exactly one unpaired card.
	b, err = NewShuffled(3, 3, []string{"A", "B", "C", "D", "E"}, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	counts = make(map[string]int)
	for i := range b.cells {
		counts[b.cells[i].value]++
	}
	odd := 0
	for _, n := range counts {
		if n%2 != 0 {
			odd++
		}
	}
	require.Equal(t, 1, odd)
}

func TestLookInitial(t *testing.T) {
	b := newScrambleBoard(t)
	got, err := b.Look("alice")
	require.NoError(t, err)
	want := view("3x3", "down", "down", "down", "down", "down", "down", "down", "down", "down")
	require.Equal(t, want, got)

	// look is a pure function of board state between mutations.
	again, err := b.Look("alice")
	require.NoError(t, err)
	if got != again {
		t.Errorf("look not deterministic:\n%s\nvs\n%s", got, again)
	}
}

func TestLookRejectsBadPlayer(t *testing.T) {
	b := newScrambleBoard(t)
	for _, id := range []string{"", "a b", "my", "none", "down", "up", "sp@ce"} {
		_, err := b.Look(id)
		require.ErrorIs(t, err, ErrInvalidPlayerID, "id %q", id)
	}
	for _, id := range []string{"alice", "p_1", "X9", "über"} {
		_, err := b.Look(id)
		require.NoError(t, err, "id %q", id)
	}
}

func TestFlipBadCoordinates(t *testing.T) {
	b := newScrambleBoard(t)
	for _, rc := range [][2]int{{-1, 0}, {0, -1}, {3, 0}, {0, 3}} {
		_, err := b.Flip(context.Background(), "alice", rc[0], rc[1])
		require.ErrorIs(t, err, ErrInvalidCoordinates)
	}
	if b.Version() != 0 {
		t.Errorf("bad coordinates changed the board, version %d", b.Version())
	}
}

// Scenario: match then remove on the player's next move.
func TestMatchThenRemove(t *testing.T) {
	b := newScrambleBoard(t)

	got := mustFlip(t, b, "alice", 0, 0)
	require.Equal(t, view("3x3",
		"my 🦄", "down", "down",
		"down", "down", "down",
		"down", "down", "down"), got)

	got = mustFlip(t, b, "alice", 0, 1)
	require.Equal(t, view("3x3",
		"up 🦄", "up 🦄", "down",
		"down", "down", "down",
		"down", "down", "down"), got)

	// Next move removes the matched pair before taking the new card.
	got = mustFlip(t, b, "alice", 1, 0)
	require.Equal(t, view("3x3",
		"none", "none", "down",
		"my 🌈", "down", "down",
		"down", "down", "down"), got)
}

// Scenario: non-match turns both cards back down on the next move.
func TestNonMatchFlipsDown(t *testing.T) {
	b := newScrambleBoard(t)

	mustFlip(t, b, "alice", 0, 0)
	got := mustFlip(t, b, "alice", 0, 2)
	require.Equal(t, view("3x3",
		"up 🦄", "down", "up 🌈",
		"down", "down", "down",
		"down", "down", "down"), got)

	got = mustFlip(t, b, "alice", 1, 0)
	require.Equal(t, view("3x3",
		"down", "down", "down",
		"my 🌈", "down", "down",
		"down", "down", "down"), got)
}

// Scenario: an empty second card fails the move and releases the first.
func TestEmptySecondCardReleasesFirst(t *testing.T) {
	b := newScrambleBoard(t)
	mustFlip(t, b, "alice", 0, 0)
	mustFlip(t, b, "alice", 0, 1)
	mustFlip(t, b, "alice", 1, 0) // removes (0,0) and (0,1)

	mustFlip(t, b, "bob", 1, 1)
	_, err := b.Flip(context.Background(), "bob", 0, 0)
	require.ErrorIs(t, err, ErrNoCard)

	// Bob no longer controls (1,1); it stays face up for everyone.
	got, err := b.Look("carol")
	require.NoError(t, err)
	require.Equal(t, view("3x3",
		"none", "none", "down",
		"up 🌈", "up ⭐", "down",
		"down", "down", "down"), got)

	got, err = b.Look("bob")
	require.NoError(t, err)
	if strings.Contains(got, "my") {
		t.Errorf("bob still controls a card:\n%s", got)
	}
}

// Scenario: a first flip on a held card waits until the holder releases it.
func TestFirstFlipWaitsForRelease(t *testing.T) {
	b := newScrambleBoard(t)
	mustFlip(t, b, "alice", 0, 0)

	type result struct {
		view string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		v, err := b.Flip(context.Background(), "bob", 0, 0)
		done <- result{v, err}
	}()

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.waiters[0]) == 1
	}, time.Second, time.Millisecond, "bob never parked")

	// Mismatch releases (0,0); bob's parked flip takes it.
	mustFlip(t, b, "alice", 0, 2)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Contains(t, r.view, "my 🦄")
	case <-time.After(time.Second):
		t.Fatal("bob's flip never completed")
	}
}

// Scenario: a second flip on a held card fails without waiting.
func TestSecondFlipNeverWaits(t *testing.T) {
	b := newScrambleBoard(t)
	mustFlip(t, b, "alice", 0, 0)
	mustFlip(t, b, "bob", 1, 1)

	start := time.Now()
	_, err := b.Flip(context.Background(), "bob", 0, 0)
	require.ErrorIs(t, err, ErrControlled)
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Errorf("second flip blocked for %v", d)
	}

	// Bob's first card was released by the failure.
	got, err := b.Look("carol")
	require.NoError(t, err)
	require.Contains(t, got, "up ⭐")
}

// Scenario: a flip on a matched card parks until the pair is removed, then
// fails. Matched cards stay locked against other players even though they
// show as uncontrolled.
func TestWaiterFailsWhenCardRemoved(t *testing.T) {
	b := newScrambleBoard(t)
	mustFlip(t, b, "alice", 0, 0)
	mustFlip(t, b, "alice", 0, 1) // match

	errc := make(chan error, 1)
	go func() {
		_, err := b.Flip(context.Background(), "bob", 0, 0)
		errc <- err
	}()
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.waiters[0]) == 1
	}, time.Second, time.Millisecond, "bob did not park on the matched card")

	mustFlip(t, b, "alice", 1, 0) // cleanup removes (0,0) and (0,1)

	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrNoCard)
	case <-time.After(time.Second):
		t.Fatal("bob's flip never completed")
	}
}

// A waiter parked while the card was still controlled also survives the
// match and fails only at removal.
func TestWaiterParkedBeforeMatchFailsAtRemoval(t *testing.T) {
	b := newScrambleBoard(t)
	mustFlip(t, b, "alice", 0, 0)

	errc := make(chan error, 1)
	go func() {
		_, err := b.Flip(context.Background(), "bob", 0, 0)
		errc <- err
	}()
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.waiters[0]) == 1
	}, time.Second, time.Millisecond)

	mustFlip(t, b, "alice", 0, 1) // match: bob must stay parked

	select {
	case err := <-errc:
		t.Fatalf("bob's flip completed during the held match: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	mustFlip(t, b, "alice", 1, 0)
	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrNoCard)
	case <-time.After(time.Second):
		t.Fatal("bob's flip never completed")
	}
}

func TestSameCellTwiceFailsMove(t *testing.T) {
	b := newScrambleBoard(t)
	mustFlip(t, b, "alice", 0, 0)
	_, err := b.Flip(context.Background(), "alice", 0, 0)
	require.ErrorIs(t, err, ErrControlled)

	// The card stays face up but alice no longer holds it.
	got, err := b.Look("bob")
	require.NoError(t, err)
	require.Contains(t, got, "up 🦄")

	// It is recorded as a non-matching previous move: the next first flip
	// turns it back down.
	mustFlip(t, b, "alice", 1, 1)
	got, err = b.Look("bob")
	require.NoError(t, err)
	if !strings.HasPrefix(got, "3x3\ndown") {
		t.Errorf("(0,0) not face down after cleanup:\n%s", got)
	}
}

// A card left face up by a mismatch can be claimed by another player; the
// original player's cleanup must then leave it alone.
func TestCleanupSkipsClaimedCard(t *testing.T) {
	b := newScrambleBoard(t)
	mustFlip(t, b, "alice", 0, 0)
	mustFlip(t, b, "alice", 0, 2) // mismatch, both face up uncontrolled

	mustFlip(t, b, "bob", 0, 0) // bob claims the unicorn

	mustFlip(t, b, "alice", 1, 1)
	got, err := b.Look("bob")
	require.NoError(t, err)
	require.Contains(t, got, "my 🦄")
	// (0,2) was unclaimed, so it went back down.
	require.Equal(t, view("3x3",
		"my 🦄", "down", "down",
		"down", "up ⭐", "down",
		"down", "down", "down"), got)
}

// Once another player builds a move on a mismatched card, the original
// player's cleanup must not turn it down under them; only the new move's
// cleanup touches it.
func TestClaimedCardLeavesOldPreviousMove(t *testing.T) {
	b := newScrambleBoard(t)
	mustFlip(t, b, "alice", 0, 0)
	mustFlip(t, b, "alice", 0, 2) // mismatch: (0,0) and (0,2) face up

	mustFlip(t, b, "bob", 0, 0)
	mustFlip(t, b, "bob", 1, 1) // mismatch again: (0,0) now in bob's move

	// Alice's cleanup covers only (0,2); the unicorn stays up for bob's
	// cleanup to handle.
	got := mustFlip(t, b, "alice", 2, 2)
	require.Equal(t, view("3x3",
		"up 🦄", "down", "down",
		"down", "up ⭐", "down",
		"down", "down", "my 🌙"), got)

	got = mustFlip(t, b, "bob", 2, 0)
	require.Equal(t, view("3x3",
		"down", "down", "down",
		"down", "down", "down",
		"my ☀", "down", "up 🌙"), got)
}

func TestFlipCancelWhileParked(t *testing.T) {
	b := newScrambleBoard(t)
	mustFlip(t, b, "alice", 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := b.Flip(ctx, "bob", 0, 0)
		errc <- err
	}()
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.waiters[0]) == 1
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled flip never returned")
	}

	// The stale waiter is gone; the release hands the card to nobody and
	// carol can take it immediately.
	mustFlip(t, b, "alice", 0, 2)
	got := mustFlip(t, b, "carol", 0, 0)
	require.Contains(t, got, "my 🦄")
}

func TestMapPreservesPairs(t *testing.T) {
	b := newScrambleBoard(t)
	mustFlip(t, b, "alice", 0, 0)
	mustFlip(t, b, "alice", 0, 1)
	mustFlip(t, b, "alice", 1, 0) // remove one pair, hold (1,0)

	err := b.Map(func(v string) (string, error) { return v + "_x", nil })
	require.NoError(t, err)

	got, err := b.Look("alice")
	require.NoError(t, err)
	require.Equal(t, view("3x3",
		"none", "none", "down",
		"my 🌈_x", "down", "down",
		"down", "down", "down"), got)

	// The hidden cells were rewritten consistently too.
	b.mu.Lock()
	defer b.mu.Unlock()
	counts := make(map[string]int)
	for i := range b.cells {
		c := &b.cells[i]
		if c.removed {
			continue
		}
		if !strings.HasSuffix(c.value, "_x") {
			t.Errorf("cell %d value %q not mapped", i, c.value)
		}
		counts[c.value]++
	}
	require.Equal(t, 1, counts["🌙_x"])
	require.Equal(t, 2, counts["⭐_x"])
}

func TestMapIdentityDoesNotBump(t *testing.T) {
	b := newScrambleBoard(t)
	v0 := b.Version()
	require.NoError(t, b.Map(func(v string) (string, error) { return v, nil }))
	require.Equal(t, v0, b.Version())
}

func TestMapRejectsInvalidValues(t *testing.T) {
	b := newScrambleBoard(t)
	before, _ := b.Look("alice")

	err := b.Map(func(v string) (string, error) {
		if v == "⭐" {
			return "two words", nil
		}
		return v + "!", nil
	})
	require.ErrorIs(t, err, ErrInvalidMappedValue)

	// Aborted before any cell was rewritten.
	after, _ := b.Look("alice")
	require.Equal(t, before, after)
	require.Equal(t, uint64(0), b.Version())

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.cells {
		if strings.HasSuffix(b.cells[i].value, "!") {
			t.Fatalf("cell %d rewritten by aborted map", i)
		}
	}
}

func TestMapAtomicWithFlips(t *testing.T) {
	b := newScrambleBoard(t)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Map(func(v string) (string, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return v + "_m", nil
		})
	}()
	<-started

	// A flip issued while the transform is suspended must observe only the
	// post-map state.
	viewc := make(chan string, 1)
	go func() {
		v, err := b.Flip(context.Background(), "alice", 0, 0)
		if err != nil {
			viewc <- "error: " + err.Error()
			return
		}
		viewc <- v
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case v := <-viewc:
		t.Fatalf("flip completed during map: %s", v)
	default:
	}

	close(release)
	require.NoError(t, <-done)
	require.Contains(t, <-viewc, "my 🦄_m")
}

func TestWatchWakesOnChange(t *testing.T) {
	b := newScrambleBoard(t)

	got := make(chan string, 1)
	go func() {
		v, err := b.Watch(context.Background(), "bob")
		if err != nil {
			v = "error: " + err.Error()
		}
		got <- v
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case v := <-got:
		t.Fatalf("watch returned before any change: %s", v)
	default:
	}

	mustFlip(t, b, "alice", 0, 0)
	select {
	case v := <-got:
		require.Contains(t, v, "up 🦄")
	case <-time.After(time.Second):
		t.Fatal("watch never woke")
	}
}

func TestWatchRequiresNewChange(t *testing.T) {
	b := newScrambleBoard(t)
	v0 := b.Version()
	mustFlip(t, b, "alice", 0, 0)
	require.Greater(t, b.Version(), v0)

	// Changes before the call don't count: a fresh watch blocks until the
	// counter advances again.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := b.Watch(ctx, "alice")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// Concurrent soak: random players hammer the board; afterwards every
// invariant must hold and every goroutine must have returned.
func TestConcurrentSoak(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b, err := NewShuffled(4, 4, []string{"A", "B", "C", "D", "E", "F", "G", "H"}, rng)
	require.NoError(t, err)

	const players = 8
	const flips = 200

	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("player_%d", n)
			rng := rand.New(rand.NewSource(int64(n)))
			for j := 0; j < flips; j++ {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				_, err := b.Flip(ctx, id, rng.Intn(4), rng.Intn(4))
				cancel()
				switch {
				case err == nil:
				case errors.Is(err, ErrNoCard):
				case errors.Is(err, ErrControlled):
				case errors.Is(err, context.DeadlineExceeded):
				default:
					t.Errorf("%s: unexpected flip error: %v", id, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	checkInvariants(t, b)
	if t.Failed() {
		b.mu.Lock()
		t.Logf("final state:\ncells: %splayers: %s",
			spew.Sdump(b.cells), spew.Sdump(b.players))
		b.mu.Unlock()
	}
}

// checkInvariants verifies the representation invariants that must hold
// between operations.
func checkInvariants(t *testing.T, b *Board) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	require.Equal(t, b.rows*b.cols, len(b.cells))

	holders := make(map[int]string)
	for i := range b.cells {
		c := &b.cells[i]
		if c.removed {
			if c.holder() != "" {
				t.Errorf("cell %d: removed but held by %q", i, c.holder())
			}
			continue
		}
		if !validCardValue(c.value) {
			t.Errorf("cell %d: bad value %q", i, c.value)
		}
		if c.owner != "" {
			if c.face != FaceUp {
				t.Errorf("cell %d: controlled but face down", i)
			}
			holders[i] = c.owner
		}
		if c.heldFor != "" {
			if c.owner != "" || c.face != FaceUp {
				t.Errorf("cell %d: held for removal but owner %q, face %v", i, c.owner, c.face)
			}
			p := b.players[c.heldFor]
			if p == nil || !p.prevMatched || !containsPosition(p.prev, i) {
				t.Errorf("cell %d: held for %q without a matched previous move", i, c.heldFor)
			}
		}
	}

	seen := make(map[int]string)
	for id, p := range b.players {
		if len(p.current) > 1 {
			t.Errorf("player %s holds %d cards between operations", id, len(p.current))
		}
		for _, i := range p.current {
			if holders[i] != id {
				t.Errorf("player %s lists %d but cell owner is %q", id, i, holders[i])
			}
		}
		for _, i := range p.prev {
			if prev, dup := seen[i]; dup {
				t.Errorf("cell %d in previous of both %s and %s", i, prev, id)
			}
			seen[i] = id
		}
		if p.prevMatched && len(p.prev) == 2 {
			a, b2 := &b.cells[p.prev[0]], &b.cells[p.prev[1]]
			if !a.removed && !b2.removed && a.value != b2.value {
				t.Errorf("player %s: matched previous %v with unequal values", id, p.prev)
			}
		}
	}
}

func containsPosition(s []int, i int) bool {
	for _, v := range s {
		if v == i {
			return true
		}
	}
	return false
}
