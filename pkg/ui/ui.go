// Package ui is the terminal client for the scramble server: a cursor
// driven grid fed by the watch subscription, flips on enter.
package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vctt94/memoryscramble/pkg/client"
)

// spotKind mirrors the wire format's four cell states.
type spotKind int

const (
	spotNone spotKind = iota
	spotDown
	spotUp
	spotMine
)

type spot struct {
	kind  spotKind
	value string
}

// Messages fed into Update. boardMsg is a pushed snapshot, flipDoneMsg the
// reply to our own flip.
type (
	boardMsg    string
	flipDoneMsg string
	statsMsg    string
	errMsg      struct{ err error }
)

// ScrambleUI contains all the state for the client UI.
type ScrambleUI struct {
	ctx    context.Context
	c      *client.Client
	player string

	rows, cols int
	spots      []spot

	cursorRow int
	cursorCol int

	message string
	err     error
	busy    bool
}

// New builds the UI around an already dialed client and the initial board
// view received on join.
func New(ctx context.Context, c *client.Client, initial string) (*ScrambleUI, error) {
	ui := &ScrambleUI{ctx: ctx, c: c, player: c.Player}
	if err := ui.setBoard(initial); err != nil {
		return nil, err
	}
	return ui, nil
}

// Init subscribes to pushed snapshots.
func (ui *ScrambleUI) Init() tea.Cmd {
	return tea.Batch(ui.watchCmd(), ui.waitForUpdate())
}

func (ui *ScrambleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return ui.handleKey(msg)

	case boardMsg:
		if err := ui.setBoard(string(msg)); err != nil {
			ui.err = err
			return ui, nil
		}
		ui.err = nil
		return ui, ui.waitForUpdate()

	case flipDoneMsg:
		ui.busy = false
		ui.message = ""
		if err := ui.setBoard(string(msg)); err != nil {
			ui.err = err
			return ui, nil
		}
		ui.err = nil
		return ui, nil

	case statsMsg:
		ui.message = string(msg)
		ui.busy = false
		return ui, nil

	case errMsg:
		ui.err = msg.err
		ui.busy = false
		return ui, nil
	}
	return ui, nil
}

func (ui *ScrambleUI) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		ui.c.Close()
		return ui, tea.Quit
	case "up", "k":
		if ui.cursorRow > 0 {
			ui.cursorRow--
		}
	case "down", "j":
		if ui.cursorRow < ui.rows-1 {
			ui.cursorRow++
		}
	case "left", "h":
		if ui.cursorCol > 0 {
			ui.cursorCol--
		}
	case "right", "l":
		if ui.cursorCol < ui.cols-1 {
			ui.cursorCol++
		}
	case "enter", " ":
		if !ui.busy {
			ui.busy = true
			ui.message = fmt.Sprintf("flipping %d,%d", ui.cursorRow, ui.cursorCol)
			return ui, ui.flipCmd(ui.cursorRow, ui.cursorCol)
		}
	case "s":
		if !ui.busy {
			ui.busy = true
			return ui, ui.statsCmd()
		}
	}
	return ui, nil
}

// setBoard replaces the grid from a wire-format snapshot.
func (ui *ScrambleUI) setBoard(view string) error {
	rows, cols, spots, err := parseBoard(view)
	if err != nil {
		return err
	}
	ui.rows, ui.cols, ui.spots = rows, cols, spots
	if ui.cursorRow >= rows {
		ui.cursorRow = rows - 1
	}
	if ui.cursorCol >= cols {
		ui.cursorCol = cols - 1
	}
	return nil
}

// parseBoard decodes the wire format: "RxC" then one spot line per cell.
func parseBoard(view string) (rows, cols int, spots []spot, err error) {
	lines := strings.Split(view, "\n")
	r, c, ok := strings.Cut(lines[0], "x")
	if !ok {
		return 0, 0, nil, fmt.Errorf("malformed board header %q", lines[0])
	}
	rows, err1 := strconv.Atoi(r)
	cols, err2 := strconv.Atoi(c)
	if err1 != nil || err2 != nil || rows < 1 || cols < 1 {
		return 0, 0, nil, fmt.Errorf("malformed board header %q", lines[0])
	}
	if len(lines)-1 != rows*cols {
		return 0, 0, nil, fmt.Errorf("board has %d spots, want %d", len(lines)-1, rows*cols)
	}
	spots = make([]spot, 0, rows*cols)
	for _, line := range lines[1:] {
		switch {
		case line == "none":
			spots = append(spots, spot{kind: spotNone})
		case line == "down":
			spots = append(spots, spot{kind: spotDown})
		case strings.HasPrefix(line, "up "):
			spots = append(spots, spot{kind: spotUp, value: line[len("up "):]})
		case strings.HasPrefix(line, "my "):
			spots = append(spots, spot{kind: spotMine, value: line[len("my "):]})
		default:
			return 0, 0, nil, fmt.Errorf("malformed spot %q", line)
		}
	}
	return rows, cols, spots, nil
}

// watchCmd turns on server push.
func (ui *ScrambleUI) watchCmd() tea.Cmd {
	return func() tea.Msg {
		if err := ui.c.Watch(ui.ctx); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

// waitForUpdate delivers the next pushed snapshot.
func (ui *ScrambleUI) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case view := <-ui.c.Updates:
			return boardMsg(view)
		case <-ui.ctx.Done():
			return nil
		}
	}
}

// flipCmd issues the flip; it may stay pending while another player holds
// the card, which the UI surfaces as busy.
func (ui *ScrambleUI) flipCmd(row, col int) tea.Cmd {
	return func() tea.Msg {
		view, err := ui.c.Flip(ui.ctx, row, col)
		if err != nil {
			return errMsg{err}
		}
		return flipDoneMsg(view)
	}
}

func (ui *ScrambleUI) statsCmd() tea.Cmd {
	return func() tea.Msg {
		stats, err := ui.c.Stats(ui.ctx)
		if err != nil {
			return errMsg{err}
		}
		return statsMsg(stats)
	}
}
