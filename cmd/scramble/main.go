// scramble is the interactive terminal client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vctt94/memoryscramble/pkg/client"
	"github.com/vctt94/memoryscramble/pkg/logging"
	"github.com/vctt94/memoryscramble/pkg/ui"
)

func main() {
	var (
		addr       string
		player     string
		debugLevel string
	)
	flag.StringVar(&addr, "addr", "127.0.0.1:8080", "Server address")
	flag.StringVar(&player, "player", "", "Player ID")
	flag.StringVar(&debugLevel, "debuglevel", "error", "Logging level")
	flag.Parse()

	if err := run(addr, player, debugLevel); err != nil {
		fmt.Fprintf(os.Stderr, "scramble: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, player, debugLevel string) error {
	if player == "" {
		return fmt.Errorf("-player is required")
	}

	logBackend, err := logging.NewLogBackend(logging.LogConfig{DebugLevel: debugLevel})
	if err != nil {
		return err
	}
	log := logBackend.Logger("TUI")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, initial, err := client.Dial(ctx, addr, player, log)
	if err != nil {
		return err
	}
	defer c.Close()

	model, err := ui.New(ctx, c, initial)
	if err != nil {
		return err
	}

	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}
