// scramblectl is a one-shot command line client for the scramble server:
// look, flip, map, stats, a long-running watch, and a random bot used for
// soak testing a live server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/decred/slog"

	"github.com/vctt94/memoryscramble/pkg/client"
	"github.com/vctt94/memoryscramble/pkg/logging"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: scramblectl [flags] COMMAND [args]

commands:
  look                 print the current board
  flip ROW COL         flip one card (may block while the card is held)
  map NAME             apply the named server-side transform
  stats                print lifetime counters for the player
  watch                stream board snapshots until interrupted
  bot [FLIPS]          play random moves (default 100)

flags:
`)
	flag.PrintDefaults()
}

func main() {
	var (
		addr       string
		player     string
		debugLevel string
	)
	flag.StringVar(&addr, "addr", "127.0.0.1:8080", "Server address")
	flag.StringVar(&player, "player", "", "Player ID")
	flag.StringVar(&debugLevel, "debuglevel", "warn", "Logging level")
	flag.Usage = usage
	flag.Parse()

	if err := run(addr, player, debugLevel, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "scramblectl: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, player, debugLevel string, args []string) error {
	if len(args) == 0 {
		usage()
		return fmt.Errorf("missing command")
	}
	if player == "" {
		return fmt.Errorf("-player is required")
	}

	logBackend, err := logging.NewLogBackend(logging.LogConfig{DebugLevel: debugLevel})
	if err != nil {
		return err
	}
	log := logBackend.Logger("CTL")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, initial, err := client.Dial(ctx, addr, player, log)
	if err != nil {
		return err
	}
	defer c.Close()

	switch args[0] {
	case "look":
		fmt.Println(initial)
		return nil

	case "flip":
		if len(args) != 3 {
			return fmt.Errorf("usage: flip ROW COL")
		}
		row, err1 := strconv.Atoi(args[1])
		col, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil {
			return fmt.Errorf("coordinates must be integers")
		}
		view, err := c.Flip(ctx, row, col)
		if err != nil {
			return err
		}
		fmt.Println(view)
		return nil

	case "map":
		if len(args) != 2 {
			return fmt.Errorf("usage: map NAME")
		}
		view, err := c.Map(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Println(view)
		return nil

	case "stats":
		stats, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Println(stats)
		return nil

	case "watch":
		if err := c.Watch(ctx); err != nil {
			return err
		}
		for {
			select {
			case view := <-c.Updates:
				fmt.Println(view)
				fmt.Println()
			case <-ctx.Done():
				return nil
			}
		}

	case "bot":
		flips := 100
		if len(args) > 1 {
			flips, err = strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("FLIPS must be an integer")
			}
		}
		return runBot(ctx, c, initial, flips, log)

	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// runBot plays random moves against the live server: flip anywhere, accept
// every outcome, pause briefly so humans can watch along.
func runBot(ctx context.Context, c *client.Client, initial string, flips int, log slog.Logger) error {
	var rows, cols int
	if _, err := fmt.Sscanf(initial, "%dx%d", &rows, &cols); err != nil {
		return fmt.Errorf("malformed board header: %w", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < flips; i++ {
		if ctx.Err() != nil {
			return nil
		}
		row, col := rng.Intn(rows), rng.Intn(cols)
		_, err := c.Flip(ctx, row, col)
		var srvErr *client.ServerError
		switch {
		case err == nil:
			log.Infof("flip %d,%d ok", row, col)
		case errors.As(err, &srvErr):
			log.Infof("flip %d,%d: %v", row, col, srvErr)
		case errors.Is(err, context.Canceled):
			return nil
		default:
			return err
		}
		time.Sleep(time.Duration(rng.Intn(250)) * time.Millisecond)
	}
	return nil
}
