package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vctt94/memoryscramble/pkg/board"
	"github.com/vctt94/memoryscramble/pkg/logging"
	"github.com/vctt94/memoryscramble/pkg/server"
	"github.com/vctt94/memoryscramble/pkg/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scramblesrv: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		host       string
		port       uint
		boardFile  string
		rows, cols int
		symbols    string
		seed       int64
		dbPath     string
		debugLevel string
		dataDir    string
	)
	flag.StringVar(&configPath, "config", "", "Path to TOML config file")
	flag.StringVar(&host, "host", "", "Host to listen on")
	flag.UintVar(&port, "port", 0, "Port to listen on")
	flag.StringVar(&boardFile, "board", "", "Board file to serve; empty deals a random board")
	flag.IntVar(&rows, "rows", 0, "Rows for a random board")
	flag.IntVar(&cols, "cols", 0, "Columns for a random board")
	flag.StringVar(&symbols, "symbols", "", "Comma separated card symbols for a random board")
	flag.Int64Var(&seed, "seed", 0, "Deterministic RNG seed for random boards (0 = random)")
	flag.StringVar(&dbPath, "db", "", "Path to SQLite stats database (created if missing)")
	flag.StringVar(&debugLevel, "debuglevel", "", "Logging level: trace, debug, info, warn, error")
	flag.StringVar(&dataDir, "datadir", "", "Directory for database and logs")
	flag.Parse()

	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		return err
	}

	// Explicitly set flags win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = host
		case "port":
			cfg.Port = port
		case "board":
			cfg.BoardFile = boardFile
		case "rows":
			cfg.RandomRows = rows
		case "cols":
			cfg.RandomCols = cols
		case "symbols":
			cfg.Symbols = symbols
		case "seed":
			cfg.Seed = seed
		case "db":
			cfg.DBPath = dbPath
		case "debuglevel":
			cfg.DebugLevel = debugLevel
		case "datadir":
			cfg.DataDir = dataDir
		}
	})

	if cfg.DataDir == "" {
		cfg.DataDir = utils.AppDataDir("scramble")
	}
	if err := utils.EnsureDataDirExists(cfg.DataDir); err != nil {
		return err
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "scramble.sqlite")
	}

	logBackend, err := logging.NewLogBackend(logging.LogConfig{
		DebugLevel: cfg.DebugLevel,
		LogFile:    filepath.Join(cfg.DataDir, "logs", "scramblesrv.log"),
	})
	if err != nil {
		return err
	}
	defer logBackend.Close()
	log := logBackend.Logger("MAIN")

	b, err := buildBoard(cfg)
	if err != nil {
		return err
	}
	log.Infof("serving a %dx%d board", b.Rows(), b.Cols())

	db, err := server.NewDatabase(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	defer db.Close()

	srv := server.NewServer(b, db, logBackend, cfg.BoardFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return srv.Run(ctx, addr)
}

// buildBoard parses the configured board file, or deals a shuffled one.
func buildBoard(cfg server.Config) (*board.Board, error) {
	if cfg.BoardFile != "" {
		return board.ParseFile(cfg.BoardFile)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	var syms []string
	for _, s := range strings.Split(cfg.Symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			syms = append(syms, s)
		}
	}
	return board.NewShuffled(cfg.RandomRows, cfg.RandomCols, syms,
		rand.New(rand.NewSource(seed)))
}
