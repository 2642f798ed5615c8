package server

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the server's on-disk configuration. Every field has a flag of
// the same meaning in cmd/scramblesrv; flags win over the file.
type Config struct {
	Host       string `toml:"host"`
	Port       uint   `toml:"port"`
	BoardFile  string `toml:"board"`
	RandomRows int    `toml:"random_rows"`
	RandomCols int    `toml:"random_cols"`
	Symbols    string `toml:"symbols"`
	Seed       int64  `toml:"seed"`
	DBPath     string `toml:"db"`
	DebugLevel string `toml:"debuglevel"`
	DataDir    string `toml:"datadir"`
}

// DefaultConfig returns the configuration used when neither file nor flags
// say otherwise.
func DefaultConfig() Config {
	return Config{
		Host:       "127.0.0.1",
		Port:       8080,
		RandomRows: 4,
		RandomCols: 4,
		Symbols:    "🦄,🌈,⭐,☀,🌙,🍀,🎲,🔔",
		DebugLevel: "info",
	}
}

// LoadConfig reads the TOML file at path over the defaults. A missing file
// is not an error; a malformed one is.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
