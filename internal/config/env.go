// ABOUTME: Config file discovery and .env loading shared by the chatdesk binaries
// ABOUTME: CHATDESK_CONFIG wins over the XDG config directory

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvConfigPath names the environment variable that overrides the config path.
const EnvConfigPath = "CHATDESK_CONFIG"

// DefaultPath returns the config file path.
// Priority: CHATDESK_CONFIG > XDG_CONFIG_HOME/chatdesk/gateway.yaml > ~/.config/chatdesk/gateway.yaml
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "chatdesk", "gateway.yaml")
}

// DataDir returns the directory for the database and snapshot files.
// Priority: XDG_DATA_HOME/chatdesk > ~/.local/share/chatdesk
func DataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "chatdesk")
}

// LoadEnvFiles loads KEY=VALUE files into the process environment so that
// ${VAR} references in the config resolve. Missing files are skipped and
// variables already set are left alone. It returns the files that loaded.
func LoadEnvFiles(paths ...string) ([]string, error) {
	var loaded []string
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("loading %s: %w", p, err)
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}
