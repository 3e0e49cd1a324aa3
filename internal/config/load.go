package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	appDir   = "storybook"
	fileName = "config.jsonc"
	// EnvConfigPath names a config file when --config is absent. Kiosk
	// service units set it instead of editing the unit's command line.
	EnvConfigPath = "STORYBOOK_CONFIG"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// WarningLines renders warnings for stderr, prefixed by line when known.
func (l Loaded) WarningLines() []string {
	lines := make([]string, 0, len(l.Warnings))
	for _, w := range l.Warnings {
		if w.Line > 0 {
			lines = append(lines, fmt.Sprintf("line %d: %s", w.Line, w.Message))
			continue
		}
		lines = append(lines, w.Message)
	}
	return lines
}

// ResolvePath picks the config file: explicit, then $STORYBOOK_CONFIG, then
// $XDG_CONFIG_HOME/storybook/config.jsonc, then ~/.config/storybook/config.jsonc.
func ResolvePath(explicit string) (string, error) {
	for _, candidate := range []string{explicit, os.Getenv(EnvConfigPath)} {
		if path := strings.TrimSpace(candidate); path != "" {
			return path, nil
		}
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, appDir, fileName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", appDir, fileName), nil
}

// Load resolves, reads, and parses the config. A missing file is not an
// error: defaults apply and a warning says so.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: path, Config: Default()}

	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = []Warning{{Message: fmt.Sprintf("config file %q not found; using defaults", path)}}
		return loaded, nil
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg, warnings, err := Parse(string(content), loaded.Config)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
	}

	loaded.Config = cfg
	loaded.Warnings = warnings
	loaded.Exists = true
	return loaded, nil
}
