package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rbright/storybook/internal/config"
)

// Backlight switches the display panel on and off.
type Backlight interface {
	SetPower(ctx context.Context, on bool)
}

// NoopBacklight is used when no controllable panel is configured.
type NoopBacklight struct{}

func (NoopBacklight) SetPower(context.Context, bool) {}

// DefaultBacklightRoot is the sysfs class directory for backlight devices.
const DefaultBacklightRoot = "/sys/class/backlight"

// blPower values from the fbdev FB_BLANK_* constants.
const (
	blPowerOn  = "0"
	blPowerOff = "4"
)

// SysfsBacklight writes bl_power for one backlight device.
type SysfsBacklight struct {
	path   string
	logger *slog.Logger
}

// NewBacklight returns the configured backlight sink. Missing devices degrade
// to NoopBacklight.
func NewBacklight(cfg config.BacklightConfig, root string, logger *slog.Logger) Backlight {
	if !cfg.Enable {
		return NoopBacklight{}
	}
	if root == "" {
		root = DefaultBacklightRoot
	}

	device := cfg.Device
	if device == "" {
		entries, err := os.ReadDir(root)
		if err != nil || len(entries) == 0 {
			logMissingBacklight(logger, root, err)
			return NoopBacklight{}
		}
		device = entries[0].Name()
	}

	path := filepath.Join(root, device, "bl_power")
	if _, err := os.Stat(path); err != nil {
		logMissingBacklight(logger, path, err)
		return NoopBacklight{}
	}
	return &SysfsBacklight{path: path, logger: logger}
}

// Path returns the bl_power file this sink writes.
func (b *SysfsBacklight) Path() string {
	return b.path
}

func (b *SysfsBacklight) SetPower(_ context.Context, on bool) {
	value := blPowerOff
	if on {
		value = blPowerOn
	}
	if err := os.WriteFile(b.path, []byte(value+"\n"), 0o644); err != nil && b.logger != nil {
		b.logger.Debug("backlight write failed", "path", b.path, "error", err.Error())
	}
}

func logMissingBacklight(logger *slog.Logger, where string, err error) {
	if logger == nil {
		return
	}
	msg := fmt.Sprintf("backlight unavailable at %s", where)
	if err != nil {
		logger.Debug(msg, "error", err.Error())
		return
	}
	logger.Debug(msg)
}
