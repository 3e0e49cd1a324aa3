// Package speech captures a spoken prompt from PulseAudio and turns it into text.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const clientName = "storybook"

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Label formats device metadata for logs and the devices command.
func (d Device) Label() string {
	description := strings.TrimSpace(d.Description)
	id := strings.TrimSpace(d.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

func newPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(clientName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil || strings.HasSuffix(source.SourceName, ".monitor") {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves audio.input/audio.fallback preferences against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// preference is one parsed audio.input or audio.fallback value: a
// comma-separated list of match terms tried in order, "default" for the
// server default source, or "auto" for a USB microphone when one is plugged
// in and the default source otherwise.
type preference struct {
	raw   string
	terms []string
	auto  bool
}

func parsePreference(raw string) preference {
	p := preference{raw: raw, terms: matchTerms(raw)}
	if len(p.terms) == 1 && p.terms[0] == "auto" {
		p.terms, p.auto = []string{"usb"}, true
	}
	return p
}

// resolve picks the device a preference names.
func (p preference) resolve(devices []Device) (*Device, error) {
	if len(p.terms) > 0 {
		if d := findDevice(devices, p.terms); d != nil {
			return d, nil
		}
		if !p.auto {
			return nil, fmt.Errorf("%q did not match any device", p.raw)
		}
	}
	for i := range devices {
		if devices[i].Default {
			return &devices[i], nil
		}
	}
	return nil, errors.New("default audio source is unavailable")
}

// selectDeviceFromList applies selection policy to a pre-fetched device list.
// A muted or unplugged primary hands over to the fallback, which must be usable.
func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	primary, err := parsePreference(input).resolve(devices)
	if err != nil {
		return Selection{}, fmt.Errorf("audio.input: %w", err)
	}
	if usable(*primary) {
		return Selection{Device: *primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	backup, err := parsePreference(fallback).resolve(devices)
	switch {
	case err != nil:
		return Selection{}, fmt.Errorf("audio.input %q is %s and audio.fallback failed: %w", primary.ID, reason, err)
	case backup.Muted:
		return Selection{}, fmt.Errorf("audio.input %q is %s and fallback %q is muted", primary.ID, reason, backup.ID)
	case !backup.Available:
		return Selection{}, fmt.Errorf("audio.input %q is %s and fallback %q is unavailable", primary.ID, reason, backup.ID)
	}

	return Selection{
		Device:   *backup,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, backup.ID),
		Fallback: primary.ID != backup.ID,
	}, nil
}

// matchTerms splits a preference into lowercase terms; "default" yields none.
func matchTerms(raw string) []string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "default" {
		return nil
	}
	var terms []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			terms = append(terms, part)
		}
	}
	return terms
}

// findDevice returns the first device matching the earliest term that has
// any match, preferring a usable device among that term's matches.
func findDevice(devices []Device, terms []string) *Device {
	for _, term := range terms {
		var first *Device
		for i := range devices {
			d := &devices[i]
			if !strings.Contains(strings.ToLower(d.ID), term) && !strings.Contains(strings.ToLower(d.Description), term) {
				continue
			}
			if usable(*d) {
				return d
			}
			if first == nil {
				first = d
			}
		}
		if first != nil {
			return first
		}
	}
	return nil
}

func usable(d Device) bool {
	return d.Available && !d.Muted
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
