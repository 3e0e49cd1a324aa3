// Package ipc is the kiosk's local control plane: one JSON line per request
// and response over a unix socket owned by the running session.
package ipc

import "slices"

// Commands understood by a running kiosk.
const (
	CommandStatus = "status"
	CommandStop   = "stop"
	CommandNew    = "new"
	CommandNext   = "next"
	CommandPrev   = "prev"
)

var commands = []string{CommandStatus, CommandStop, CommandNew, CommandNext, CommandPrev}

// Commands returns the forwarded command names in help order.
func Commands() []string {
	return slices.Clone(commands)
}

// IsCommand reports whether name is forwarded to a running kiosk.
func IsCommand(name string) bool {
	return slices.Contains(commands, name)
}

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
