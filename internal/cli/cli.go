// Package cli parses the storybook command line.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandRun     Command = "run"
	CommandStatus  Command = "status"
	CommandStop    Command = "stop"
	CommandNew     Command = "new"
	CommandNext    Command = "next"
	CommandPrev    Command = "prev"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandRun:     {},
	CommandStatus:  {},
	CommandStop:    {},
	CommandNew:     {},
	CommandNext:    {},
	CommandPrev:    {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	// Display overrides display.backend for run.
	Display  string
	ShowHelp bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config", "--display":
			i++
			if i >= len(args) || strings.HasPrefix(args[i], "-") {
				return Parsed{}, fmt.Errorf("%s requires a value", arg)
			}
			if arg == "--config" {
				parsed.ConfigPath = args[i]
			} else {
				parsed.Display = args[i]
			}
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	if parsed.Display != "" && parsed.Command != CommandRun {
		return Parsed{}, errors.New("--display only applies to run")
	}
	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--display terminal|console] <command>

Commands:
  run       Start the storybook kiosk in the foreground
  status    Print the running kiosk's state
  stop      Ask the running kiosk to shut down
  new       Ask the running kiosk to listen for a new story
  next      Turn to the next page
  prev      Turn to the previous page
  devices   List available input devices
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH      Config file path (default: $XDG_CONFIG_HOME/storybook/config.jsonc)
  --display BACKEND  Override display.backend for run
  -h, --help         Show help
  --version          Show version
`, binaryName)
}
