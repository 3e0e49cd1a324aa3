// Package doctor runs readiness diagnostics for config, the story backend,
// the recognizer, audio input, the display, and a running kiosk.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rbright/storybook/internal/config"
	"github.com/rbright/storybook/internal/generate"
	"github.com/rbright/storybook/internal/health"
	"github.com/rbright/storybook/internal/speech"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes every check for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	}}

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "control socket directory is set", "XDG_RUNTIME_DIR is empty; status/stop/new/next/prev cannot reach the kiosk"))

	checks = append(checks, checkGeneration(ctx, cfg.Config))
	checks = append(checks, checkRecognizer(ctx, cfg.Config))
	checks = append(checks, checkAudioSelection(ctx, cfg.Config))
	checks = append(checks, checkDisplay(cfg.Config))
	checks = append(checks, checkHealth(ctx, cfg.Config))

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkGeneration confirms the backend answers and, for Ollama, that the
// configured model is pulled.
func checkGeneration(ctx context.Context, cfg config.Config) Check {
	name := "generation." + cfg.Mode
	base := strings.TrimSpace(cfg.BackendURL())
	if base == "" {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s_url is empty", cfg.Mode)}
	}

	switch cfg.Generation.Provider {
	case config.ProviderOllama, "":
	case config.ProviderOpenAI:
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("openai-compatible backend at %s (model %s not verified)", base, cfg.Generation.Model)}
	default:
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("unsupported provider %q", cfg.Generation.Provider)}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	backend := generate.NewOllama(base, &http.Client{Timeout: probeTimeout})
	models, err := backend.ListModels(probeCtx)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("cannot reach %s: %v", base, err)}
	}
	if !generate.HasModel(models, cfg.Generation.Model) {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("model %s not found at %s; run: ollama pull %s", cfg.Generation.Model, base, cfg.Generation.Model)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("model %s ready at %s", cfg.Generation.Model, base)}
}

func checkRecognizer(ctx context.Context, cfg config.Config) Check {
	base := strings.TrimSpace(cfg.Speech.RecognizerURL)
	if base == "" {
		return Check{Name: "speech.recognizer", Pass: false, Message: "recognizer_url is empty"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	recognizer := speech.NewRecognizer(base, cfg.Speech.Language, &http.Client{Timeout: probeTimeout})
	if err := recognizer.Ping(probeCtx); err != nil {
		return Check{Name: "speech.recognizer", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	return Check{Name: "speech.recognizer", Pass: true, Message: fmt.Sprintf("reachable at %s", base)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := speech.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkDisplay(cfg config.Config) Check {
	switch cfg.Display.Backend {
	case config.DisplayConsole:
		return Check{Name: "display", Pass: true, Message: "console backend reads commands from stdin"}
	case config.DisplayTerminal, "":
		if _, err := tcell.NewScreen(); err != nil {
			return Check{Name: "display", Pass: false, Message: fmt.Sprintf("terminal unusable: %v", err)}
		}
		return Check{Name: "display", Pass: true, Message: fmt.Sprintf("terminal %q supported", os.Getenv("TERM"))}
	default:
		return Check{Name: "display", Pass: false, Message: fmt.Sprintf("unsupported display backend %q", cfg.Display.Backend)}
	}
}

// checkHealth reports on a running kiosk. No kiosk is not a failure.
func checkHealth(ctx context.Context, cfg config.Config) Check {
	addr := strings.TrimSpace(cfg.Health.Listen)
	if addr == "" {
		return Check{Name: "health", Pass: true, Message: "health endpoint disabled"}
	}

	status, err := health.Probe(ctx, addr, probeTimeout)
	if err != nil {
		return Check{Name: "health", Pass: true, Message: fmt.Sprintf("no kiosk answering on %s", addr)}
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		return Check{Name: "health", Pass: false, Message: fmt.Sprintf("kiosk on %s reports %s", addr, status)}
	}
	return Check{Name: "health", Pass: true, Message: fmt.Sprintf("kiosk serving on %s", addr)}
}
