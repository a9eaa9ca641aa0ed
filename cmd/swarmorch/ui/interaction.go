package ui

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Any of these set to a truthy value disables prompts and colour.
var noInteractionEnv = []string{"SWARMORCH_NO_INTERACTION", "NO_INTERACTION", "CI"}

var interaction struct {
	mu          sync.RWMutex
	configured  bool
	interactive bool
}

// ConfigureInteraction decides once per invocation whether prompts may be
// shown and picks the matching colour profile.
func ConfigureInteraction(noInteraction bool) {
	interactive := !noInteraction && detectInteractive()

	interaction.mu.Lock()
	interaction.configured = true
	interaction.interactive = interactive
	interaction.mu.Unlock()

	profile := termenv.Ascii
	if interactive && !termenv.EnvNoColor() {
		profile = termenv.NewOutput(os.Stderr).EnvColorProfile()
	}
	lipgloss.SetColorProfile(profile)
}

func IsInteractive() bool {
	interaction.mu.RLock()
	configured, interactive := interaction.configured, interaction.interactive
	interaction.mu.RUnlock()
	if configured {
		return interactive
	}
	ConfigureInteraction(false)
	return IsInteractive()
}

func IsNoInteraction() bool { return !IsInteractive() }

func detectInteractive() bool {
	for _, key := range noInteractionEnv {
		if envTruthy(key) {
			return false
		}
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("TERM")), "dumb") {
		return false
	}
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func envTruthy(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
