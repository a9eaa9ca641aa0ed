package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/docker/go-units"
)

// Status colours a state word: green for good states, yellow for partial
// ones, red for failures and muted for anything else.
func Status(s string) string {
	return stateTone(s).render(s)
}

func stateTone(s string) tone {
	switch s {
	case "healthy", "running", "ready", "active":
		return toneGood
	case "degraded", "stopped", "drain", "pause", "unknown":
		return toneWarn
	case "unhealthy", "failed", "down", "disconnected":
		return toneBad
	default:
		return toneNeutral
	}
}

// Replicas renders "running/desired", red when nothing runs, yellow while
// converging and green once every replica is up.
func Replicas(running, desired int) string {
	s := fmt.Sprintf("%d/%d", running, desired)
	switch {
	case desired == 0:
		return toneNeutral.render(s)
	case running == 0:
		return toneBad.render(s)
	case running < desired:
		return toneWarn.render(s)
	default:
		return toneGood.render(s)
	}
}

// Size renders a byte count in decimal units; zero renders as "-".
func Size(n int64) string {
	if n <= 0 {
		return "-"
	}
	return units.HumanSize(float64(n))
}

// MemoryMB renders a memory size given in MiB.
func MemoryMB(mb float64) string {
	if mb <= 0 {
		return "-"
	}
	return units.BytesSize(mb * units.MiB)
}

// Ago renders the time elapsed since t, or "-" for the zero time.
func Ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return units.HumanDuration(time.Since(t)) + " ago"
}

func Int(n int) string { return strconv.Itoa(n) }

// OrDash returns s, or "-" when s is empty.
func OrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
