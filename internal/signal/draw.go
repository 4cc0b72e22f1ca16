// Package signal runs the periodic promotional broadcaster of signal bots.
package signal

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/CardosoB8/Bot-telegram2025/internal/botconfig"
)

// Draw is the outcome of one weighted pick.
type Draw struct {
	Class int
	Value int
}

// Pick chooses a class by weight and then a value uniformly within the
// class's inclusive range. classes must be non-empty with positive weights.
func Pick(r *rand.Rand, classes []botconfig.OutcomeClass) Draw {
	total := 0
	for _, c := range classes {
		total += c.Weight
	}

	n := r.IntN(total)
	idx := len(classes) - 1
	for i, c := range classes {
		if n < c.Weight {
			idx = i
			break
		}
		n -= c.Weight
	}

	c := classes[idx]
	return Draw{Class: idx, Value: c.Min + r.IntN(c.Max-c.Min+1)}
}

// SignalMessage is the caption of a signal.
func SignalMessage(brand string, value int) string {
	return fmt.Sprintf("🚀 <b>ENTRADA CONFIRMADA</b> 🚀\n\n📱 <b>Site:</b> %s\n💰 <b>Sair até:</b> %dX\n\n🔄 Realize até 2 proteções.",
		brand, value)
}

// AnalysisMessage summarizes the running per-class counters.
func AnalysisMessage(classes []botconfig.OutcomeClass, counts []int) string {
	parts := make([]string, len(classes))
	for i, c := range classes {
		label := c.Label
		if label == "" {
			label = c.Name
		}
		parts[i] = fmt.Sprintf("%s: %d", label, counts[i])
	}

	const rule = "━━━━━━━━━━━━━━━━━━"
	return "📊 <b>ANÁLISE</b>\n" + rule + "\n" + strings.Join(parts, " | ") + "\n" + rule + "\nBateu meta? Partilha!"
}

// RotationMessage announces the switch to a new target.
func RotationMessage(brand string) string {
	return fmt.Sprintf("🔄 <b>NOVA CASA</b>\n\n📱 Agora jogamos em: <b>%s</b>", brand)
}

// Brand is the display name of links[i], "Casa N" when none is configured.
func Brand(cfg botconfig.SignalConfig, i int) string {
	if name := strings.TrimSpace(cfg.Brands[cfg.Links[i]]); name != "" {
		return name
	}
	return fmt.Sprintf("Casa %d", i+1)
}
