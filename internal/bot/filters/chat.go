// Package filters решает, в каких гильдиях работают автороли.
package filters

import (
	log "github.com/sirupsen/logrus"
)

// FeatureGate - глобальный флаг AND список разрешённых гильдий.
// Пустой список означает «все гильдии».
type FeatureGate struct {
	enabled bool
	allowed map[string]struct{}
}

// NewFeatureGate создаёт фильтр гильдий.
func NewFeatureGate(enabled bool, guildIDs []string) *FeatureGate {
	g := &FeatureGate{enabled: enabled, allowed: make(map[string]struct{}, len(guildIDs))}
	for _, id := range guildIDs {
		g.allowed[id] = struct{}{}
	}

	log.WithFields(log.Fields{
		"component": "FeatureGate",
		"enabled":   enabled,
		"guilds":    len(guildIDs),
	}).Info("Фильтр гильдий настроен")
	return g
}

// IsFeatureEnabled сообщает, обрабатывать ли события гильдии.
func (g *FeatureGate) IsFeatureEnabled(guildID string) bool {
	if !g.enabled || guildID == "" {
		return false
	}
	if len(g.allowed) == 0 {
		return true
	}
	_, ok := g.allowed[guildID]
	return ok
}
