// Package grants ведёт учёт выданных по правилам ролей.
// models.go описывает запись о выдаче.
package grants

import "time"

// GrantType - вид выдачи.
type GrantType string

const (
	// TypeLive - роль зависит от условия правила и снимается автоматически
	TypeLive GrantType = "LIVE"
	// TypePermanent - роль снимается только администратором (purge)
	TypePermanent GrantType = "PERMANENT"
)

// Grant - запись о том, что роль выдана пользователю по правилу.
// На (guild_id, user_id, rule_name) существует не больше одной записи.
type Grant struct {
	GuildID   string     `db:"guild_id"`
	UserID    string     `db:"user_id"`
	RoleID    string     `db:"role_id"`
	RuleName  string     `db:"rule_name"`
	Type      GrantType  `db:"type"`
	ExpiresAt *time.Time `db:"expires_at"` // Только для LIVE
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

// IsLive сообщает, снимается ли роль автоматически.
func (g *Grant) IsLive() bool {
	return g.Type == TypeLive
}

// Expired сообщает, истёк ли срок live-гранта на момент now.
func (g *Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// PurgeResult - итог массового снятия ролей правила.
type PurgeResult struct {
	RemovedGrants   int // Удалено записей
	RoleRevocations int // Реально снято ролей в Discord
}

// SweepResult - итог одного прохода по истёкшим грантам.
type SweepResult struct {
	Scanned int
	Revoked int
	Failed  int
}
