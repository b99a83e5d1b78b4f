// Package reputation реализует репутацию участников гильдии.
// Счёт репутации питает правила REPUTATION_THRESHOLD.
// models.go описывает счёт и лог выдачи.
package reputation

import "time"

// Score хранит репутацию пользователя в гильдии.
type Score struct {
	GuildID          string    `db:"guild_id"`
	UserID           string    `db:"user_id"`
	Points           int       `db:"points"`
	PositiveReceived int       `db:"positive_received"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// Log - запись о выдаче репутации.
type Log struct {
	ID         int64     `db:"id"`
	GuildID    string    `db:"guild_id"`
	FromUserID string    `db:"from_user_id"`
	ToUserID   string    `db:"to_user_id"`
	Points     int       `db:"points"` // Всегда +1
	CreatedAt  time.Time `db:"created_at"`
}
