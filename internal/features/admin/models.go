// Package admin реализует команды администратора для правил авторолей.
// models.go описывает сессии подтверждения опасных действий.
package admin

import "time"

// Action - действие, требующее подтверждения.
type Action string

const (
	ActionDelete Action = "delete" // Удалить правило
	ActionPurge  Action = "purge"  // Снять все роли правила
)

// Session - ожидающее подтверждения действие администратора.
// Живёт до ExpiresAt, после чего подтверждение невозможно.
type Session struct {
	Code        string    // Код для !autorole confirm
	Action      Action    // Что подтверждаем
	GuildID     string    // Гильдия
	RuleName    string    // Правило
	RequestedBy string    // Кто открыл сессию (подтвердить может только он)
	ExpiresAt   time.Time // Когда сессия истекает
}

// Command - разобранная команда администратора.
type Command struct {
	GuildID   string
	ChannelID string
	UserID    string
	IsAdmin   bool     // Administrator или Manage Roles
	Args      []string // Всё после "autorole"
}
