// Package autorole - движок автоматической выдачи ролей.
// Получает нормализованные события платформы, сопоставляет их с правилами
// гильдии и через менеджер грантов выдаёт или снимает роли.
//
// events.go описывает события, которые движок принимает от адаптера Discord.
package autorole

// ReactionAdded - пользователь поставил реакцию.
type ReactionAdded struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	EmojiKey  string
	IsBot     bool
}

// ReactionRemoved - пользователь убрал реакцию.
// IsBot заполняется адаптером по возможности (из кэша состояния).
type ReactionRemoved struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	EmojiKey  string
	IsBot     bool
}

// ReactionsCleared - с сообщения сняли все реакции. Само сообщение осталось.
type ReactionsCleared struct {
	GuildID   string
	MessageID string
}

// MessageDeleted - сообщение удалено.
type MessageDeleted struct {
	GuildID   string
	MessageID string
}

// MessagesBulkDeleted - пачка сообщений удалена разом.
type MessagesBulkDeleted struct {
	GuildID    string
	MessageIDs []string
}

// RoleDeleted - роль удалена из гильдии.
type RoleDeleted struct {
	GuildID string
	RoleID  string
}
