// Package tally считает реакции на сообщениях и помнит, кто сейчас стоит
// на конкретной реакции.
// models.go описывает счётчики и отметки присутствия.
package tally

import "time"

// Key - ключ счётчика: эмодзи на сообщении.
type Key struct {
	GuildID   string
	MessageID string
	EmojiKey  string
}

// ReactionTally - число реакций EmojiKey на сообщении, приписанное автору сообщения.
// Count никогда не уходит ниже нуля.
type ReactionTally struct {
	Key
	AuthorID  string    `db:"author_id"`
	Count     int       `db:"count"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Change - результат атомарного изменения счётчика.
type Change struct {
	Tally    ReactionTally
	Previous int
}

// ReachedOnIncrement сообщает, что инкремент довёл счётчик ровно до target.
// Строгое равенство: дальнейшие инкременты выше порога не срабатывают.
func (c *Change) ReachedOnIncrement(target int) bool {
	return c.Tally.Count == target && c.Previous < target
}

// DroppedBelow сообщает, что декремент опустил счётчик с порога на target-1.
// Декременты ниже порога больше не срабатывают.
func (c *Change) DroppedBelow(target int) bool {
	return c.Previous >= target && c.Tally.Count == target-1
}

// PresenceEntry - пользователь UserID сейчас стоит на реакции EmojiKey на сообщении.
// Используется только правилами REACT_SPECIFIC.
type PresenceEntry struct {
	GuildID   string    `db:"guild_id"`
	MessageID string    `db:"message_id"`
	EmojiKey  string    `db:"emoji_key"`
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}
