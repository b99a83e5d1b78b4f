// Package tally - tracker.go ведёт счётчики реакций и отметки присутствия.
//
// Поток событий платформы может повторять и терять события, поэтому:
//   - Decrement без счётчика - не ошибка, а nil;
//   - счётчик не уходит ниже нуля;
//   - Mark идемпотентен, дубликат add не создаёт второй отметки.
package tally

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Store - хранилище счётчиков и присутствия (Repository в проде).
type Store interface {
	Increment(ctx context.Context, key Key, authorID string) (*Change, error)
	Decrement(ctx context.Context, key Key) (*Change, error)
	Mark(ctx context.Context, e PresenceEntry) (bool, error)
	Clear(ctx context.Context, e PresenceEntry) (bool, error)
	DrainPresence(ctx context.Context, guildID string, messageIDs []string) ([]PresenceEntry, error)
	DrainTallies(ctx context.Context, guildID string, messageIDs []string) ([]ReactionTally, error)
}

// Tracker объединяет счётчики (REACTED_THRESHOLD) и присутствие (REACT_SPECIFIC).
type Tracker struct {
	store Store
}

// NewTracker создаёт трекер.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// Increment прибавляет реакцию к счётчику сообщения автора authorID.
func (t *Tracker) Increment(ctx context.Context, key Key, authorID string) (*Change, error) {
	c, err := t.store.Increment(ctx, key, authorID)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"guild_id":   key.GuildID,
		"message_id": key.MessageID,
		"emoji":      key.EmojiKey,
		"count":      c.Tally.Count,
	}).Debug("Счётчик реакций увеличен")
	return c, nil
}

// Decrement убирает реакцию из счётчика. nil, nil - счётчика нет.
func (t *Tracker) Decrement(ctx context.Context, key Key) (*Change, error) {
	c, err := t.store.Decrement(ctx, key)
	if err != nil {
		return nil, err
	}
	if c == nil {
		log.WithFields(log.Fields{
			"guild_id":   key.GuildID,
			"message_id": key.MessageID,
			"emoji":      key.EmojiKey,
		}).Debug("Декремент без счётчика, пропускаем")
	}
	return c, nil
}

// Mark отмечает, что пользователь стоит на реакции.
func (t *Tracker) Mark(ctx context.Context, e PresenceEntry) (bool, error) {
	return t.store.Mark(ctx, e)
}

// Clear снимает отметку присутствия.
func (t *Tracker) Clear(ctx context.Context, e PresenceEntry) (bool, error) {
	return t.store.Clear(ctx, e)
}

// Drain удаляет и возвращает всё состояние сообщений: отметки и счётчики.
// После Drain по этим сообщениям не остаётся ни одной записи.
func (t *Tracker) Drain(ctx context.Context, guildID string, messageIDs ...string) ([]PresenceEntry, []ReactionTally, error) {
	if len(messageIDs) == 0 {
		return nil, nil, nil
	}
	presence, err := t.store.DrainPresence(ctx, guildID, messageIDs)
	if err != nil {
		return nil, nil, err
	}
	tallies, err := t.store.DrainTallies(ctx, guildID, messageIDs)
	if err != nil {
		return presence, nil, err
	}

	if len(presence) > 0 || len(tallies) > 0 {
		log.WithFields(log.Fields{
			"guild_id": guildID,
			"messages": len(messageIDs),
			"presence": len(presence),
			"tallies":  len(tallies),
		}).Debug("Состояние реакций очищено")
	}
	return presence, tallies, nil
}
