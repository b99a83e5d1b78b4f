// Package tally - repository.go выполняет операции с таблицами
// autorole_reaction_tallies и autorole_presence. Каждое изменение - один
// атомарный запрос по одному ключу, межключевых транзакций нет.
package tally

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository работает со счётчиками реакций и отметками присутствия.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий счётчиков.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Increment создаёт счётчик с count=1 или прибавляет единицу.
func (r *Repository) Increment(ctx context.Context, key Key, authorID string) (*Change, error) {
	query := `
		INSERT INTO autorole_reaction_tallies (guild_id, message_id, emoji_key, author_id, count)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (guild_id, message_id, emoji_key)
		DO UPDATE SET count = autorole_reaction_tallies.count + 1, updated_at = NOW()
		RETURNING author_id, count, updated_at
	`
	c := &Change{Tally: ReactionTally{Key: key}}
	err := r.db.QueryRow(ctx, query, key.GuildID, key.MessageID, key.EmojiKey, authorID).
		Scan(&c.Tally.AuthorID, &c.Tally.Count, &c.Tally.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка инкремента счётчика: %w", err)
	}
	c.Previous = c.Tally.Count - 1
	return c, nil
}

// Decrement вычитает единицу с полом в ноль. Если счётчика нет, возвращает nil:
// событие пришло для уже очищенного сообщения.
func (r *Repository) Decrement(ctx context.Context, key Key) (*Change, error) {
	query := `
		UPDATE autorole_reaction_tallies t
		SET count = GREATEST(t.count - 1, 0), updated_at = NOW()
		FROM (
			SELECT guild_id, message_id, emoji_key, count
			FROM autorole_reaction_tallies
			WHERE guild_id = $1 AND message_id = $2 AND emoji_key = $3
			FOR UPDATE
		) old
		WHERE t.guild_id = old.guild_id AND t.message_id = old.message_id AND t.emoji_key = old.emoji_key
		RETURNING t.author_id, old.count, t.count, t.updated_at
	`
	c := &Change{Tally: ReactionTally{Key: key}}
	err := r.db.QueryRow(ctx, query, key.GuildID, key.MessageID, key.EmojiKey).
		Scan(&c.Tally.AuthorID, &c.Previous, &c.Tally.Count, &c.Tally.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка декремента счётчика: %w", err)
	}
	return c, nil
}

// Mark ставит отметку присутствия. Повторная отметка ничего не меняет (false).
func (r *Repository) Mark(ctx context.Context, e PresenceEntry) (bool, error) {
	query := `
		INSERT INTO autorole_presence (guild_id, message_id, emoji_key, user_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, e.GuildID, e.MessageID, e.EmojiKey, e.UserID)
	if err != nil {
		return false, fmt.Errorf("ошибка записи присутствия: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Clear снимает отметку присутствия. false - отметки не было.
func (r *Repository) Clear(ctx context.Context, e PresenceEntry) (bool, error) {
	query := `
		DELETE FROM autorole_presence
		WHERE guild_id = $1 AND message_id = $2 AND emoji_key = $3 AND user_id = $4
	`
	tag, err := r.db.Exec(ctx, query, e.GuildID, e.MessageID, e.EmojiKey, e.UserID)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления присутствия: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DrainPresence удаляет и возвращает все отметки сообщений.
func (r *Repository) DrainPresence(ctx context.Context, guildID string, messageIDs []string) ([]PresenceEntry, error) {
	query := `
		DELETE FROM autorole_presence
		WHERE guild_id = $1 AND message_id = ANY($2)
		RETURNING guild_id, message_id, emoji_key, user_id, created_at
	`
	rows, err := r.db.Query(ctx, query, guildID, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка очистки присутствия: %w", err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[PresenceEntry])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения присутствия: %w", err)
	}
	return entries, nil
}

// DrainTallies удаляет и возвращает все счётчики сообщений.
func (r *Repository) DrainTallies(ctx context.Context, guildID string, messageIDs []string) ([]ReactionTally, error) {
	query := `
		DELETE FROM autorole_reaction_tallies
		WHERE guild_id = $1 AND message_id = ANY($2)
		RETURNING guild_id, message_id, emoji_key, author_id, count, updated_at
	`
	rows, err := r.db.Query(ctx, query, guildID, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка очистки счётчиков: %w", err)
	}
	defer rows.Close()

	var out []ReactionTally
	for rows.Next() {
		var t ReactionTally
		if err := rows.Scan(&t.GuildID, &t.MessageID, &t.EmojiKey, &t.AuthorID, &t.Count, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования счётчика: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
