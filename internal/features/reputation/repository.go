// Package reputation - repository.go выполняет операции с таблицами
// reputation_scores и reputation_logs.
package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository работает с таблицами репутации.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий репутации.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Increment прибавляет единицу к репутации, создавая запись при первой выдаче.
// Возвращает новый счёт.
func (r *Repository) Increment(ctx context.Context, guildID, userID string) (int, error) {
	query := `
		INSERT INTO reputation_scores (guild_id, user_id, points, positive_received)
		VALUES ($1, $2, 1, 1)
		ON CONFLICT (guild_id, user_id) DO UPDATE
		SET points = reputation_scores.points + 1,
		    positive_received = reputation_scores.positive_received + 1,
		    updated_at = NOW()
		RETURNING points
	`
	var points int
	if err := r.db.QueryRow(ctx, query, guildID, userID).Scan(&points); err != nil {
		return 0, fmt.Errorf("ошибка начисления репутации: %w", err)
	}
	return points, nil
}

// Get возвращает счёт пользователя. Если записи нет - 0.
func (r *Repository) Get(ctx context.Context, guildID, userID string) (int, error) {
	var points int
	err := r.db.QueryRow(ctx,
		`SELECT points FROM reputation_scores WHERE guild_id = $1 AND user_id = $2`,
		guildID, userID,
	).Scan(&points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("ошибка чтения репутации: %w", err)
	}
	return points, nil
}

// LogGive записывает выдачу репутации.
func (r *Repository) LogGive(ctx context.Context, guildID, fromUserID, toUserID string, points int) error {
	query := `INSERT INTO reputation_logs (guild_id, from_user_id, to_user_id, points) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Exec(ctx, query, guildID, fromUserID, toUserID, points)
	return err
}

// CountGivenSince возвращает, сколько раз пользователь давал репутацию начиная с since.
func (r *Repository) CountGivenSince(ctx context.Context, guildID, fromUserID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM reputation_logs WHERE guild_id = $1 AND from_user_id = $2 AND created_at >= $3`
	var count int
	err := r.db.QueryRow(ctx, query, guildID, fromUserID, since).Scan(&count)
	return count, err
}

// GaveSince проверяет, давал ли пользователь репутацию конкретному человеку начиная с since.
func (r *Repository) GaveSince(ctx context.Context, guildID, fromUserID, toUserID string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM reputation_logs
			WHERE guild_id = $1 AND from_user_id = $2 AND to_user_id = $3 AND created_at >= $4
		)
	`
	var exists bool
	err := r.db.QueryRow(ctx, query, guildID, fromUserID, toUserID, since).Scan(&exists)
	return exists, err
}
