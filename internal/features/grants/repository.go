// Package grants - repository.go выполняет операции с таблицей autorole_grants.
package grants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const grantColumns = `guild_id, user_id, role_id, rule_name, type, expires_at, created_at, updated_at`

// Repository работает с таблицей autorole_grants.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий грантов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Insert сохраняет грант, если его ещё нет. Возвращает false, если запись
// уже существовала: уникальный ключ решает гонку двух одинаковых выдач.
func (r *Repository) Insert(ctx context.Context, g *Grant) (bool, error) {
	query := `
		INSERT INTO autorole_grants (guild_id, user_id, role_id, rule_name, type, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (guild_id, user_id, rule_name) DO NOTHING
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		g.GuildID, g.UserID, g.RoleID, g.RuleName, string(g.Type), g.ExpiresAt,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка записи гранта: %w", err)
	}
	return true, nil
}

// Get возвращает грант или nil, если его нет.
func (r *Repository) Get(ctx context.Context, guildID, userID, ruleName string) (*Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM autorole_grants
		WHERE guild_id = $1 AND user_id = $2 AND rule_name = $3`
	g, err := scanGrant(r.db.QueryRow(ctx, query, guildID, userID, ruleName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения гранта: %w", err)
	}
	return g, nil
}

// Delete удаляет грант. Возвращает false, если удалять было нечего.
func (r *Repository) Delete(ctx context.Context, guildID, userID, ruleName string) (bool, error) {
	query := `DELETE FROM autorole_grants WHERE guild_id = $1 AND user_id = $2 AND rule_name = $3`
	tag, err := r.db.Exec(ctx, query, guildID, userID, ruleName)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления гранта: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListExpired возвращает live-гранты с expires_at <= now, самые старые первыми.
func (r *Repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM autorole_grants
		WHERE type = 'LIVE' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`
	return r.queryGrants(ctx, query, now, limit)
}

// Postpone переносит срок live-гранта. Используется, когда роль снять не удалось.
func (r *Repository) Postpone(ctx context.Context, guildID, userID, ruleName string, until time.Time) error {
	query := `UPDATE autorole_grants SET expires_at = $4, updated_at = NOW()
		WHERE guild_id = $1 AND user_id = $2 AND rule_name = $3 AND type = 'LIVE'`
	if _, err := r.db.Exec(ctx, query, guildID, userID, ruleName, until); err != nil {
		return fmt.Errorf("ошибка переноса срока гранта: %w", err)
	}
	return nil
}

// ListByRule возвращает все гранты правила.
func (r *Repository) ListByRule(ctx context.Context, guildID, ruleName string) ([]*Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM autorole_grants
		WHERE guild_id = $1 AND rule_name = $2
		ORDER BY created_at`
	return r.queryGrants(ctx, query, guildID, ruleName)
}

// CountByRule возвращает число грантов правила (для списка правил в админке).
func (r *Repository) CountByRule(ctx context.Context, guildID, ruleName string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM autorole_grants WHERE guild_id = $1 AND rule_name = $2`,
		guildID, ruleName,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта грантов: %w", err)
	}
	return n, nil
}

func (r *Repository) queryGrants(ctx context.Context, query string, args ...interface{}) ([]*Grant, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса грантов: %w", err)
	}
	defer rows.Close()

	var out []*Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования гранта: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGrant(row pgx.Row) (*Grant, error) {
	var (
		g   Grant
		typ string
	)
	err := row.Scan(&g.GuildID, &g.UserID, &g.RoleID, &g.RuleName, &typ,
		&g.ExpiresAt, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	g.Type = GrantType(typ)
	return &g, nil
}
