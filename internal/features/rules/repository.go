// Package rules - repository.go выполняет операции с таблицей autorole_rules.
package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/discord-autorole/internal/common"
)

// pgUniqueViolation - SQLSTATE нарушения уникальности
const pgUniqueViolation = "23505"

const ruleColumns = `guild_id, name, role_id, enabled, duration_ms, trigger_type, trigger_args,
		       created_by, created_at, updated_at`

// Repository предоставляет методы для работы с таблицей autorole_rules.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий правил.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create сохраняет новое правило. Имя уникально в гильдии (PRIMARY KEY).
func (r *Repository) Create(ctx context.Context, rule *Rule) error {
	typ, args, err := EncodeTrigger(rule.Trigger)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO autorole_rules (guild_id, name, role_id, enabled, duration_ms,
		                            trigger_type, trigger_args, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		rule.GuildID, rule.Name, rule.RoleID, rule.Enabled, rule.DurationMs,
		string(typ), args, rule.CreatedBy,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return common.ErrRuleExists
		}
		return fmt.Errorf("ошибка создания правила %s: %w", rule.Name, err)
	}
	return nil
}

// Get возвращает правило по первичному ключу или common.ErrRuleNotFound.
func (r *Repository) Get(ctx context.Context, guildID, name string) (*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM autorole_rules WHERE guild_id = $1 AND name = $2`
	rule, err := scanRule(r.db.QueryRow(ctx, query, guildID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrRuleNotFound
		}
		return nil, fmt.Errorf("ошибка чтения правила %s: %w", name, err)
	}
	return rule, nil
}

// ListByGuild возвращает все правила гильдии, включая выключенные.
func (r *Repository) ListByGuild(ctx context.Context, guildID string) ([]*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM autorole_rules WHERE guild_id = $1 ORDER BY name`
	return r.queryRules(ctx, query, guildID)
}

// ListEnabledByGuild возвращает включённые правила гильдии. Источник для кэша.
func (r *Repository) ListEnabledByGuild(ctx context.Context, guildID string) ([]*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM autorole_rules WHERE guild_id = $1 AND enabled ORDER BY name`
	return r.queryRules(ctx, query, guildID)
}

// ListEnabledByType возвращает включённые правила заданного типа во всех гильдиях.
// Используется проверкой стажа.
func (r *Repository) ListEnabledByType(ctx context.Context, typ TriggerType) ([]*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM autorole_rules WHERE trigger_type = $1 AND enabled ORDER BY guild_id, name`
	return r.queryRules(ctx, query, string(typ))
}

// SetEnabled включает/выключает правило.
func (r *Repository) SetEnabled(ctx context.Context, guildID, name string, enabled bool) error {
	query := `UPDATE autorole_rules SET enabled = $3, updated_at = NOW() WHERE guild_id = $1 AND name = $2`
	tag, err := r.db.Exec(ctx, query, guildID, name, enabled)
	if err != nil {
		return fmt.Errorf("ошибка обновления правила %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrRuleNotFound
	}
	return nil
}

// Delete удаляет правило. Гранты правила не трогаются.
func (r *Repository) Delete(ctx context.Context, guildID, name string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM autorole_rules WHERE guild_id = $1 AND name = $2`, guildID, name)
	if err != nil {
		return fmt.Errorf("ошибка удаления правила %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrRuleNotFound
	}
	return nil
}

// DisableByRole выключает все включённые правила, выдающие roleID. Возвращает их имена.
func (r *Repository) DisableByRole(ctx context.Context, guildID, roleID string) ([]string, error) {
	query := `
		UPDATE autorole_rules SET enabled = FALSE, updated_at = NOW()
		WHERE guild_id = $1 AND role_id = $2 AND enabled
		RETURNING name
	`
	rows, err := r.db.Query(ctx, query, guildID, roleID)
	if err != nil {
		return nil, fmt.Errorf("ошибка выключения правил роли %s: %w", roleID, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения правил роли %s: %w", roleID, err)
	}
	return names, nil
}

// DisableReactSpecificByMessage выключает правила REACT_SPECIFIC, привязанные к сообщению.
// Возвращает ВСЕ такие правила (и уже выключенные тоже): у них могут остаться live-гранты.
func (r *Repository) DisableReactSpecificByMessage(ctx context.Context, guildID, messageID string) ([]*Rule, error) {
	query := `
		UPDATE autorole_rules
		SET enabled = FALSE,
		    updated_at = CASE WHEN enabled THEN NOW() ELSE updated_at END
		WHERE guild_id = $1 AND trigger_type = $2 AND trigger_args->>'messageId' = $3
		RETURNING ` + ruleColumns
	return r.queryRules(ctx, query, guildID, string(TriggerReactSpecific), messageID)
}

func (r *Repository) queryRules(ctx context.Context, query string, args ...interface{}) ([]*Rule, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса правил: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования правила: %w", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения правил: %w", err)
	}
	return out, nil
}

func scanRule(row pgx.Row) (*Rule, error) {
	var (
		rule Rule
		typ  string
		args []byte
	)
	err := row.Scan(
		&rule.GuildID, &rule.Name, &rule.RoleID, &rule.Enabled, &rule.DurationMs,
		&typ, &args, &rule.CreatedBy, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.Trigger, err = DecodeTrigger(TriggerType(typ), args)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}
