// Package grants - manager.go единственное место, откуда бот выдаёт и снимает
// роли по правилам. Запись о гранте существует тогда и только тогда, когда роль
// действительно выдана: сначала сохраняем запись, потом выдаём роль,
// при ошибке выдачи запись откатывается. Операции над одной тройкой
// (гильдия, пользователь, правило) выполняются строго по очереди.
package grants

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/discord-autorole/internal/common"
	"serotonyl.ru/discord-autorole/internal/features/rules"
)

// Store - хранилище грантов (Repository в проде).
type Store interface {
	Insert(ctx context.Context, g *Grant) (bool, error)
	Get(ctx context.Context, guildID, userID, ruleName string) (*Grant, error)
	Delete(ctx context.Context, guildID, userID, ruleName string) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Grant, error)
	ListByRule(ctx context.Context, guildID, ruleName string) ([]*Grant, error)
	Postpone(ctx context.Context, guildID, userID, ruleName string, until time.Time) error
}

// expiryRetryDelay - на сколько откладывается истёкший грант, роль которого
// снять не удалось (например, роль бота стала ниже выдаваемой).
const expiryRetryDelay = 15 * time.Minute

// RoleMutator выдаёт и снимает роли на платформе.
type RoleMutator interface {
	IssueRole(ctx context.Context, guildID, userID, roleID string) error
	RevokeRole(ctx context.Context, guildID, userID, roleID string) error
}

// Manager выдаёт и снимает роли, поддерживая записи о грантах.
type Manager struct {
	store Store
	roles RoleMutator
	now   func() time.Time
	locks *keyLocks
}

// NewManager создаёт менеджер грантов.
func NewManager(store Store, roles RoleMutator) *Manager {
	return &Manager{store: store, roles: roles, now: time.Now, locks: newKeyLocks()}
}

// keyLocks - мьютексы по ключу гранта. Запись удаляется, когда её никто не держит.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

// lock захватывает мьютекс ключа и возвращает функцию освобождения.
func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (m *Manager) lockGrant(guildID, userID, ruleName string) func() {
	return m.locks.lock(guildID + "/" + userID + "/" + ruleName)
}

// GrantByRule выдаёт роль правила пользователю. Повторная выдача ничего не делает
// и возвращает false. Для live-правила грант получает expiresAt = now + durationMs.
func (m *Manager) GrantByRule(ctx context.Context, rule *rules.Rule, userID, reason string) (bool, error) {
	logger := log.WithFields(log.Fields{
		"guild_id": rule.GuildID,
		"user_id":  userID,
		"role_id":  rule.RoleID,
		"rule":     rule.Name,
		"reason":   reason,
	})

	unlock := m.lockGrant(rule.GuildID, userID, rule.Name)
	defer unlock()

	existing, err := m.store.Get(ctx, rule.GuildID, userID, rule.Name)
	if err != nil {
		return false, err
	}
	if existing != nil {
		logger.Debug("Грант уже есть, пропускаем")
		return false, nil
	}

	g := &Grant{
		GuildID:  rule.GuildID,
		UserID:   userID,
		RoleID:   rule.RoleID,
		RuleName: rule.Name,
		Type:     TypePermanent,
	}
	if d, ok := rule.Duration(); ok {
		expires := m.now().Add(d)
		g.Type = TypeLive
		g.ExpiresAt = &expires
	}

	inserted, err := m.store.Insert(ctx, g)
	if err != nil {
		return false, err
	}
	if !inserted {
		// Параллельная выдача успела раньше
		logger.Debug("Грант записан параллельно, пропускаем")
		return false, nil
	}

	if err := m.roles.IssueRole(ctx, rule.GuildID, userID, rule.RoleID); err != nil {
		if _, rbErr := m.store.Delete(ctx, rule.GuildID, userID, rule.Name); rbErr != nil {
			logger.WithError(rbErr).Error("Роль не выдана, а запись гранта не откатилась")
		}
		if errors.Is(err, common.ErrMissingPermission) {
			logger.WithError(err).Warn("Нет прав на выдачу роли")
		}
		return false, fmt.Errorf("ошибка выдачи роли %s: %w", rule.RoleID, err)
	}

	logger.WithField("type", g.Type).Info("Роль выдана")
	return true, nil
}

// RevokeByRule снимает роль правила, если есть грант нужного типа.
// Автоматические пути всегда передают TypeLive: постоянные гранты они не трогают.
// Отсутствие гранта - не ошибка, возвращается false.
func (m *Manager) RevokeByRule(ctx context.Context, rule *rules.Rule, userID, reason string, grantType GrantType) (bool, error) {
	unlock := m.lockGrant(rule.GuildID, userID, rule.Name)
	defer unlock()

	g, err := m.store.Get(ctx, rule.GuildID, userID, rule.Name)
	if err != nil {
		return false, err
	}
	if g == nil || g.Type != grantType {
		return false, nil
	}
	if err := m.revokeLocked(ctx, g, reason); err != nil {
		return false, err
	}
	return true, nil
}

// RevokeGrant снимает роль по записи гранта и удаляет запись.
// Если роль или участник уже пропали, запись всё равно удаляется.
// При других ошибках запись остаётся, чтобы следующий проход повторил снятие.
// Запись перечитывается под блокировкой: если её уже удалили, делать нечего.
func (m *Manager) RevokeGrant(ctx context.Context, g *Grant, reason string) error {
	unlock := m.lockGrant(g.GuildID, g.UserID, g.RuleName)
	defer unlock()

	current, err := m.store.Get(ctx, g.GuildID, g.UserID, g.RuleName)
	if err != nil {
		return err
	}
	if current == nil {
		return nil
	}
	return m.revokeLocked(ctx, current, reason)
}

func (m *Manager) revokeLocked(ctx context.Context, g *Grant, reason string) error {
	logger := log.WithFields(log.Fields{
		"guild_id": g.GuildID,
		"user_id":  g.UserID,
		"role_id":  g.RoleID,
		"rule":     g.RuleName,
		"reason":   reason,
	})

	if err := m.roles.RevokeRole(ctx, g.GuildID, g.UserID, g.RoleID); err != nil {
		if !isGone(err) {
			return fmt.Errorf("ошибка снятия роли %s: %w", g.RoleID, err)
		}
		logger.WithError(err).Debug("Роль или участник уже удалены")
	}

	if _, err := m.store.Delete(ctx, g.GuildID, g.UserID, g.RuleName); err != nil {
		logger.WithError(err).Error("Роль снята, а запись гранта осталась")
		return err
	}

	logger.Info("Роль снята")
	return nil
}

// RevokeAllLive снимает все live-гранты правила. Ошибки по отдельным
// пользователям логируются, проход продолжается.
func (m *Manager) RevokeAllLive(ctx context.Context, guildID, ruleName, reason string) (int, error) {
	list, err := m.store.ListByRule(ctx, guildID, ruleName)
	if err != nil {
		return 0, err
	}
	revoked := 0
	for _, g := range list {
		if !g.IsLive() {
			continue
		}
		if err := m.RevokeGrant(ctx, g, reason); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"guild_id": g.GuildID,
				"user_id":  g.UserID,
				"rule":     g.RuleName,
			}).Warn("Не удалось снять live-грант")
			continue
		}
		revoked++
	}
	return revoked, nil
}

// ListByRule возвращает гранты правила.
func (m *Manager) ListByRule(ctx context.Context, guildID, ruleName string) ([]*Grant, error) {
	return m.store.ListByRule(ctx, guildID, ruleName)
}

// PurgeRule снимает все гранты правила, и live, и постоянные.
// Только для администратора: событийный путь сюда не ходит.
func (m *Manager) PurgeRule(ctx context.Context, guildID, ruleName string) (PurgeResult, error) {
	var res PurgeResult

	list, err := m.store.ListByRule(ctx, guildID, ruleName)
	if err != nil {
		return res, err
	}

	for _, g := range list {
		logger := log.WithFields(log.Fields{
			"guild_id": g.GuildID,
			"user_id":  g.UserID,
			"rule":     g.RuleName,
		})

		revoked, deleted, err := m.purgeOne(ctx, g)
		if err != nil {
			logger.WithError(err).Warn("Purge: грант оставлен")
			continue
		}
		if revoked {
			res.RoleRevocations++
		}
		if deleted {
			res.RemovedGrants++
		}
	}

	log.WithFields(log.Fields{
		"guild_id":    guildID,
		"rule":        ruleName,
		"grants":      res.RemovedGrants,
		"revocations": res.RoleRevocations,
	}).Info("Гранты правила очищены")
	return res, nil
}

func (m *Manager) purgeOne(ctx context.Context, g *Grant) (revoked, deleted bool, err error) {
	unlock := m.lockGrant(g.GuildID, g.UserID, g.RuleName)
	defer unlock()

	err = m.roles.RevokeRole(ctx, g.GuildID, g.UserID, g.RoleID)
	switch {
	case err == nil:
		revoked = true
	case isGone(err):
	default:
		return false, false, fmt.Errorf("роль не снята: %w", err)
	}

	deleted, err = m.store.Delete(ctx, g.GuildID, g.UserID, g.RuleName)
	if err != nil {
		return revoked, false, fmt.Errorf("запись гранта не удалена: %w", err)
	}
	return revoked, deleted, nil
}

// SweepExpired снимает истёкшие live-гранты, не больше limit за проход.
// Ошибка по одному гранту не прерывает проход, а сам грант откладывается
// на expiryRetryDelay, чтобы неснимаемые гранты не занимали каждый проход.
func (m *Manager) SweepExpired(ctx context.Context, limit int) (SweepResult, error) {
	var res SweepResult

	now := m.now()
	expired, err := m.store.ListExpired(ctx, now, limit)
	if err != nil {
		return res, err
	}
	res.Scanned = len(expired)

	for _, g := range expired {
		if ctx.Err() != nil {
			break
		}
		logger := log.WithFields(log.Fields{
			"guild_id": g.GuildID,
			"user_id":  g.UserID,
			"rule":     g.RuleName,
		})
		if err := m.expireOne(ctx, g, now); err != nil {
			res.Failed++
			logger.WithError(err).Warn("Не удалось снять истёкший грант")
			if err := m.store.Postpone(ctx, g.GuildID, g.UserID, g.RuleName, now.Add(expiryRetryDelay)); err != nil {
				logger.WithError(err).Error("Не удалось отложить истёкший грант")
			}
			continue
		}
		res.Revoked++
	}

	if res.Scanned == limit {
		log.WithField("limit", limit).Info("Истёкших грантов больше лимита, остаток на следующем проходе")
	}
	return res, ctx.Err()
}

// expireOne снимает истёкший грант, если запись всё ещё та же: между выборкой
// и блокировкой грант могли снять и выдать заново с новым сроком.
func (m *Manager) expireOne(ctx context.Context, g *Grant, now time.Time) error {
	unlock := m.lockGrant(g.GuildID, g.UserID, g.RuleName)
	defer unlock()

	current, err := m.store.Get(ctx, g.GuildID, g.UserID, g.RuleName)
	if err != nil {
		return err
	}
	if current == nil || !current.IsLive() || !current.Expired(now) {
		return nil
	}
	return m.revokeLocked(ctx, current, "expired")
}

func isGone(err error) bool {
	return errors.Is(err, common.ErrRoleGone) || errors.Is(err, common.ErrMemberGone)
}
