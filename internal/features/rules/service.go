// Package rules - service.go содержит операции над правилами.
// Это единственная точка мутации хранилища правил; после каждой мутации
// снимок гильдии в кэше перестраивается.
package rules

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/discord-autorole/internal/common"
)

// Store - хранилище правил (Repository в проде).
type Store interface {
	Loader
	Create(ctx context.Context, rule *Rule) error
	Get(ctx context.Context, guildID, name string) (*Rule, error)
	ListByGuild(ctx context.Context, guildID string) ([]*Rule, error)
	ListEnabledByType(ctx context.Context, typ TriggerType) ([]*Rule, error)
	SetEnabled(ctx context.Context, guildID, name string, enabled bool) error
	Delete(ctx context.Context, guildID, name string) error
	DisableByRole(ctx context.Context, guildID, roleID string) ([]string, error)
	DisableReactSpecificByMessage(ctx context.Context, guildID, messageID string) ([]*Rule, error)
}

// Service управляет правилами и держит кэш в актуальном состоянии.
type Service struct {
	store Store
	cache *Cache
}

// NewService создаёт сервис правил.
func NewService(store Store, cache *Cache) *Service {
	return &Service{store: store, cache: cache}
}

// Cache возвращает кэш правил.
func (s *Service) Cache() *Cache {
	return s.cache
}

// CreateRule валидирует и сохраняет новое правило.
func (s *Service) CreateRule(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if err := s.store.Create(ctx, rule); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"guild_id": rule.GuildID,
		"rule":     rule.Name,
		"role_id":  rule.RoleID,
		"trigger":  rule.Trigger.Type(),
		"live":     rule.IsLive(),
	}).Info("Правило создано")

	s.refresh(ctx, rule.GuildID)
	return nil
}

// GetRule возвращает правило по имени.
func (s *Service) GetRule(ctx context.Context, guildID, name string) (*Rule, error) {
	return s.store.Get(ctx, guildID, name)
}

// ListRules возвращает все правила гильдии.
func (s *Service) ListRules(ctx context.Context, guildID string) ([]*Rule, error) {
	return s.store.ListByGuild(ctx, guildID)
}

// ListEnabledByType возвращает включённые правила типа во всех гильдиях.
func (s *Service) ListEnabledByType(ctx context.Context, typ TriggerType) ([]*Rule, error) {
	return s.store.ListEnabledByType(ctx, typ)
}

// DisableRule выключает правило. Выданные гранты остаются.
func (s *Service) DisableRule(ctx context.Context, guildID, name string) error {
	return s.setEnabled(ctx, guildID, name, false)
}

// EnableRule снова включает правило.
func (s *Service) EnableRule(ctx context.Context, guildID, name string) error {
	return s.setEnabled(ctx, guildID, name, true)
}

// DeleteRule удаляет правило. Гранты не трогаются: для их снятия есть PurgeRule.
func (s *Service) DeleteRule(ctx context.Context, guildID, name string) error {
	if err := s.store.Delete(ctx, guildID, name); err != nil {
		return err
	}
	log.WithFields(log.Fields{"guild_id": guildID, "rule": name}).Info("Правило удалено")
	s.refresh(ctx, guildID)
	return nil
}

// DisableByRole выключает правила удалённой роли.
func (s *Service) DisableByRole(ctx context.Context, guildID, roleID string) ([]string, error) {
	names, err := s.store.DisableByRole(ctx, guildID, roleID)
	if err != nil {
		return nil, err
	}
	if len(names) > 0 {
		s.refresh(ctx, guildID)
	}
	return names, nil
}

// DisableReactSpecificByMessage выключает правила, привязанные к удалённому сообщению.
func (s *Service) DisableReactSpecificByMessage(ctx context.Context, guildID, messageID string) ([]*Rule, error) {
	bound, err := s.store.DisableReactSpecificByMessage(ctx, guildID, messageID)
	if err != nil {
		return nil, err
	}
	if len(bound) > 0 {
		s.refresh(ctx, guildID)
	}
	return bound, nil
}

func (s *Service) setEnabled(ctx context.Context, guildID, name string, enabled bool) error {
	if err := s.store.SetEnabled(ctx, guildID, name, enabled); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"guild_id": guildID,
		"rule":     name,
		"enabled":  enabled,
	}).Info("Правило переключено")
	s.refresh(ctx, guildID)
	return nil
}

// refresh перестраивает снимок гильдии. Ошибка не отменяет мутацию:
// снимок догонит при следующем обновлении.
func (s *Service) refresh(ctx context.Context, guildID string) {
	if _, err := s.cache.Refresh(ctx, guildID); err != nil {
		log.WithError(err).WithField("guild_id", guildID).Error("Кэш правил не обновлён после мутации")
	}
}

// Describe - короткое описание триггера для списка правил.
func Describe(t Trigger) string {
	switch v := t.(type) {
	case MessageReactAny:
		return "любая реакция"
	case ReactSpecific:
		return fmt.Sprintf("реакция %s на сообщение %s", v.EmojiKey, v.MessageID)
	case ReactedThreshold:
		return fmt.Sprintf("%d× %s на сообщении автора", v.Count, v.EmojiKey)
	case ReputationThreshold:
		return fmt.Sprintf("репутация от %d", v.MinRep)
	case AntiquityThreshold:
		return fmt.Sprintf("стаж от %s", common.FormatDuration(v.Tenure()))
	default:
		return "?"
	}
}
