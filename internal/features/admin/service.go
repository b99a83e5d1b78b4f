// Package admin - service.go содержит операции администратора над правилами.
// Удаление и purge двухшаговые: сначала открывается сессия подтверждения,
// действие выполняется только по !autorole confirm <код>.
package admin

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/discord-autorole/internal/common"
	"serotonyl.ru/discord-autorole/internal/features/grants"
	"serotonyl.ru/discord-autorole/internal/features/rules"
)

// RuleService - операции над правилами (*rules.Service в проде).
type RuleService interface {
	CreateRule(ctx context.Context, rule *rules.Rule) error
	GetRule(ctx context.Context, guildID, name string) (*rules.Rule, error)
	ListRules(ctx context.Context, guildID string) ([]*rules.Rule, error)
	DisableRule(ctx context.Context, guildID, name string) error
	EnableRule(ctx context.Context, guildID, name string) error
	DeleteRule(ctx context.Context, guildID, name string) error
}

// GrantPurger снимает все гранты правила (*grants.Manager в проде).
type GrantPurger interface {
	PurgeRule(ctx context.Context, guildID, ruleName string) (grants.PurgeResult, error)
}

// GrantCounter считает гранты правила (*grants.Repository в проде).
type GrantCounter interface {
	CountByRule(ctx context.Context, guildID, ruleName string) (int, error)
}

// RuleView - строка списка правил.
type RuleView struct {
	Rule   *rules.Rule
	Grants int
}

// Outcome - итог подтверждённого действия.
type Outcome struct {
	Session *Session
	Purge   grants.PurgeResult
}

// Service - операции администратора.
type Service struct {
	rules    RuleService
	purger   GrantPurger
	counter  GrantCounter
	sessions *Sessions
}

// NewService создаёт сервис админки.
func NewService(rules RuleService, purger GrantPurger, counter GrantCounter, sessions *Sessions) *Service {
	return &Service{rules: rules, purger: purger, counter: counter, sessions: sessions}
}

// Create разбирает аргументы и создаёт правило.
func (s *Service) Create(ctx context.Context, guildID, actorID string, args []string) (*rules.Rule, error) {
	rule, err := ParseCreate(guildID, actorID, args)
	if err != nil {
		return nil, err
	}
	if err := s.rules.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// List возвращает правила гильдии с числом выданных ролей.
func (s *Service) List(ctx context.Context, guildID string) ([]RuleView, error) {
	list, err := s.rules.ListRules(ctx, guildID)
	if err != nil {
		return nil, err
	}
	out := make([]RuleView, 0, len(list))
	for _, r := range list {
		n, err := s.counter.CountByRule(ctx, guildID, r.Name)
		if err != nil {
			log.WithError(err).WithField("rule", r.Name).Warn("Не удалось посчитать гранты правила")
			n = -1
		}
		out = append(out, RuleView{Rule: r, Grants: n})
	}
	return out, nil
}

// Disable выключает правило.
func (s *Service) Disable(ctx context.Context, guildID, name string) error {
	return s.rules.DisableRule(ctx, guildID, name)
}

// Enable включает правило.
func (s *Service) Enable(ctx context.Context, guildID, name string) error {
	return s.rules.EnableRule(ctx, guildID, name)
}

// RequestDelete открывает сессию подтверждения удаления.
func (s *Service) RequestDelete(ctx context.Context, guildID, userID, name string) (*Session, error) {
	return s.request(ctx, ActionDelete, guildID, userID, name)
}

// RequestPurge открывает сессию подтверждения снятия всех ролей правила.
// Правило могло быть уже удалено: delete гранты не трогает, поэтому purge
// доступен, пока у имени правила остались гранты.
func (s *Service) RequestPurge(ctx context.Context, guildID, userID, name string) (*Session, error) {
	_, err := s.rules.GetRule(ctx, guildID, name)
	if errors.Is(err, common.ErrRuleNotFound) {
		n, cerr := s.counter.CountByRule(ctx, guildID, name)
		if cerr != nil {
			return nil, cerr
		}
		if n == 0 {
			return nil, err
		}
		return s.sessions.Open(ActionPurge, guildID, name, userID), nil
	}
	if err != nil {
		return nil, err
	}
	return s.sessions.Open(ActionPurge, guildID, name, userID), nil
}

func (s *Service) request(ctx context.Context, action Action, guildID, userID, name string) (*Session, error) {
	if _, err := s.rules.GetRule(ctx, guildID, name); err != nil {
		return nil, err
	}
	return s.sessions.Open(action, guildID, name, userID), nil
}

// Confirm выполняет действие по коду подтверждения.
func (s *Service) Confirm(ctx context.Context, guildID, userID, code string) (*Outcome, error) {
	sess, err := s.sessions.Take(code, guildID, userID)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Session: sess}
	switch sess.Action {
	case ActionDelete:
		if err := s.rules.DeleteRule(ctx, guildID, sess.RuleName); err != nil {
			return nil, err
		}
	case ActionPurge:
		res, err := s.purger.PurgeRule(ctx, guildID, sess.RuleName)
		if err != nil {
			return nil, err
		}
		out.Purge = res
	default:
		return nil, fmt.Errorf("неизвестное действие %q", sess.Action)
	}

	log.WithFields(log.Fields{
		"guild_id": guildID,
		"user_id":  userID,
		"rule":     sess.RuleName,
		"action":   sess.Action,
	}).Info("Действие администратора подтверждено")
	return out, nil
}
