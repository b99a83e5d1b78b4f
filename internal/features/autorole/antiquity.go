// Package autorole - antiquity.go периодически пересчитывает правила стажа.
//
// Проход идемпотентен: выдача без изменений ничего не делает, поэтому
// повторные проходы не выдают роль второй раз. Ошибка по правилу или
// участнику логируется, проход идёт дальше.
package autorole

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/discord-autorole/internal/features/members"
	"serotonyl.ru/discord-autorole/internal/features/rules"
)

// AntiquityRules - источник включённых правил стажа (*rules.Service в проде).
type AntiquityRules interface {
	ListEnabledByType(ctx context.Context, typ rules.TriggerType) ([]*rules.Rule, error)
}

// MemberLister отдаёт участников гильдии (*members.Service в проде).
type MemberLister interface {
	List(ctx context.Context, guildID string) ([]*members.Member, error)
}

// AntiquityResult - итог одного прохода.
type AntiquityResult struct {
	Rules   int
	Issued  int
	Revoked int
	Failed  int
}

// AntiquitySweeper - проверка стажа.
type AntiquitySweeper struct {
	rules   AntiquityRules
	members MemberLister
	grants  GrantManager
	gate    FeatureGate
	now     func() time.Time
}

// NewAntiquitySweeper создаёт проверку стажа.
func NewAntiquitySweeper(rules AntiquityRules, members MemberLister, grants GrantManager, gate FeatureGate) *AntiquitySweeper {
	return &AntiquitySweeper{
		rules:   rules,
		members: members,
		grants:  grants,
		gate:    gate,
		now:     time.Now,
	}
}

// Sweep выполняет один проход по всем включённым правилам стажа.
func (a *AntiquitySweeper) Sweep(ctx context.Context) (AntiquityResult, error) {
	var res AntiquityResult

	list, err := a.rules.ListEnabledByType(ctx, rules.TriggerAntiquityThreshold)
	if err != nil {
		return res, err
	}

	// Участников гильдии берём один раз на проход, даже если правил несколько
	byGuild := make(map[string][]*rules.Rule)
	var order []string
	for _, r := range list {
		if _, ok := byGuild[r.GuildID]; !ok {
			order = append(order, r.GuildID)
		}
		byGuild[r.GuildID] = append(byGuild[r.GuildID], r)
	}

	for _, guildID := range order {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !a.gate.IsFeatureEnabled(guildID) {
			continue
		}

		guildMembers, err := a.members.List(ctx, guildID)
		if err != nil {
			res.Failed += len(byGuild[guildID])
			log.WithError(err).WithField("guild_id", guildID).Warn("Проверка стажа: не удалось получить участников")
			continue
		}

		now := a.now()
		for _, r := range byGuild[guildID] {
			res.Rules++
			a.sweepRule(ctx, r, guildMembers, now, &res)
		}
	}

	return res, nil
}

func (a *AntiquitySweeper) sweepRule(ctx context.Context, r *rules.Rule, list []*members.Member, now time.Time, res *AntiquityResult) {
	t, ok := r.Trigger.(rules.AntiquityThreshold)
	if !ok {
		return
	}
	logger := log.WithFields(log.Fields{"guild_id": r.GuildID, "rule": r.Name})

	qualified := make(map[string]bool)
	for _, m := range list {
		if !m.Qualifies(t.Tenure(), now) {
			continue
		}
		qualified[m.UserID] = true

		granted, err := a.grants.GrantByRule(ctx, r, m.UserID, "antiquity")
		if err != nil {
			res.Failed++
			logger.WithError(err).WithField("user_id", m.UserID).Warn("Проверка стажа: роль не выдана")
			continue
		}
		if granted {
			res.Issued++
		}
	}

	if !r.IsLive() {
		return
	}

	// Live-гранты тех, кто больше не проходит (вышел или перезашёл)
	existing, err := a.grants.ListByRule(ctx, r.GuildID, r.Name)
	if err != nil {
		res.Failed++
		logger.WithError(err).Warn("Проверка стажа: не удалось прочитать гранты")
		return
	}
	for _, g := range existing {
		if !g.IsLive() || qualified[g.UserID] {
			continue
		}
		if err := a.grants.RevokeGrant(ctx, g, "antiquity lost"); err != nil {
			res.Failed++
			logger.WithError(err).WithField("user_id", g.UserID).Warn("Проверка стажа: роль не снята")
			continue
		}
		res.Revoked++
	}
}
