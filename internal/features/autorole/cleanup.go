// Package autorole - cleanup.go убирает состояние, когда пропадают сущности,
// от которых зависят правила: сообщения и роли.
package autorole

import (
	"context"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/discord-autorole/internal/features/grants"
	"serotonyl.ru/discord-autorole/internal/features/rules"
	"serotonyl.ru/discord-autorole/internal/features/tally"
)

// RuleMutator - операции над правилами, нужные очистке (*rules.Service в проде).
type RuleMutator interface {
	DisableReactSpecificByMessage(ctx context.Context, guildID, messageID string) ([]*rules.Rule, error)
	DisableByRole(ctx context.Context, guildID, roleID string) ([]string, error)
}

// Cleanup - координатор очистки.
type Cleanup struct {
	cache   RuleIndex
	rules   RuleMutator
	grants  GrantManager
	tracker Tracker
}

// NewCleanup создаёт координатор очистки.
func NewCleanup(cache RuleIndex, rules RuleMutator, grants GrantManager, tracker Tracker) *Cleanup {
	return &Cleanup{cache: cache, rules: rules, grants: grants, tracker: tracker}
}

// HandleMessageDeleted очищает всё, что связано с удалённым сообщением.
func (c *Cleanup) HandleMessageDeleted(ctx context.Context, ev MessageDeleted) {
	c.messagesGone(ctx, ev.GuildID, []string{ev.MessageID})
}

// HandleMessagesBulkDeleted очищает пачку удалённых сообщений.
func (c *Cleanup) HandleMessagesBulkDeleted(ctx context.Context, ev MessagesBulkDeleted) {
	if len(ev.MessageIDs) == 0 {
		return
	}
	c.messagesGone(ctx, ev.GuildID, ev.MessageIDs)
}

// HandleReactionsCleared снимает live-гранты, державшиеся на реакциях сообщения.
// Правила не выключаются: сообщение живо и на него снова можно реагировать.
func (c *Cleanup) HandleReactionsCleared(ctx context.Context, ev ReactionsCleared) {
	snap := c.cache.Get(ev.GuildID)
	presence, tallies, err := c.tracker.Drain(ctx, ev.GuildID, ev.MessageID)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"guild_id":   ev.GuildID,
			"message_id": ev.MessageID,
		}).Error("Не удалось очистить реакции сообщения")
	}

	for _, p := range presence {
		for _, r := range LiveOnly(snap.ReactSpecific[rules.SpecificKey(p.MessageID, p.EmojiKey)]) {
			c.revoke(ctx, r, p.UserID, "reactions cleared")
		}
	}
	c.revokeTallies(ctx, snap, tallies, "reactions cleared")
}

// HandleRoleDeleted выключает все правила, которые выдавали удалённую роль.
func (c *Cleanup) HandleRoleDeleted(ctx context.Context, ev RoleDeleted) {
	names, err := c.rules.DisableByRole(ctx, ev.GuildID, ev.RoleID)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"guild_id": ev.GuildID,
			"role_id":  ev.RoleID,
		}).Error("Не удалось выключить правила удалённой роли")
		return
	}
	if len(names) > 0 {
		log.WithFields(log.Fields{
			"guild_id": ev.GuildID,
			"role_id":  ev.RoleID,
			"rules":    names,
		}).Info("Роль удалена, правила выключены")
	}
}

func (c *Cleanup) messagesGone(ctx context.Context, guildID string, messageIDs []string) {
	// Снимок берём до выключения правил: пороговые правила в нём нужны для счётчиков
	snap := c.cache.Get(guildID)

	presence, tallies, err := c.tracker.Drain(ctx, guildID, messageIDs...)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"guild_id": guildID,
			"messages": len(messageIDs),
		}).Error("Не удалось очистить реакции удалённых сообщений")
	}

	// Правила REACT_SPECIFIC, привязанные к сообщениям, больше никогда не сработают
	bound := make(map[string][]*rules.Rule) // messageId:emojiKey → правила
	for _, id := range messageIDs {
		list, err := c.rules.DisableReactSpecificByMessage(ctx, guildID, id)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"guild_id":   guildID,
				"message_id": id,
			}).Error("Не удалось выключить правила удалённого сообщения")
			continue
		}
		for _, r := range list {
			t, ok := r.Trigger.(rules.ReactSpecific)
			if !ok {
				continue
			}
			key := rules.SpecificKey(t.MessageID, t.EmojiKey)
			bound[key] = append(bound[key], r)
		}
	}

	for _, p := range presence {
		for _, r := range LiveOnly(bound[rules.SpecificKey(p.MessageID, p.EmojiKey)]) {
			c.revoke(ctx, r, p.UserID, "message deleted")
		}
	}

	// Присутствие могло потеряться (например, гранты выданы до рестарта),
	// поэтому добираем live-гранты выключенных правил прямо из хранилища.
	for _, list := range bound {
		for _, r := range LiveOnly(list) {
			n, err := c.grants.RevokeAllLive(ctx, guildID, r.Name, "message deleted")
			if err != nil {
				log.WithError(err).WithFields(log.Fields{
					"guild_id": guildID,
					"rule":     r.Name,
				}).Error("Не удалось снять гранты правила удалённого сообщения")
				continue
			}
			if n > 0 {
				log.WithFields(log.Fields{
					"guild_id": guildID,
					"rule":     r.Name,
					"revoked":  n,
				}).Info("Сняты гранты правила удалённого сообщения")
			}
		}
	}

	c.revokeTallies(ctx, snap, tallies, "message deleted")
}

// revokeTallies снимает у автора live-гранты пороговых правил, которые держались
// на очищенном счётчике (счётчик был не ниже порога).
func (c *Cleanup) revokeTallies(ctx context.Context, snap *rules.Snapshot, tallies []tally.ReactionTally, reason string) {
	for _, t := range tallies {
		for _, r := range LiveOnly(snap.ReactedByEmoji[t.EmojiKey]) {
			target, ok := thresholdCount(r)
			if !ok || t.Count < target {
				continue
			}
			c.revoke(ctx, r, t.AuthorID, reason)
		}
	}
}

func (c *Cleanup) revoke(ctx context.Context, r *rules.Rule, userID, reason string) {
	if _, err := c.grants.RevokeByRule(ctx, r, userID, reason, grants.TypeLive); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"guild_id": r.GuildID,
			"rule":     r.Name,
			"user_id":  userID,
		}).Warn("Очистка: роль не снята")
	}
}
