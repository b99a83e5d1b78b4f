// Package autorole - engine.go обрабатывает события реакций и изменения репутации.
//
// Все ошибки горячего пути логируются и дальше не идут: в чат движок ничего
// не пишет. Пропущенная выдача догонится следующим подходящим событием,
// пропущенное снятие live-гранта - проверкой истёкших грантов.
package autorole

import (
	"context"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/discord-autorole/internal/features/grants"
	"serotonyl.ru/discord-autorole/internal/features/rules"
	"serotonyl.ru/discord-autorole/internal/features/tally"
)

// RuleIndex - кэш правил (*rules.Cache в проде).
type RuleIndex interface {
	Get(guildID string) *rules.Snapshot
	LoadAll(ctx context.Context, guildIDs []string) int
	Load(ctx context.Context, guildID string) (*rules.Snapshot, error)
	Evict(guildID string)
}

// GrantManager выдаёт и снимает роли (*grants.Manager в проде).
type GrantManager interface {
	GrantByRule(ctx context.Context, rule *rules.Rule, userID, reason string) (bool, error)
	RevokeByRule(ctx context.Context, rule *rules.Rule, userID, reason string, grantType grants.GrantType) (bool, error)
	RevokeGrant(ctx context.Context, g *grants.Grant, reason string) error
	RevokeAllLive(ctx context.Context, guildID, ruleName, reason string) (int, error)
	ListByRule(ctx context.Context, guildID, ruleName string) ([]*grants.Grant, error)
}

// Tracker ведёт счётчики и присутствие (*tally.Tracker в проде).
type Tracker interface {
	Increment(ctx context.Context, key tally.Key, authorID string) (*tally.Change, error)
	Decrement(ctx context.Context, key tally.Key) (*tally.Change, error)
	Mark(ctx context.Context, e tally.PresenceEntry) (bool, error)
	Clear(ctx context.Context, e tally.PresenceEntry) (bool, error)
	Drain(ctx context.Context, guildID string, messageIDs ...string) ([]tally.PresenceEntry, []tally.ReactionTally, error)
}

// AuthorResolver находит автора сообщения. "" без ошибки - автор неизвестен.
type AuthorResolver interface {
	ResolveMessageAuthor(ctx context.Context, guildID, channelID, messageID string) (string, error)
}

// FeatureGate решает, включены ли автороли в гильдии.
type FeatureGate interface {
	IsFeatureEnabled(guildID string) bool
}

// Engine - обработчик событий реакций и репутации.
type Engine struct {
	cache    RuleIndex
	grants   GrantManager
	tracker  Tracker
	resolver AuthorResolver
	gate     FeatureGate
}

// NewEngine создаёт движок.
func NewEngine(cache RuleIndex, grants GrantManager, tracker Tracker, resolver AuthorResolver, gate FeatureGate) *Engine {
	return &Engine{
		cache:    cache,
		grants:   grants,
		tracker:  tracker,
		resolver: resolver,
		gate:     gate,
	}
}

// HandleReady загружает правила всех гильдий бота. Вызывается на старте процесса.
func (e *Engine) HandleReady(ctx context.Context, guildIDs []string) {
	loaded := e.cache.LoadAll(ctx, guildIDs)
	log.WithFields(log.Fields{
		"guilds": len(guildIDs),
		"loaded": loaded,
	}).Info("Правила авторолей загружены")
}

// HandleGuildAvailable загружает правила гильдии (бот добавлен или гильдия стала доступна).
func (e *Engine) HandleGuildAvailable(ctx context.Context, guildID string) {
	if _, err := e.cache.Load(ctx, guildID); err != nil {
		log.WithError(err).WithField("guild_id", guildID).Error("Не удалось загрузить правила гильдии")
	}
}

// HandleGuildRemoved забывает гильдию: бота из неё убрали.
func (e *Engine) HandleGuildRemoved(guildID string) {
	e.cache.Evict(guildID)
}

// HandleReactionAdded обрабатывает поставленную реакцию.
func (e *Engine) HandleReactionAdded(ctx context.Context, ev ReactionAdded) {
	if ev.IsBot || !e.gate.IsFeatureEnabled(ev.GuildID) {
		return
	}
	m := MatchReactionAdded(e.cache.Get(ev.GuildID), ev)
	if m.Empty() {
		return
	}

	logger := log.WithFields(log.Fields{
		"guild_id":   ev.GuildID,
		"message_id": ev.MessageID,
		"user_id":    ev.UserID,
		"emoji":      ev.EmojiKey,
	})

	for _, r := range m.Any {
		e.grant(ctx, r, ev.UserID, "reaction")
	}

	if len(m.Specific) > 0 {
		entry := tally.PresenceEntry{
			GuildID:   ev.GuildID,
			MessageID: ev.MessageID,
			EmojiKey:  ev.EmojiKey,
			UserID:    ev.UserID,
		}
		// Без отметки роль всё равно выдаём: точное снятие потеряется,
		// но грант останется в хранилище и его снимет очистка или истечение.
		if _, err := e.tracker.Mark(ctx, entry); err != nil {
			logger.WithError(err).Warn("Не удалось отметить присутствие")
		}
		for _, r := range m.Specific {
			e.grant(ctx, r, ev.UserID, "specific reaction")
		}
	}

	if len(m.Threshold) > 0 {
		e.countReaction(ctx, ev, m.Threshold, logger)
	}
}

func (e *Engine) countReaction(ctx context.Context, ev ReactionAdded, candidates []*rules.Rule, logger *log.Entry) {
	author, err := e.resolver.ResolveMessageAuthor(ctx, ev.GuildID, ev.ChannelID, ev.MessageID)
	if err != nil {
		logger.WithError(err).Warn("Не удалось определить автора сообщения, порог пропущен")
		return
	}
	if author == "" {
		logger.Debug("Автор сообщения неизвестен, порог пропущен")
		return
	}

	key := tally.Key{GuildID: ev.GuildID, MessageID: ev.MessageID, EmojiKey: ev.EmojiKey}
	change, err := e.tracker.Increment(ctx, key, author)
	if err != nil {
		logger.WithError(err).Error("Ошибка инкремента счётчика реакций")
		return
	}

	for _, r := range candidates {
		target, ok := thresholdCount(r)
		if !ok || !change.ReachedOnIncrement(target) {
			continue
		}
		e.grant(ctx, r, change.Tally.AuthorID, "reaction threshold")
	}
}

// HandleReactionRemoved обрабатывает убранную реакцию.
func (e *Engine) HandleReactionRemoved(ctx context.Context, ev ReactionRemoved) {
	if ev.IsBot || !e.gate.IsFeatureEnabled(ev.GuildID) {
		return
	}
	m := MatchReactionRemoved(e.cache.Get(ev.GuildID), ev)
	if m.Empty() {
		return
	}

	logger := log.WithFields(log.Fields{
		"guild_id":   ev.GuildID,
		"message_id": ev.MessageID,
		"user_id":    ev.UserID,
		"emoji":      ev.EmojiKey,
	})

	if len(m.Specific) > 0 {
		entry := tally.PresenceEntry{
			GuildID:   ev.GuildID,
			MessageID: ev.MessageID,
			EmojiKey:  ev.EmojiKey,
			UserID:    ev.UserID,
		}
		if _, err := e.tracker.Clear(ctx, entry); err != nil {
			logger.WithError(err).Warn("Не удалось снять отметку присутствия")
		}
		// Снимаем даже без отметки: после рестарта присутствия может не быть,
		// а RevokeByRule без гранта ничего не делает.
		for _, r := range LiveOnly(m.Specific) {
			e.revoke(ctx, r, ev.UserID, "specific reaction removed")
		}
	}

	if len(m.Threshold) > 0 {
		key := tally.Key{GuildID: ev.GuildID, MessageID: ev.MessageID, EmojiKey: ev.EmojiKey}
		change, err := e.tracker.Decrement(ctx, key)
		if err != nil {
			logger.WithError(err).Error("Ошибка декремента счётчика реакций")
			return
		}
		if change == nil {
			return
		}
		for _, r := range LiveOnly(m.Threshold) {
			target, ok := thresholdCount(r)
			if !ok || !change.DroppedBelow(target) {
				continue
			}
			e.revoke(ctx, r, change.Tally.AuthorID, "reaction threshold lost")
		}
	}
}

// OnScoreChanged пересчитывает правила REPUTATION_THRESHOLD для пользователя.
func (e *Engine) OnScoreChanged(ctx context.Context, guildID, userID string, prev, score int) {
	if !e.gate.IsFeatureEnabled(guildID) {
		return
	}
	for _, r := range e.cache.Get(guildID).Reputation {
		grant, revoke := reputationCrossing(r, prev, score)
		switch {
		case grant:
			e.grant(ctx, r, userID, "reputation")
		case revoke && r.IsLive():
			e.revoke(ctx, r, userID, "reputation lost")
		}
	}
}

func (e *Engine) grant(ctx context.Context, r *rules.Rule, userID, reason string) {
	if _, err := e.grants.GrantByRule(ctx, r, userID, reason); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"guild_id": r.GuildID,
			"rule":     r.Name,
			"user_id":  userID,
		}).Warn("Роль по правилу не выдана")
	}
}

func (e *Engine) revoke(ctx context.Context, r *rules.Rule, userID, reason string) {
	if _, err := e.grants.RevokeByRule(ctx, r, userID, reason, grants.TypeLive); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"guild_id": r.GuildID,
			"rule":     r.Name,
			"user_id":  userID,
		}).Warn("Роль по правилу не снята")
	}
}
