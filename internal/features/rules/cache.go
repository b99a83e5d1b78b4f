// Package rules - cache.go держит в памяти индекс включённых правил по гильдиям.
//
// Жизненный цикл: Load на старте (Ready/GuildCreate), Refresh после каждой
// мутации правил, Evict когда бота убрали из гильдии. Снимок гильдии никогда
// не меняется на месте: Refresh строит новый и подменяет указатель целиком,
// поэтому читатели не видят наполовину обновлённый индекс.
package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Snapshot - неизменяемый индекс включённых правил одной гильдии.
type Snapshot struct {
	GuildID        string
	AnyReact       []*Rule            // MESSAGE_REACT_ANY
	ReactSpecific  map[string][]*Rule // messageId:emojiKey → правила
	ReactedByEmoji map[string][]*Rule // emojiKey → правила REACTED_THRESHOLD
	Reputation     []*Rule            // REPUTATION_THRESHOLD
	Antiquity      []*Rule            // ANTIQUITY_THRESHOLD
	LoadedAt       time.Time
}

// SpecificKey - ключ индекса ReactSpecific.
func SpecificKey(messageID, emojiKey string) string {
	return messageID + ":" + emojiKey
}

// BuildSnapshot раскладывает правила гильдии по индексам. Выключенные правила пропускаются.
func BuildSnapshot(guildID string, list []*Rule, now time.Time) *Snapshot {
	s := &Snapshot{
		GuildID:        guildID,
		ReactSpecific:  make(map[string][]*Rule),
		ReactedByEmoji: make(map[string][]*Rule),
		LoadedAt:       now,
	}
	for _, r := range list {
		if r == nil || !r.Enabled || r.GuildID != guildID {
			continue
		}
		switch t := r.Trigger.(type) {
		case MessageReactAny:
			s.AnyReact = append(s.AnyReact, r)
		case ReactSpecific:
			key := SpecificKey(t.MessageID, t.EmojiKey)
			s.ReactSpecific[key] = append(s.ReactSpecific[key], r)
		case ReactedThreshold:
			s.ReactedByEmoji[t.EmojiKey] = append(s.ReactedByEmoji[t.EmojiKey], r)
		case ReputationThreshold:
			s.Reputation = append(s.Reputation, r)
		case AntiquityThreshold:
			s.Antiquity = append(s.Antiquity, r)
		}
	}
	return s
}

// Empty сообщает, что в гильдии нет ни одного включённого правила.
func (s *Snapshot) Empty() bool {
	return len(s.AnyReact) == 0 && len(s.ReactSpecific) == 0 && len(s.ReactedByEmoji) == 0 &&
		len(s.Reputation) == 0 && len(s.Antiquity) == 0
}

// Loader - источник правил для кэша (Repository в проде).
type Loader interface {
	ListEnabledByGuild(ctx context.Context, guildID string) ([]*Rule, error)
}

// Cache - реестр снимков по гильдиям. Создаётся в точке сборки приложения
// и передаётся явно; глобального состояния нет.
type Cache struct {
	loader Loader
	now    func() time.Time
	guilds sync.Map // guildID → *Snapshot
}

// NewCache создаёт пустой кэш правил.
func NewCache(loader Loader) *Cache {
	return &Cache{loader: loader, now: time.Now}
}

// Get возвращает текущий снимок гильдии. Не ходит в БД и не блокируется:
// для незагруженной гильдии возвращается пустой снимок.
func (c *Cache) Get(guildID string) *Snapshot {
	if v, ok := c.guilds.Load(guildID); ok {
		return v.(*Snapshot)
	}
	return BuildSnapshot(guildID, nil, time.Time{})
}

// Refresh перечитывает правила гильдии и атомарно подменяет снимок.
// При ошибке старый снимок остаётся на месте.
func (c *Cache) Refresh(ctx context.Context, guildID string) (*Snapshot, error) {
	list, err := c.loader.ListEnabledByGuild(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки правил гильдии %s: %w", guildID, err)
	}
	snap := BuildSnapshot(guildID, list, c.now())
	c.guilds.Store(guildID, snap)

	log.WithFields(log.Fields{
		"guild_id": guildID,
		"rules":    len(list),
	}).Debug("Кэш правил обновлён")
	return snap, nil
}

// Load - первичная загрузка гильдии. То же самое, что Refresh.
func (c *Cache) Load(ctx context.Context, guildID string) (*Snapshot, error) {
	return c.Refresh(ctx, guildID)
}

// LoadAll загружает несколько гильдий; ошибки по отдельным гильдиям логируются.
func (c *Cache) LoadAll(ctx context.Context, guildIDs []string) int {
	loaded := 0
	for _, id := range guildIDs {
		if _, err := c.Load(ctx, id); err != nil {
			log.WithError(err).WithField("guild_id", id).Error("Не удалось загрузить правила гильдии")
			continue
		}
		loaded++
	}
	return loaded
}

// Evict убирает гильдию из кэша.
func (c *Cache) Evict(guildID string) {
	c.guilds.Delete(guildID)
}
