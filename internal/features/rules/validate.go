// Package rules - validate.go проверяет правила перед сохранением.
// В кэш и на горячий путь событий попадают только валидные правила.
package rules

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"serotonyl.ru/discord-autorole/internal/common"
)

var ruleNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// Кастомный эмодзи: упоминание <a:name:id> / <:name:id> или ключ API name:id
var (
	customEmojiMentionRegex = regexp.MustCompile(`^<a?:([A-Za-z0-9_~]{2,32}):(\d{17,20})>$`)
	customEmojiKeyRegex     = regexp.MustCompile(`^([A-Za-z0-9_~]{2,32}):(\d{17,20})$`)
)

// NormalizeEmojiKey приводит эмодзи к ключу, который Discord отдаёт в событиях реакций:
// unicode-эмодзи как есть, кастомный - name:id.
func NormalizeEmojiKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if m := customEmojiMentionRegex.FindStringSubmatch(raw); m != nil {
		return m[1] + ":" + m[2], nil
	}
	if customEmojiKeyRegex.MatchString(raw) {
		return raw, nil
	}
	// Unicode-эмодзи: до 8 рун (модификаторы, ZWJ, keycap), хотя бы одна не-ASCII
	n := utf8.RuneCountInString(raw)
	if n == 0 || n > 8 {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidEmoji, raw)
	}
	hasSymbol := false
	for _, r := range raw {
		switch {
		case r >= 0x80:
			hasSymbol = true
		case r == '#' || r == '*' || (r >= '0' && r <= '9'):
		default:
			return "", fmt.Errorf("%w: %q", common.ErrInvalidEmoji, raw)
		}
	}
	if !hasSymbol {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidEmoji, raw)
	}
	return raw, nil
}

// ValidateName проверяет, что имя правила - слаг.
func ValidateName(name string) error {
	if !ruleNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q", common.ErrInvalidRuleName, name)
	}
	return nil
}

func (MessageReactAny) Validate() error { return nil }

func (t ReactSpecific) Validate() error {
	if !common.IsSnowflake(t.MessageID) {
		return fmt.Errorf("%w: messageId %q", common.ErrInvalidSnowflake, t.MessageID)
	}
	if _, err := NormalizeEmojiKey(t.EmojiKey); err != nil {
		return err
	}
	return nil
}

func (t ReactedThreshold) Validate() error {
	if _, err := NormalizeEmojiKey(t.EmojiKey); err != nil {
		return err
	}
	if t.Count < 1 {
		return fmt.Errorf("%w: count должен быть >= 1", common.ErrInvalidTrigger)
	}
	return nil
}

func (t ReputationThreshold) Validate() error {
	if t.MinRep < 1 {
		return fmt.Errorf("%w: minRep должен быть >= 1", common.ErrInvalidTrigger)
	}
	return nil
}

func (t AntiquityThreshold) Validate() error {
	if t.DurationMs <= 0 {
		return fmt.Errorf("%w: стаж должен быть > 0", common.ErrInvalidDuration)
	}
	return nil
}

// Validate проверяет правило целиком.
func (r *Rule) Validate() error {
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	if !common.IsSnowflake(r.GuildID) {
		return fmt.Errorf("%w: guildId %q", common.ErrInvalidSnowflake, r.GuildID)
	}
	if !common.IsSnowflake(r.RoleID) {
		return fmt.Errorf("%w: roleId %q", common.ErrInvalidSnowflake, r.RoleID)
	}
	if r.DurationMs != nil && *r.DurationMs <= 0 {
		return fmt.Errorf("%w: длительность роли должна быть > 0", common.ErrInvalidDuration)
	}
	if r.Trigger == nil {
		return fmt.Errorf("%w: пустой триггер", common.ErrInvalidTrigger)
	}
	return r.Trigger.Validate()
}
