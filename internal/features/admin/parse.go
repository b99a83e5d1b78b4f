// Package admin - parse.go разбирает аргументы команды create.
//
// Формат:
//
//	create <имя> <@роль|id> any [длительность]
//	create <имя> <@роль|id> specific <id сообщения> <эмодзи> [длительность]
//	create <имя> <@роль|id> threshold <эмодзи> <кол-во> [длительность]
//	create <имя> <@роль|id> reputation <мин. репутация> [длительность]
//	create <имя> <@роль|id> antiquity <стаж> [длительность]
//
// Длительность (30m, 12h, 7d, 2w) делает роль live: она снимается, когда
// условие перестаёт выполняться или истекает срок.
package admin

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"serotonyl.ru/discord-autorole/internal/common"
	"serotonyl.ru/discord-autorole/internal/features/rules"
)

var roleMentionRegex = regexp.MustCompile(`^<@&(\d{17,20})>$`)

// ParseRoleID принимает упоминание роли <@&id> или голый id.
func ParseRoleID(raw string) (string, error) {
	if m := roleMentionRegex.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	if common.IsSnowflake(raw) {
		return raw, nil
	}
	return "", fmt.Errorf("%w: роль %q", common.ErrInvalidSnowflake, raw)
}

// ParseCreate собирает правило из аргументов после слова create.
func ParseCreate(guildID, actorID string, args []string) (*rules.Rule, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("%w: create <имя> <@роль> <триггер> [аргументы] [длительность]", common.ErrInvalidTrigger)
	}

	name := strings.ToLower(args[0])
	roleID, err := ParseRoleID(args[1])
	if err != nil {
		return nil, err
	}

	trigger, rest, err := parseTrigger(strings.ToLower(args[2]), args[3:])
	if err != nil {
		return nil, err
	}

	rule := &rules.Rule{
		GuildID:   guildID,
		Name:      name,
		RoleID:    roleID,
		Enabled:   true,
		Trigger:   trigger,
		CreatedBy: actorID,
	}

	switch len(rest) {
	case 0:
	case 1:
		d, err := common.ParseDuration(rest[0])
		if err != nil {
			return nil, err
		}
		ms := d.Milliseconds()
		rule.DurationMs = &ms
	default:
		return nil, fmt.Errorf("%w: лишние аргументы %v", common.ErrInvalidTrigger, rest[1:])
	}

	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

// parseTrigger разбирает триггер и возвращает оставшиеся аргументы.
func parseTrigger(kind string, args []string) (rules.Trigger, []string, error) {
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%w: %s требует %d аргумент(а)", common.ErrInvalidTrigger, kind, n)
		}
		return nil
	}

	switch kind {
	case "any":
		return rules.MessageReactAny{}, args, nil

	case "specific":
		if err := need(2); err != nil {
			return nil, nil, err
		}
		emoji, err := rules.NormalizeEmojiKey(args[1])
		if err != nil {
			return nil, nil, err
		}
		return rules.ReactSpecific{MessageID: args[0], EmojiKey: emoji}, args[2:], nil

	case "threshold":
		if err := need(2); err != nil {
			return nil, nil, err
		}
		emoji, err := rules.NormalizeEmojiKey(args[0])
		if err != nil {
			return nil, nil, err
		}
		count, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: count %q", common.ErrInvalidTrigger, args[1])
		}
		return rules.ReactedThreshold{EmojiKey: emoji, Count: count}, args[2:], nil

	case "reputation":
		if err := need(1); err != nil {
			return nil, nil, err
		}
		minRep, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: minRep %q", common.ErrInvalidTrigger, args[0])
		}
		return rules.ReputationThreshold{MinRep: minRep}, args[1:], nil

	case "antiquity":
		if err := need(1); err != nil {
			return nil, nil, err
		}
		d, err := common.ParseDuration(args[0])
		if err != nil {
			return nil, nil, err
		}
		return rules.AntiquityThreshold{DurationMs: d.Milliseconds()}, args[1:], nil

	default:
		return nil, nil, fmt.Errorf("%w: неизвестный триггер %q (any, specific, threshold, reputation, antiquity)", common.ErrInvalidTrigger, kind)
	}
}
