// Package rules управляет правилами автоматической выдачи ролей.
// models.go описывает правило и его триггер (tagged union).
package rules

import (
	"encoding/json"
	"fmt"
	"time"

	"serotonyl.ru/discord-autorole/internal/common"
)

// TriggerType - дискриминант триггера, хранится в колонке trigger_type.
type TriggerType string

// Возможные типы триггеров
const (
	TriggerMessageReactAny     TriggerType = "MESSAGE_REACT_ANY"    // Любая реакция на любое сообщение
	TriggerReactSpecific       TriggerType = "REACT_SPECIFIC"       // Конкретный эмодзи на конкретном сообщении
	TriggerReactedThreshold    TriggerType = "REACTED_THRESHOLD"    // Автор сообщения набрал N реакций
	TriggerReputationThreshold TriggerType = "REPUTATION_THRESHOLD" // Репутация не ниже порога
	TriggerAntiquityThreshold  TriggerType = "ANTIQUITY_THRESHOLD"  // Стаж в гильдии не меньше порога
)

// Trigger - условие правила. Каждый вариант несёт только свои аргументы.
// Реализации: MessageReactAny, ReactSpecific, ReactedThreshold,
// ReputationThreshold, AntiquityThreshold.
type Trigger interface {
	Type() TriggerType
	Validate() error
	isTrigger()
}

// MessageReactAny - любая реакция на любое сообщение выдаёт роль реагирующему.
type MessageReactAny struct{}

// ReactSpecific - реакция EmojiKey на сообщение MessageID.
type ReactSpecific struct {
	MessageID string `json:"messageId"`
	EmojiKey  string `json:"emojiKey"`
}

// ReactedThreshold - автор сообщения получает роль, когда EmojiKey
// на его сообщении ставят Count разных пользователей.
type ReactedThreshold struct {
	EmojiKey string `json:"emojiKey"`
	Count    int    `json:"count"`
}

// ReputationThreshold - репутация пользователя достигла MinRep.
type ReputationThreshold struct {
	MinRep int `json:"minRep"`
}

// AntiquityThreshold - участник состоит в гильдии не меньше DurationMs.
type AntiquityThreshold struct {
	DurationMs int64 `json:"durationMs"`
}

func (MessageReactAny) Type() TriggerType     { return TriggerMessageReactAny }
func (ReactSpecific) Type() TriggerType       { return TriggerReactSpecific }
func (ReactedThreshold) Type() TriggerType    { return TriggerReactedThreshold }
func (ReputationThreshold) Type() TriggerType { return TriggerReputationThreshold }
func (AntiquityThreshold) Type() TriggerType  { return TriggerAntiquityThreshold }

func (MessageReactAny) isTrigger()     {}
func (ReactSpecific) isTrigger()       {}
func (ReactedThreshold) isTrigger()    {}
func (ReputationThreshold) isTrigger() {}
func (AntiquityThreshold) isTrigger()  {}

// Tenure возвращает порог стажа.
func (t AntiquityThreshold) Tenure() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

// Rule - правило выдачи роли в одной гильдии.
// Имя уникально в пределах гильдии. Выключение правила не трогает выданные гранты.
type Rule struct {
	GuildID    string    `db:"guild_id"`
	Name       string    `db:"name"`
	RoleID     string    `db:"role_id"`
	Enabled    bool      `db:"enabled"`
	DurationMs *int64    `db:"duration_ms"` // nil = постоянная роль, >0 = live-роль с истечением
	Trigger    Trigger   `db:"-"`
	CreatedBy  string    `db:"created_by"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// IsLive сообщает, зависит ли выданная роль от условия (есть длительность).
func (r *Rule) IsLive() bool {
	return r.DurationMs != nil
}

// Duration возвращает длительность live-гранта.
func (r *Rule) Duration() (time.Duration, bool) {
	if r.DurationMs == nil {
		return 0, false
	}
	return time.Duration(*r.DurationMs) * time.Millisecond, true
}

// EncodeTrigger превращает триггер в пару (тип, JSON-аргументы) для хранения.
func EncodeTrigger(t Trigger) (TriggerType, []byte, error) {
	if t == nil {
		return "", nil, fmt.Errorf("%w: пустой триггер", common.ErrInvalidTrigger)
	}
	args, err := json.Marshal(t)
	if err != nil {
		return "", nil, fmt.Errorf("ошибка сериализации триггера: %w", err)
	}
	return t.Type(), args, nil
}

// DecodeTrigger восстанавливает триггер по типу и JSON-аргументам.
func DecodeTrigger(typ TriggerType, args []byte) (Trigger, error) {
	if len(args) == 0 {
		args = []byte("{}")
	}
	var (
		t   Trigger
		err error
	)
	switch typ {
	case TriggerMessageReactAny:
		t = MessageReactAny{}
	case TriggerReactSpecific:
		var v ReactSpecific
		err = json.Unmarshal(args, &v)
		t = v
	case TriggerReactedThreshold:
		var v ReactedThreshold
		err = json.Unmarshal(args, &v)
		t = v
	case TriggerReputationThreshold:
		var v ReputationThreshold
		err = json.Unmarshal(args, &v)
		t = v
	case TriggerAntiquityThreshold:
		var v AntiquityThreshold
		err = json.Unmarshal(args, &v)
		t = v
	default:
		return nil, fmt.Errorf("%w: неизвестный тип %q", common.ErrInvalidTrigger, typ)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: аргументы %s: %v", common.ErrInvalidTrigger, typ, err)
	}
	return t, nil
}
