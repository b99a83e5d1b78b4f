// Package autorole - matcher.go сопоставляет события реакций с правилами.
// Здесь только чистые функции над снимком кэша: без I/O и без блокировок.
package autorole

import (
	"serotonyl.ru/discord-autorole/internal/features/rules"
)

// ReactionMatch - правила-кандидаты для одного события реакции.
type ReactionMatch struct {
	Any       []*rules.Rule // MESSAGE_REACT_ANY: цель реагирующий
	Specific  []*rules.Rule // REACT_SPECIFIC: цель реагирующий
	Threshold []*rules.Rule // REACTED_THRESHOLD: цель автор сообщения
}

// Empty сообщает, что ни одно правило не подошло.
func (m ReactionMatch) Empty() bool {
	return len(m.Any) == 0 && len(m.Specific) == 0 && len(m.Threshold) == 0
}

// MatchReactionAdded подбирает правила для поставленной реакции.
// Реакции ботов не матчатся.
func MatchReactionAdded(snap *rules.Snapshot, ev ReactionAdded) ReactionMatch {
	if ev.IsBot || snap == nil || snap.Empty() {
		return ReactionMatch{}
	}
	return ReactionMatch{
		Any:       snap.AnyReact,
		Specific:  snap.ReactSpecific[rules.SpecificKey(ev.MessageID, ev.EmojiKey)],
		Threshold: snap.ReactedByEmoji[ev.EmojiKey],
	}
}

// MatchReactionRemoved подбирает правила для убранной реакции.
//
// Specific и Threshold возвращаются целиком: присутствие и счётчик надо
// вести для всех правил, иначе счётчик разойдётся с реальностью. Снимать
// роль можно только по live-правилам, их отбирает LiveOnly.
// MESSAGE_REACT_ANY на снятие не реагирует: у пользователя могут остаться
// другие реакции, такой live-грант снимается по истечении срока.
func MatchReactionRemoved(snap *rules.Snapshot, ev ReactionRemoved) ReactionMatch {
	if ev.IsBot || snap == nil || snap.Empty() {
		return ReactionMatch{}
	}
	return ReactionMatch{
		Specific:  snap.ReactSpecific[rules.SpecificKey(ev.MessageID, ev.EmojiKey)],
		Threshold: snap.ReactedByEmoji[ev.EmojiKey],
	}
}

// LiveOnly оставляет правила с длительностью.
func LiveOnly(list []*rules.Rule) []*rules.Rule {
	var out []*rules.Rule
	for _, r := range list {
		if r.IsLive() {
			out = append(out, r)
		}
	}
	return out
}

// thresholdCount достаёт порог правила REACTED_THRESHOLD.
func thresholdCount(r *rules.Rule) (int, bool) {
	t, ok := r.Trigger.(rules.ReactedThreshold)
	if !ok {
		return 0, false
	}
	return t.Count, true
}

// reputationCrossing решает, что делать с правилом репутации при смене счёта:
// выдать (score >= minRep) или снять (спуск через порог).
func reputationCrossing(r *rules.Rule, prev, score int) (grant, revoke bool) {
	t, ok := r.Trigger.(rules.ReputationThreshold)
	if !ok {
		return false, false
	}
	if score >= t.MinRep {
		return true, false
	}
	return false, prev >= t.MinRep
}
