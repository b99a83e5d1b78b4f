// Package members даёт взгляд на участников гильдии, нужный правилам стажа.
// Источник правды - сама платформа: участники не хранятся в БД.
// models.go описывает участника.
package members

import "time"

// Member - участник гильдии.
type Member struct {
	GuildID  string
	UserID   string
	JoinedAt time.Time // Когда (пере)вступил в гильдию
	IsBot    bool
}

// Tenure возвращает стаж участника на момент now.
func (m *Member) Tenure(now time.Time) time.Duration {
	if m.JoinedAt.IsZero() || now.Before(m.JoinedAt) {
		return 0
	}
	return now.Sub(m.JoinedAt)
}

// Qualifies сообщает, что участник не бот и его стаж не меньше minTenure.
func (m *Member) Qualifies(minTenure time.Duration, now time.Time) bool {
	return !m.IsBot && !m.JoinedAt.IsZero() && m.Tenure(now) >= minTenure
}
