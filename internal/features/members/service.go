// Package members - service.go постранично получает участников гильдии от платформы.
package members

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// PageSize - максимум участников за один запрос к платформе.
const PageSize = 1000

// Source отдаёт участников постранично: after - ID последнего участника
// предыдущей страницы ("" для первой). Пустая или неполная страница - конец списка.
type Source interface {
	ListMembers(ctx context.Context, guildID, after string, limit int) ([]*Member, error)
}

// Service читает участников гильдии.
type Service struct {
	source Source
}

// NewService создаёт сервис участников.
func NewService(source Source) *Service {
	return &Service{source: source}
}

// ForEach обходит всех участников гильдии страница за страницей.
// Если fn возвращает ошибку, обход прекращается с ней.
func (s *Service) ForEach(ctx context.Context, guildID string, fn func(*Member) error) error {
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.source.ListMembers(ctx, guildID, after, PageSize)
		if err != nil {
			return fmt.Errorf("ошибка получения участников гильдии %s: %w", guildID, err)
		}
		for _, m := range page {
			if err := fn(m); err != nil {
				return err
			}
		}
		if len(page) < PageSize {
			return nil
		}
		last := page[len(page)-1].UserID
		if last == after {
			log.WithField("guild_id", guildID).Warn("Платформа вернула ту же страницу участников, прерываем обход")
			return nil
		}
		after = last
	}
}

// List возвращает всех участников гильдии, кроме ботов.
func (s *Service) List(ctx context.Context, guildID string) ([]*Member, error) {
	var out []*Member
	err := s.ForEach(ctx, guildID, func(m *Member) error {
		if !m.IsBot {
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
