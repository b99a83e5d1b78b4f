// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: разбор и форматирование длительностей правил,
// русская плюрализация, проверка Discord ID, московское время.
package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Day и Week - единицы, которых нет в пакете time.
const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

// ParseDuration разбирает длительность правила.
// Кроме формата time.ParseDuration понимает суффиксы d (дни) и w (недели).
//
// Примеры:
//
//	ParseDuration("30d")  → 720h
//	ParseDuration("1w")   → 168h
//	ParseDuration("90m")  → 1h30m
//	ParseDuration("0d")   → ошибка (длительность должна быть > 0)
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, ErrInvalidDuration
	}

	var d time.Duration
	switch unit := s[len(s)-1]; unit {
	case 'd', 'w':
		n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		step := Day
		if unit == 'w' {
			step = Week
		}
		if n > int64(math.MaxInt64/step) {
			return 0, fmt.Errorf("%w: слишком большая длительность %q", ErrInvalidDuration, s)
		}
		d = time.Duration(n) * step
	default:
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		d = parsed
	}

	if d <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return d, nil
}

// FormatDuration форматирует длительность для списка правил.
// Дни пишутся словами, остаток - в формате time.Duration.
//
// Примеры:
//
//	FormatDuration(30 * Day)            → "30 дней"
//	FormatDuration(Day + 2*time.Hour)   → "1 день 2h0m0s"
//	FormatDuration(90 * time.Minute)    → "1h30m0s"
func FormatDuration(d time.Duration) string {
	days := int(d / Day)
	rest := d % Day
	switch {
	case days == 0:
		return rest.String()
	case rest == 0:
		return fmt.Sprintf("%d %s", days, PluralizeDays(days))
	default:
		return fmt.Sprintf("%d %s %s", days, PluralizeDays(days), rest)
	}
}

// PluralizeDays возвращает правильную форму слова «день» для числа n.
//
// Правила:
//   - 1, 21, 31 → "день"
//   - 2-4, 22-24 → "дня"
//   - 5-20, 25-30 → "дней"
func PluralizeDays(n int) string {
	absN := int(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return "день"
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return "дня"
	}
	return "дней"
}

// IsSnowflake проверяет, похожа ли строка на Discord ID (17-20 цифр).
func IsSnowflake(id string) bool {
	if len(id) < 17 || len(id) > 20 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MoscowLocation возвращает часовой пояс Europe/Moscow.
// Если tzdata недоступна, используется фиксированный UTC+3.
func MoscowLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		loc = time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// StartOfDay возвращает полночь по Москве для момента t.
// Дневные лимиты репутации сбрасываются в эту полночь.
func StartOfDay(t time.Time) time.Time {
	t = t.In(MoscowLocation())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// FormatDateTime форматирует время как "02.01.2006 15:04" по Москве.
func FormatDateTime(t time.Time) string {
	return t.In(MoscowLocation()).Format("02.01.2006 15:04")
}
