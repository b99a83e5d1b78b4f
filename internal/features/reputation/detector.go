// Package reputation - detector.go определяет, содержит ли сообщение благодарность.
package reputation

import "strings"

var thankWords = map[string]bool{
	"спасибо":   true,
	"спс":       true,
	"благодарю": true,
	"thanks":    true,
	"thank you": true,
	"thx":       true,
	"ty":        true,
}

// IsThankYou проверяет, является ли текст благодарностью.
// Регистр не важен. Пунктуация в конце допускается.
func IsThankYou(text string) bool {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	cleaned = strings.TrimRight(cleaned, "!.,;:)")
	cleaned = strings.TrimSpace(cleaned)
	return thankWords[cleaned]
}
