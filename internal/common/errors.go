// Package common - errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и решать, что логировать, а что показывать администратору.
package common

import "errors"

// Ошибки валидации правил (видит только администратор при создании правила)
var (
	// ErrInvalidRuleName - имя правила не является слагом
	ErrInvalidRuleName = errors.New("имя правила должно быть слагом: a-z, 0-9, '-', '_' (до 32 символов)")
	// ErrInvalidTrigger - неизвестный тип триггера или некорректные аргументы
	ErrInvalidTrigger = errors.New("некорректный триггер")
	// ErrInvalidEmoji - эмодзи не похож ни на unicode, ни на name:id
	ErrInvalidEmoji = errors.New("некорректный эмодзи")
	// ErrInvalidDuration - длительность не положительная или не разбирается
	ErrInvalidDuration = errors.New("некорректная длительность")
	// ErrInvalidSnowflake - ID роли/сообщения не является snowflake
	ErrInvalidSnowflake = errors.New("некорректный Discord ID")
)

// Ошибки хранилища правил
var (
	// ErrRuleExists - правило с таким именем уже есть в гильдии
	ErrRuleExists = errors.New("правило с таким именем уже существует")
	// ErrRuleNotFound - правило не найдено
	ErrRuleNotFound = errors.New("правило не найдено")
)

// Ошибки платформы (Discord)
var (
	// ErrMissingPermission - у бота нет прав выдать/снять роль
	ErrMissingPermission = errors.New("у бота недостаточно прав")
	// ErrRoleGone - роль удалена
	ErrRoleGone = errors.New("роль не существует")
	// ErrMemberGone - участник покинул гильдию
	ErrMemberGone = errors.New("участник не найден")
	// ErrMessageGone - сообщение удалено
	ErrMessageGone = errors.New("сообщение не найдено")
)

// Ошибки админки
var (
	// ErrNotAdmin - у пользователя нет прав управлять ролями
	ErrNotAdmin = errors.New("нужны права администратора или управления ролями")
	// ErrConfirmationNotFound - код подтверждения неизвестен или истёк
	ErrConfirmationNotFound = errors.New("подтверждение не найдено или истекло")
)

// Ошибки репутации
var (
	// ErrReputationSelfGive - попытка дать репутацию самому себе
	ErrReputationSelfGive = errors.New("нельзя давать репутацию самому себе")
	// ErrReputationDailyLimit - лимит репутации на день исчерпан
	ErrReputationDailyLimit = errors.New("лимит репутации на сегодня исчерпан")
	// ErrReputationAlreadyGave - уже давали репутацию этому пользователю сегодня
	ErrReputationAlreadyGave = errors.New("вы уже давали репутацию этому пользователю сегодня")
)
