package controller

import (
	"errors"

	"github.com/Freeeeeet/tutoring_backend/internal/controller/keyboard"
	"github.com/Freeeeeet/tutoring_backend/internal/service"
)

// Ошибки обработчиков бота
var (
	ErrNotLinked   = errors.New("chat is not linked to a user")
	ErrNotOwner    = errors.New("request belongs to another tutor")
	ErrInvalidLink = errors.New("invalid link argument")
)

// ErrorMessage возвращает пользовательское сообщение для ошибки
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotLinked):
		return "❌ Аккаунт не привязан. Используйте /link <id>"
	case errors.Is(err, ErrNotOwner):
		return "❌ Это заявка другого репетитора"
	case errors.Is(err, ErrInvalidLink):
		return "❌ Укажите номер аккаунта: /link 42"
	case errors.Is(err, keyboard.ErrInvalidCallback):
		return "❌ Неверный формат данных"
	case errors.Is(err, service.ErrNotFound):
		return "❌ Заявка не найдена"
	case errors.Is(err, service.ErrInvalidTransition):
		return "⚠️ На эту заявку уже ответили"
	case errors.Is(err, service.ErrConflict):
		return "❌ Это время уже занято другим занятием"
	case errors.Is(err, service.ErrValidation):
		return "❌ Неверные данные заявки"
	default:
		return "❌ Произошла ошибка"
	}
}
