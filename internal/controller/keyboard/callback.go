package keyboard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Префикс callback data для действий с заявками
const RequestPrefix = "req:"

// Действия над заявкой из inline кнопок
const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

// ErrInvalidCallback неверный формат callback data
var ErrInvalidCallback = errors.New("invalid callback format")

// CallbackData "req:<action>:<id>"
func CallbackData(action string, requestID int64) string {
	return fmt.Sprintf("%s%s:%d", RequestPrefix, action, requestID)
}

// ParseCallback разбирает "req:accept:12" -> ("accept", 12)
func ParseCallback(data string) (string, int64, error) {
	rest, ok := strings.CutPrefix(data, RequestPrefix)
	if !ok {
		return "", 0, ErrInvalidCallback
	}
	action, rawID, ok := strings.Cut(rest, ":")
	if !ok || (action != ActionAccept && action != ActionReject) {
		return "", 0, ErrInvalidCallback
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, ErrInvalidCallback
	}
	return action, id, nil
}
