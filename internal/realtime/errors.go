package realtime

import "errors"

// Протокольные ошибки уровня кадра: уходят клиенту error-событием,
// соединение не разрывают
var (
	errInvalidPayload = errors.New("invalid payload")
	errRoomRequired   = errors.New("room is required")
	errEmptyMessage   = errors.New("message content is empty")
)
