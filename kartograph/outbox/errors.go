package outbox

import "errors"

var (
	ErrEventRequired            = errors.New("outbox event is required")
	ErrEntryRequired            = errors.New("outbox entry is required")
	ErrEntryIDRequired          = errors.New("outbox entry id is required")
	ErrRepositoryRequired       = errors.New("outbox repository is required")
	ErrHandlerRequired          = errors.New("outbox handler is required")
	ErrDatabaseRequired         = errors.New("outbox database handle is required")
	ErrWorkerRequired           = errors.New("outbox worker is required")
	ErrWorkerRunning            = errors.New("outbox worker is already running")
	ErrMonitorRequired          = errors.New("outbox monitor is required")
	ErrEventTypeRequired        = errors.New("event type is required")
	ErrPayloadRequired          = errors.New("outbox payload is required")
	ErrPayloadTooLarge          = errors.New("outbox payload exceeds maximum allowed size")
	ErrPayloadNotJSON           = errors.New("outbox payload must be valid JSON (stored as JSONB)")
	ErrDecoderRequired          = errors.New("event decoder is required")
	ErrDecoderAlreadyRegistered = errors.New("event decoder already registered")
	ErrDecoderNotRegistered     = errors.New("event decoder is not registered")
)
