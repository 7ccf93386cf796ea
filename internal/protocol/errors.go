package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Replay/time layer.
	ErrStale   = "E_STALE"
	ErrFuture  = "E_FUTURE"
	ErrBadJump = "E_BAD_JUMP"
	ErrCascade = "E_CASCADE_CEILING"

	// Action/task layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrChannelBusy   = "E_CHANNEL_BUSY"
	ErrConflict      = "E_CONFLICT"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrStale:           {},
	ErrFuture:          {},
	ErrBadJump:         {},
	ErrCascade:         {},
	ErrBadRequest:      {},
	ErrNoPermission:    {},
	ErrNoResource:      {},
	ErrInvalidTarget:   {},
	ErrChannelBusy:     {},
	ErrConflict:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
