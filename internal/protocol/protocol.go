package protocol

import "encoding/json"

const Version = "1.0"

// Global event kinds. Global events are the durable source of truth: they
// are appended to the shared log in submission order and never mutated.
const (
	EventActionCreation     = "ACTION_CREATION"
	EventActionCancellation = "ACTION_CANCELLATION"
	EventTimeForward        = "TIME_FORWARD"
	EventTimeForwardCancel  = "TIME_FORWARD_CANCEL"
	EventResourceRecall     = "RESOURCE_RECALL"
	EventOption             = "OPTION"
)

// GlobalEvent is one externally-ordered record of the shared log. ID is
// assigned by the store and doubles as the submission order.
type GlobalEvent struct {
	ID      uint64          `json:"id"`
	Time    int64           `json:"time"`
	Actor   uint64          `json:"actor"`
	Forced  bool            `json:"forced,omitempty"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type ActionCreationPayload struct {
	TemplateID string            `json:"template_id"`
	Params     map[string]string `json:"params,omitempty"`
}

type ActionCancellationPayload struct {
	TemplateID string `json:"template_id"`
	StartTime  int64  `json:"start_time"`
}

type TimeForwardPayload struct {
	Seconds int64 `json:"seconds"`
	// Actors is optional; omitted on trainer-forced jumps, which credit every
	// on-site actor. Must omit rather than emit null: the payload schema
	// accepts an absent key but not a null array.
	Actors []uint64 `json:"actors,omitempty"`
}

type TimeForwardCancelPayload struct {
	Actors []uint64 `json:"actors"`
}

// ResourceRecallPayload pulls the listed resource units back to the idle
// pool, a trainer intervention.
type ResourceRecallPayload struct {
	Resources []uint64 `json:"resources"`
}

type OptionPayload struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
