package protocol

const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeSubmit  = "SUBMIT"
	TypeAck     = "ACK"
	TypeState   = "STATE"
	TypeError   = "ERROR"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActorID         uint64 `json:"actor_id"`
	// Trainer connections may force-override stale events and barriers.
	Trainer bool `json:"trainer,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActorID         uint64 `json:"actor_id"`
	ScenarioDigest  string `json:"scenario_digest"`
	TimeSliceS      int64  `json:"time_slice_s"`
	Seq             uint64 `json:"seq"`
	Time            int64  `json:"time"`
}

// SUBMIT (client -> server): one global event for the shared log. The id
// field of the carried event is ignored; the store assigns it.
type SubmitMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Event           GlobalEvent `json:"event"`
}

// ACK (server -> client)
type AckMsg struct {
	Type     string `json:"type"`
	EventID  uint64 `json:"event_id"`
	Accepted bool   `json:"accepted"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// STATE (server -> client): a new snapshot was published. Carries only the
// identifying coordinates; clients read details through the session API.
type StateMsg struct {
	Type   string `json:"type"`
	Seq    uint64 `json:"seq"`
	Time   int64  `json:"time"`
	Digest string `json:"digest"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
