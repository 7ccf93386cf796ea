package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// payload schema per global event kind
var payloadSchemas = map[string]*jsonschema.Schema{}

func init() {
	for kind, name := range map[string]string{
		EventActionCreation:     "action_creation.schema.json",
		EventActionCancellation: "action_cancellation.schema.json",
		EventTimeForward:        "time_forward.schema.json",
		EventTimeForwardCancel:  "time_forward_cancel.schema.json",
		EventResourceRecall:     "resource_recall.schema.json",
		EventOption:             "option.schema.json",
	} {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			panic(fmt.Sprintf("protocol: embedded schema %s: %v", name, err))
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(name, bytes.NewReader(raw)); err != nil {
			panic(fmt.Sprintf("protocol: add schema %s: %v", name, err))
		}
		s, err := c.Compile(name)
		if err != nil {
			panic(fmt.Sprintf("protocol: compile schema %s: %v", name, err))
		}
		payloadSchemas[kind] = s
	}
}

// ValidateEvent checks a submitted global event against the payload schema
// for its kind. Unknown kinds are rejected at the edge; the replay engine
// never sees them.
func ValidateEvent(ev GlobalEvent) error {
	s, ok := payloadSchemas[ev.Kind]
	if !ok {
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	var v any
	if err := json.Unmarshal(ev.Payload, &v); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	return nil
}
