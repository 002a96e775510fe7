package comms

import "encoding/json"

// messageSource marks envelopes produced by this subsystem. The window
// message channel is shared with every other script on the page, so
// anything without the marker is ignored on receive.
const messageSource = "a11yview"

// messageVersion guards against envelope schema drift between frames
// running different builds.
const messageVersion = "1"

// ErrorContent carries a failure across the frame boundary. Exceptions
// cannot cross a serialization boundary, so a failing handler is
// flattened into this value and examined by the sender's callback.
type ErrorContent struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// envelope is the wire format. MessageID correlates a reply with its
// request; IsReply distinguishes the two directions of the same id.
type envelope struct {
	MessageID string          `json:"messageId"`
	Command   string          `json:"command"`
	Source    string          `json:"messageSourceId"`
	Version   string          `json:"messageVersion"`
	IsReply   bool            `json:"isReply,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     *ErrorContent   `json:"error,omitempty"`
}

// parseEnvelope decodes data and validates the source marker. ok is
// false for malformed or foreign messages; both are dropped silently.
func parseEnvelope(data []byte) (envelope, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, false
	}
	if env.Source != messageSource || env.Version != messageVersion {
		return envelope{}, false
	}
	if env.MessageID == "" || env.Command == "" {
		return envelope{}, false
	}
	return env, true
}
