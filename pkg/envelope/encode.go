package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// frameLabel is the frame label written by Encode.
const frameLabel = "data"

// Marshal renders env as a single server-sent frame terminated by a blank
// line: "data: {json}\n\n".
func Marshal(env Envelope) ([]byte, error) {
	payload, err := payloadOf(env)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(struct {
		Type    Type            `json:"Type"`
		Payload json.RawMessage `json:"Payload"`
	}{Type: env.Type(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", env.Type(), err)
	}

	var buf bytes.Buffer
	buf.Grow(len(frameLabel) + len(body) + 4)
	buf.WriteString(frameLabel)
	buf.WriteString(": ")
	buf.Write(body)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// Encode writes env to w as one frame.
func Encode(w io.Writer, env Envelope) error {
	b, err := Marshal(env)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func payloadOf(env Envelope) (json.RawMessage, error) {
	var v any
	switch e := env.(type) {
	case Reply:
		v = e.Delta
	case Thought:
		v = e.Delta
	case Reference:
		v = e.Delta
	case TokenStat:
		v = e.Delta
	case Conversation:
		v = e.Conversation
	case Error:
		v = map[string]any{"Error": map[string]string{"Message": e.Message}}
	case Unknown:
		if len(e.Payload) == 0 {
			return json.RawMessage("{}"), nil
		}
		return e.Payload, nil
	default:
		return nil, fmt.Errorf("unsupported envelope %T", env)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", env.Type(), err)
	}
	return b, nil
}
