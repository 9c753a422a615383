package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/TencentCloudADP/adp-chat-client/pkg/utils"
)

// maxLineInError bounds the frame text kept in a ParseError.
const maxLineInError = 128

// defaultErrorMessage is reported for error frames without a message.
const defaultErrorMessage = "unknown error"

var (
	// ErrMissingType is returned for frames without a Type discriminant.
	ErrMissingType = errors.New("missing Type")

	// ErrPayloadNotObject is returned when a payload is absent or is not a
	// JSON object.
	ErrPayloadNotObject = errors.New("payload is not an object")
)

// ParseError reports a frame that could not be decoded. It is a protocol
// violation and is fatal to the stream it came from.
type ParseError struct {
	// Line is the offending frame, truncated.
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse envelope %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// wireFrame is the JSON body of a frame.
type wireFrame struct {
	Type    Type            `json:"Type"`
	Payload json.RawMessage `json:"Payload"`
}

type wireError struct {
	Error *struct {
		Message string `json:"Message"`
	} `json:"Error"`
}

// Parse decodes one frame. The label before the first colon is dropped; a
// line without a colon is decoded as a whole.
func Parse(line string) (Envelope, error) {
	body := line
	if i := strings.IndexByte(line, ':'); i >= 0 {
		body = line[i+1:]
	}
	body = strings.TrimSpace(body)

	var f wireFrame
	if err := json.Unmarshal([]byte(body), &f); err != nil {
		return nil, newParseError(line, err)
	}
	if f.Type == "" {
		return nil, newParseError(line, ErrMissingType)
	}

	switch f.Type {
	case TypeReply, TypeThought, TypeReference, TypeTokenStat:
		d, err := decodeDelta(f.Payload)
		if err != nil {
			return nil, newParseError(line, fmt.Errorf("%s payload: %w", f.Type, err))
		}
		switch f.Type {
		case TypeReply:
			return Reply{d}, nil
		case TypeThought:
			return Thought{d}, nil
		case TypeReference:
			return Reference{d}, nil
		default:
			return TokenStat{d}, nil
		}

	case TypeConversation:
		if !isObject(f.Payload) {
			return nil, newParseError(line, fmt.Errorf("conversation payload: %w", ErrPayloadNotObject))
		}
		var c Conversation
		if err := json.Unmarshal(f.Payload, &c.Conversation); err != nil {
			return nil, newParseError(line, fmt.Errorf("conversation payload: %w", err))
		}
		return c, nil

	case TypeError:
		return decodeError(f.Payload), nil

	default:
		return Unknown{Name: string(f.Type), Payload: f.Payload}, nil
	}
}

func decodeDelta(payload json.RawMessage) (Delta, error) {
	var d Delta
	if !isObject(payload) {
		return d, ErrPayloadNotObject
	}
	if err := json.Unmarshal(payload, &d); err != nil {
		return d, err
	}
	return d, nil
}

// decodeError never fails: a malformed error frame is still an error.
func decodeError(payload json.RawMessage) Error {
	var w wireError
	if isObject(payload) {
		_ = json.Unmarshal(payload, &w)
	}
	if w.Error == nil || w.Error.Message == "" {
		return Error{Message: defaultErrorMessage}
	}
	return Error{Message: w.Error.Message}
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func newParseError(line string, err error) *ParseError {
	return &ParseError{Line: utils.Truncate(line, maxLineInError), Err: err}
}
