// Package envelope decodes the frames of an ADP chat stream into typed
// envelopes.
//
// Every frame is a single line of the form
//
//	<label>:{"Type":"<type>","Payload":{...}}
//
// and is decoded in one discriminated step into exactly one variant of the
// sealed Envelope interface:
//
//	┌───────────────┐   Parse   ┌─────────────────────────────────────────┐
//	│ "data: {...}" │ ────────> │ Reply | Thought | Reference | TokenStat │
//	└───────────────┘           │ Conversation | Error | Unknown          │
//	                            └─────────────────────────────────────────┘
//
// Types the client does not know are kept as Unknown rather than rejected, so
// a newer server never breaks an older client.
package envelope

import (
	"encoding/json"

	"github.com/TencentCloudADP/adp-chat-client/pkg/record"
)

// Type is the discriminant carried by every frame.
type Type string

const (
	TypeReply        Type = "reply"
	TypeThought      Type = "thought"
	TypeReference    Type = "reference"
	TypeTokenStat    Type = "token_stat"
	TypeConversation Type = "conversation"
	TypeError        Type = "error"
)

// Envelope is a parsed frame. The set of implementations is closed.
type Envelope interface {
	Type() Type
	envelope()
}

// Delta is a record fragment together with the flag selecting append or
// replace semantics for its text fields.
type Delta struct {
	record.Record

	// Incremental is evaluated per delta; producers may mix modes.
	Incremental bool `json:"Incremental,omitempty"`
}

// Reply carries the primary content of the turn.
type Reply struct{ Delta }

// Thought carries the reasoning trace.
type Thought struct{ Delta }

// Reference carries the complete citation list.
type Reference struct{ Delta }

// TokenStat carries usage accounting.
type TokenStat struct{ Delta }

// Conversation carries conversation metadata. It is not part of the turn
// content.
type Conversation struct {
	record.Conversation
}

// Error is a protocol level error reported by the server. It terminates the
// turn.
type Error struct {
	Message string
}

// Unknown is a frame whose Type this client does not recognise.
type Unknown struct {
	Name    string
	Payload json.RawMessage
}

func (Reply) Type() Type        { return TypeReply }
func (Thought) Type() Type      { return TypeThought }
func (Reference) Type() Type    { return TypeReference }
func (TokenStat) Type() Type    { return TypeTokenStat }
func (Conversation) Type() Type { return TypeConversation }
func (Error) Type() Type        { return TypeError }
func (u Unknown) Type() Type    { return Type(u.Name) }

func (Reply) envelope()        {}
func (Thought) envelope()      {}
func (Reference) envelope()    {}
func (TokenStat) envelope()    {}
func (Conversation) envelope() {}
func (Error) envelope()        {}
func (Unknown) envelope()      {}

// DeltaOf returns the record fragment of a content envelope.
func DeltaOf(env Envelope) (Delta, bool) {
	switch e := env.(type) {
	case Reply:
		return e.Delta, true
	case Thought:
		return e.Delta, true
	case Reference:
		return e.Delta, true
	case TokenStat:
		return e.Delta, true
	default:
		return Delta{}, false
	}
}
