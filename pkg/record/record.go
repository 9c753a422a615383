// Package record defines the assistant turn data model reconstructed from an
// ADP chat stream: the Record itself, its reasoning trace (AgentThought), its
// usage accounting (TokenStat) and the citation types attached to it.
//
// Field names follow the wire protocol, which uses PascalCase JSON keys.
package record

// Score is the user rating attached to a record.
type Score int

const (
	ScoreUnknown Score = 0
	ScoreLike    Score = 1
	ScoreDislike Score = 2
)

// Record is the mutable aggregate for one assistant turn.
type Record struct {
	RecordID        string `json:"RecordId"`
	RelatedRecordID string `json:"RelatedRecordId,omitempty"`
	SessionID       string `json:"SessionId,omitempty"`

	// Content is the accumulated reply text.
	Content string `json:"Content,omitempty"`

	OptionCards []string    `json:"OptionCards,omitempty"`
	QuoteInfos  []QuoteInfo `json:"QuoteInfos,omitempty"`
	References  []Reference `json:"References,omitempty"`

	CanRating      bool  `json:"CanRating,omitempty"`
	CanFeedback    bool  `json:"CanFeedback,omitempty"`
	IsFinal        bool  `json:"IsFinal,omitempty"`
	IsFromSelf     bool  `json:"IsFromSelf,omitempty"`
	IsLlmGenerated bool  `json:"IsLlmGenerated,omitempty"`
	Score          Score `json:"Score,omitempty"`

	FromAvatar  string `json:"FromAvatar,omitempty"`
	FromName    string `json:"FromName,omitempty"`
	Timestamp   int64  `json:"Timestamp,omitempty"`
	ReplyMethod int    `json:"ReplyMethod,omitempty"`

	AgentThought *AgentThought `json:"AgentThought,omitempty"`
	TokenStat    *TokenStat    `json:"TokenStat,omitempty"`
}

// QuoteInfo places a citation marker inside the reply content.
type QuoteInfo struct {
	Index    string `json:"Index"`
	Position int    `json:"Position"`
}

// Reference is one citation backing the reply.
type Reference struct {
	ID             string `json:"Id"`
	Type           int    `json:"Type"`
	Name           string `json:"Name,omitempty"`
	URL            string `json:"Url,omitempty"`
	DocID          string `json:"DocId,omitempty"`
	DocBizID       string `json:"DocBizId,omitempty"`
	QaBizID        string `json:"QaBizId,omitempty"`
	KnowledgeBizID string `json:"KnowledgeBizId,omitempty"`
	KnowledgeName  string `json:"KnowledgeName,omitempty"`
}

// Conversation is the metadata of the conversation a turn belongs to. It is
// carried by "conversation" envelopes and is not part of the turn content.
type Conversation struct {
	ID                string `json:"Id"`
	AccountID         string `json:"AccountId,omitempty"`
	ApplicationID     string `json:"ApplicationId,omitempty"`
	Title             string `json:"Title,omitempty"`
	LastActiveAt      int64  `json:"LastActiveAt,omitempty"`
	CreatedAt         int64  `json:"CreatedAt,omitempty"`
	IsNewConversation bool   `json:"IsNewConversation,omitempty"`
}
