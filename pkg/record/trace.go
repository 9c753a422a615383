package record

// AgentThought is the reasoning trace of a turn.
type AgentThought struct {
	Elapsed      int64  `json:"Elapsed,omitempty"`
	IsWorkflow   bool   `json:"IsWorkflow,omitempty"`
	WorkflowName string `json:"WorkflowName,omitempty"`
	RecordID     string `json:"RecordId,omitempty"`
	RequestID    string `json:"RequestId,omitempty"`
	SessionID    string `json:"SessionId,omitempty"`
	TraceID      string `json:"TraceId,omitempty"`

	// Procedures is ordered. Only the last element is ever mutated.
	Procedures []Procedure `json:"Procedures,omitempty"`
}

// Procedure is one reasoning or tool-execution step.
type Procedure struct {
	Name            string `json:"Name,omitempty"`
	Title           string `json:"Title,omitempty"`
	Status          string `json:"Status,omitempty"`
	Icon            string `json:"Icon,omitempty"`
	Index           int    `json:"Index,omitempty"`
	Elapsed         int64  `json:"Elapsed,omitempty"`
	NodeName        string `json:"NodeName,omitempty"`
	ReplyIndex      int    `json:"ReplyIndex,omitempty"`
	SourceAgentName string `json:"SourceAgentName,omitempty"`
	TargetAgentName string `json:"TargetAgentName,omitempty"`
	WorkflowName    string `json:"WorkflowName,omitempty"`

	Debugging *Debugging `json:"Debugging,omitempty"`
}

// Open reports whether the step carries a Debugging block, i.e. whether it
// can still be streaming when it is the last step of its list.
func (p *Procedure) Open() bool {
	return p.Debugging != nil
}

// Debugging holds the streamed text of a step.
type Debugging struct {
	Content        string `json:"Content,omitempty"`
	DisplayContent string `json:"DisplayContent,omitempty"`
	DisplayStatus  string `json:"DisplayStatus,omitempty"`
	DisplayType    int    `json:"DisplayType,omitempty"`
	DisplayURL     string `json:"DisplayUrl,omitempty"`
	SandboxURL     string `json:"SandboxUrl,omitempty"`
}

// TokenStat is the usage accounting of a turn.
type TokenStat struct {
	Elapsed            int64  `json:"Elapsed,omitempty"`
	FreeCount          int    `json:"FreeCount,omitempty"`
	OrderCount         int    `json:"OrderCount,omitempty"`
	UsedCount          int    `json:"UsedCount,omitempty"`
	TokenCount         int    `json:"TokenCount,omitempty"`
	StatusSummary      string `json:"StatusSummary,omitempty"`
	StatusSummaryTitle string `json:"StatusSummaryTitle,omitempty"`
	RecordID           string `json:"RecordId,omitempty"`
	RequestID          string `json:"RequestId,omitempty"`
	SessionID          string `json:"SessionId,omitempty"`
	TraceID            string `json:"TraceId,omitempty"`

	Procedures []TokenStatProcedure `json:"Procedures,omitempty"`
}

// TokenStatProcedure is one usage-accounting step. Its values are snapshots,
// never accumulated text.
type TokenStatProcedure struct {
	Name           string `json:"Name,omitempty"`
	Title          string `json:"Title,omitempty"`
	Status         string `json:"Status,omitempty"`
	Count          int    `json:"Count,omitempty"`
	ResourceStatus int    `json:"ResourceStatus,omitempty"`

	Debugging *Debugging `json:"Debugging,omitempty"`
}

// Open reports whether the step carries a Debugging block.
func (p *TokenStatProcedure) Open() bool {
	return p.Debugging != nil
}
