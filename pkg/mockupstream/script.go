package mockupstream

import (
	"fmt"
	"io"
	"strings"

	"github.com/TencentCloudADP/adp-chat-client/pkg/envelope"
	"github.com/TencentCloudADP/adp-chat-client/pkg/frame"
	"github.com/TencentCloudADP/adp-chat-client/pkg/record"
)

// DefaultRecordID is the record id used throughout DefaultScript.
const DefaultRecordID = "mock-record-0001"

// DefaultScript returns a complete turn in the order the chat backend emits
// it: the opening conversation frame, a streamed reasoning trace, the reply,
// its references, usage accounting and the closing conversation frame.
func DefaultScript() Script {
	reply := func(content string, final bool) envelope.Envelope {
		return envelope.Reply{Delta: envelope.Delta{
			Record: record.Record{
				RecordID:       DefaultRecordID,
				Content:        content,
				IsFinal:        final,
				IsLlmGenerated: true,
				CanRating:      final,
				FromName:       "ADP Assistant",
			},
			Incremental: true,
		}}
	}
	thought := func(procs ...record.Procedure) envelope.Envelope {
		return envelope.Thought{Delta: envelope.Delta{
			Record: record.Record{
				RecordID:     DefaultRecordID,
				AgentThought: &record.AgentThought{RecordID: DefaultRecordID, Procedures: procs},
			},
			Incremental: true,
		}}
	}
	thinking := func(status, content string) record.Procedure {
		return record.Procedure{
			Name:      "thought",
			Title:     "Thinking",
			Status:    status,
			Index:     0,
			Debugging: &record.Debugging{Content: content},
		}
	}
	search := record.Procedure{
		Name:      "knowledge_search",
		Title:     "Searching knowledge base",
		Status:    "success",
		Index:     1,
		Elapsed:   420,
		Debugging: &record.Debugging{Content: "2 documents matched"},
	}

	return Script{
		envelope.Conversation{Conversation: record.Conversation{
			IsNewConversation: true,
		}},
		thought(thinking("processing", "The user is asking about ")),
		thought(thinking("processing", "the product. Search the knowledge base.")),
		thought(thinking("success", "")),
		thought(thinking("success", ""), search),
		reply("Here is ", false),
		reply("what I found in ", false),
		reply("the documentation[1].", false),
		envelope.Reference{Delta: envelope.Delta{Record: record.Record{
			RecordID: DefaultRecordID,
			References: []record.Reference{
				{ID: "1", Type: 2, Name: "Getting started", URL: "https://example.com/docs/start"},
				{ID: "2", Type: 2, Name: "FAQ", URL: "https://example.com/docs/faq"},
			},
		}}},
		envelope.TokenStat{Delta: envelope.Delta{Record: record.Record{
			RecordID: DefaultRecordID,
			TokenStat: &record.TokenStat{
				RecordID:   DefaultRecordID,
				Elapsed:    1830,
				TokenCount: 412,
				UsedCount:  1,
				Procedures: []record.TokenStatProcedure{{
					Name:   "thought",
					Title:  "Model call",
					Status: "success",
					Count:  412,
				}},
			},
		}}},
		reply("", true),
		envelope.Conversation{Conversation: record.Conversation{
			Title: "Product documentation",
		}},
	}
}

// LoadScript reads a recorded stream, one frame per line, into a Script.
// Blank lines are skipped.
func LoadScript(r io.Reader) (Script, error) {
	var script Script
	for line, err := range frame.Lines(r) {
		if err != nil {
			return nil, fmt.Errorf("reading script: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		env, err := envelope.Parse(line)
		if err != nil {
			return nil, err
		}
		script = append(script, env)
	}
	return script, nil
}
