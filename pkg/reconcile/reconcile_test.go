package reconcile

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TencentCloudADP/adp-chat-client/pkg/envelope"
	"github.com/TencentCloudADP/adp-chat-client/pkg/record"
)

func reply(content string, incremental bool) envelope.Reply {
	return envelope.Reply{Delta: envelope.Delta{
		Record:      record.Record{RecordID: "r1", Content: content},
		Incremental: incremental,
	}}
}

func openStep(title, content string) record.Procedure {
	return record.Procedure{
		Title:     title,
		Status:    "processing",
		Debugging: &record.Debugging{Content: content},
	}
}

func thought(incremental bool, procs ...record.Procedure) envelope.Thought {
	return envelope.Thought{Delta: envelope.Delta{
		Record: record.Record{
			RecordID:     "r1",
			AgentThought: &record.AgentThought{Procedures: procs},
		},
		Incremental: incremental,
	}}
}

func tokenStat(procs ...record.TokenStatProcedure) envelope.TokenStat {
	return envelope.TokenStat{Delta: envelope.Delta{
		Record: record.Record{
			RecordID:  "r1",
			TokenStat: &record.TokenStat{Procedures: procs},
		},
	}}
}

// mustParse decodes a frame and fails the test on error.
func mustParse(line string) envelope.Envelope {
	env, err := envelope.Parse(line)
	Expect(err).NotTo(HaveOccurred())
	return env
}

var _ = Describe("Reconciler", func() {
	var r *Reconciler

	BeforeEach(func() {
		r = New()
	})

	Describe("reply", func() {
		It("applies a replacing delta idempotently", func() {
			once, _ := New().Apply(reply("Hello", false))

			r.Apply(reply("Hello", false))
			twice, outcome := r.Apply(reply("Hello", false))

			Expect(outcome).To(Equal(OutcomeUpdated))
			Expect(twice.Record.Content).To(Equal(once.Record.Content))
			Expect(twice.Record.Content).To(Equal("Hello"))
		})

		It("appends incremental text", func() {
			r.Apply(reply("He", false))
			snap, _ := r.Apply(reply("llo", true))
			Expect(snap.Record.Content).To(Equal("Hello"))
		})

		It("evaluates the incremental flag per delta", func() {
			r.Apply(reply("a", true))
			r.Apply(reply("b", true))
			r.Apply(reply("reset", false))
			snap, _ := r.Apply(reply("!", true))
			Expect(snap.Record.Content).To(Equal("reset!"))
		})

		It("takes the latest record id and scalar fields", func() {
			r.Apply(reply("x", false))
			snap, _ := r.Apply(envelope.Reply{Delta: envelope.Delta{Record: record.Record{
				RecordID:        "r2",
				RelatedRecordID: "q1",
				Content:         "y",
				OptionCards:     []string{"more"},
				QuoteInfos:      []record.QuoteInfo{{Index: "1", Position: 3}},
				CanRating:       true,
				IsFinal:         true,
				Score:           record.ScoreLike,
				FromName:        "bot",
				FromAvatar:      "a.png",
			}}})

			Expect(snap.Record.RecordID).To(Equal("r2"))
			Expect(snap.Record.RelatedRecordID).To(Equal("q1"))
			Expect(snap.Record.Content).To(Equal("y"))
			Expect(snap.Record.OptionCards).To(Equal([]string{"more"}))
			Expect(snap.Record.QuoteInfos).To(HaveLen(1))
			Expect(snap.Record.CanRating).To(BeTrue())
			Expect(snap.Record.IsFinal).To(BeTrue())
			Expect(snap.Record.Score).To(Equal(record.ScoreLike))
			Expect(snap.Record.FromName).To(Equal("bot"))
			Expect(snap.Record.FromAvatar).To(Equal("a.png"))
		})
	})

	Describe("reference", func() {
		It("replaces the citation list wholesale", func() {
			r.Apply(envelope.Reference{Delta: envelope.Delta{Record: record.Record{
				References: []record.Reference{{ID: "1"}, {ID: "2"}},
			}}})
			snap, _ := r.Apply(envelope.Reference{Delta: envelope.Delta{Record: record.Record{
				References: []record.Reference{{ID: "3"}},
			}}})
			Expect(snap.Record.References).To(Equal([]record.Reference{{ID: "3"}}))
		})
	})

	Describe("thought", func() {
		BeforeEach(func() {
			r.Apply(thought(false, openStep("t1", "foo")))
		})

		It("bootstraps the trace from the first delta", func() {
			snap := r.Snapshot()
			Expect(snap.Record.AgentThought.Procedures).To(HaveLen(1))
			Expect(snap.Record.AgentThought.Procedures[0].Debugging.Content).To(Equal("foo"))
		})

		It("continues the open step when the length is unchanged", func() {
			snap, _ := r.Apply(thought(true, openStep("t2", "bar")))

			procs := snap.Record.AgentThought.Procedures
			Expect(procs).To(HaveLen(1))
			Expect(procs[0].Debugging.Content).To(Equal("foobar"))
			Expect(procs[0].Title).To(Equal("t2"))
		})

		It("replaces step text for a non incremental continuation", func() {
			snap, _ := r.Apply(thought(false, openStep("t1", "full text")))
			Expect(snap.Record.AgentThought.Procedures[0].Debugging.Content).To(Equal("full text"))
		})

		It("leaves step text alone when the delta carries none", func() {
			step := openStep("t1", "")
			step.Debugging.DisplayContent = "shown"
			snap, _ := r.Apply(thought(true, step))

			procs := snap.Record.AgentThought.Procedures
			Expect(procs[0].Debugging.Content).To(Equal("foo"))
			Expect(procs[0].Debugging.DisplayContent).To(Equal("shown"))
		})

		It("appends only the newest step when the length grows", func() {
			p2 := openStep("t2", "second")
			snap, _ := r.Apply(thought(true, openStep("t1-changed", "ignored"), p2))

			procs := snap.Record.AgentThought.Procedures
			Expect(procs).To(HaveLen(2))
			Expect(procs[0].Title).To(Equal("t1"))
			Expect(procs[0].Debugging.Content).To(Equal("foo"))
			Expect(procs[1]).To(Equal(p2))
		})

		It("replaces the trace when the last step is closed", func() {
			r = New()
			r.Apply(thought(false, record.Procedure{Title: "done"}))
			snap, _ := r.Apply(thought(false, openStep("a", "1"), openStep("b", "2")))

			procs := snap.Record.AgentThought.Procedures
			Expect(procs).To(HaveLen(2))
			Expect(procs[0].Title).To(Equal("a"))
		})

		It("clears a closed trace when a delta carries none", func() {
			r = New()
			r.Apply(thought(false, record.Procedure{Title: "done"}))
			snap, outcome := r.Apply(envelope.Thought{Delta: envelope.Delta{Record: record.Record{RecordID: "r1"}}})

			Expect(outcome).To(Equal(OutcomeUpdated))
			Expect(snap.Record.AgentThought).To(BeNil())
		})

		It("keeps an open step when a delta carries no trace", func() {
			snap, _ := r.Apply(envelope.Thought{Delta: envelope.Delta{Record: record.Record{RecordID: "r1"}, Incremental: true}})
			Expect(snap.Record.AgentThought.Procedures).To(HaveLen(1))
			Expect(snap.Record.AgentThought.Procedures[0].Debugging.Content).To(Equal("foo"))
		})

		It("refreshes trace metadata without touching steps", func() {
			delta := thought(true, openStep("t1", "bar"))
			delta.AgentThought.Elapsed = 900
			delta.AgentThought.TraceID = "trace"
			snap, _ := r.Apply(delta)

			Expect(snap.Record.AgentThought.Elapsed).To(BeEquivalentTo(900))
			Expect(snap.Record.AgentThought.TraceID).To(Equal("trace"))
			Expect(snap.Record.AgentThought.Procedures[0].Debugging.Content).To(Equal("foobar"))
		})

		It("keeps the trace when a delta lists no steps", func() {
			snap, outcome := r.Apply(thought(true))
			Expect(outcome).To(Equal(OutcomeUpdated))
			Expect(snap.Record.AgentThought.Procedures).To(HaveLen(1))
		})

		It("uses the configured continuation test", func() {
			r = New(WithContinuation(func(current, incoming int) bool { return false }))
			r.Apply(thought(false, openStep("t1", "foo")))
			snap, _ := r.Apply(thought(true, openStep("t1", "bar")))
			Expect(snap.Record.AgentThought.Procedures).To(HaveLen(2))
		})

		It("logs a warning when a delta skips steps", func() {
			core, logs := observer.New(zapcore.WarnLevel)
			r = New(WithLogger(zap.New(core)))
			r.Apply(thought(false, openStep("t1", "foo")))

			snap, _ := r.Apply(thought(true, openStep("t1", ""), openStep("t2", ""), openStep("t3", "x")))

			procs := snap.Record.AgentThought.Procedures
			Expect(procs).To(HaveLen(2))
			Expect(procs[1].Title).To(Equal("t3"))

			entries := logs.FilterMessage("trace delta skipped steps").All()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].ContextMap()).To(HaveKeyWithValue("dropped", int64(1)))
		})
	})

	Describe("token_stat", func() {
		open := func(title string, count int) record.TokenStatProcedure {
			return record.TokenStatProcedure{
				Title:     title,
				Status:    "processing",
				Count:     count,
				Debugging: &record.Debugging{Content: title},
			}
		}

		It("replaces the continued step wholesale", func() {
			r.Apply(tokenStat(open("llm", 10)))
			snap, _ := r.Apply(tokenStat(record.TokenStatProcedure{
				Title:     "llm",
				Status:    "success",
				Debugging: &record.Debugging{Content: "done"},
			}))

			procs := snap.Record.TokenStat.Procedures
			Expect(procs).To(HaveLen(1))
			Expect(procs[0].Status).To(Equal("success"))
			Expect(procs[0].Debugging.Content).To(Equal("done"))
		})

		It("appends a new step when the length grows", func() {
			r.Apply(tokenStat(open("llm", 10)))
			snap, _ := r.Apply(tokenStat(open("llm", 10), open("search", 2)))

			procs := snap.Record.TokenStat.Procedures
			Expect(procs).To(HaveLen(2))
			Expect(procs[1].Title).To(Equal("search"))
		})

		It("clears closed usage when a delta carries none", func() {
			r.Apply(tokenStat(record.TokenStatProcedure{Title: "llm", Status: "success"}))
			snap, _ := r.Apply(envelope.TokenStat{Delta: envelope.Delta{Record: record.Record{RecordID: "r1"}}})
			Expect(snap.Record.TokenStat).To(BeNil())
		})

		It("refreshes usage counters", func() {
			r.Apply(tokenStat(open("llm", 10)))
			delta := tokenStat(open("llm", 20))
			delta.TokenStat.TokenCount = 20
			snap, _ := r.Apply(delta)
			Expect(snap.Record.TokenStat.TokenCount).To(Equal(20))
		})
	})

	Describe("conversation", func() {
		It("stores metadata without touching the record", func() {
			r.Apply(reply("hi", false))
			before := r.Snapshot()

			snap, outcome := r.Apply(envelope.Conversation{Conversation: record.Conversation{ID: "c1", Title: "greeting"}})

			Expect(outcome).To(Equal(OutcomeConversation))
			Expect(snap.Record).To(Equal(before.Record))
			Expect(snap.Conversation.ID).To(Equal("c1"))
			Expect(snap.Sequence).To(Equal(before.Sequence + 1))
		})
	})

	Describe("error", func() {
		It("does not mutate the record", func() {
			r.Apply(thought(false, openStep("t1", "foo")))
			r.Apply(reply("partial", false))
			before := r.Snapshot()

			snap, outcome := r.Apply(envelope.Error{Message: "boom"})

			Expect(outcome).To(Equal(OutcomeTerminated))
			Expect(snap).To(Equal(before))
			Expect(r.Terminated()).To(BeTrue())
		})

		It("ignores every later envelope", func() {
			r.Apply(reply("partial", false))
			r.Apply(envelope.Error{Message: "boom"})

			snap, outcome := r.Apply(reply(" more", true))
			Expect(outcome).To(Equal(OutcomeIgnored))
			Expect(snap.Record.Content).To(Equal("partial"))
		})
	})

	It("ignores unknown envelope types", func() {
		r.Apply(reply("x", false))
		before := r.Snapshot()

		snap, outcome := r.Apply(envelope.Unknown{Name: "audio"})
		Expect(outcome).To(Equal(OutcomeIgnored))
		Expect(snap).To(Equal(before))
	})

	It("hands out snapshots isolated from later merges", func() {
		first, _ := r.Apply(thought(false, openStep("t1", "foo")))
		r.Apply(thought(true, openStep("t1", "bar")))

		Expect(first.Record.AgentThought.Procedures[0].Debugging.Content).To(Equal("foo"))
	})

	It("reconciles a full turn end to end", func() {
		frames := []string{
			`data: {"Type":"conversation","Payload":{"Id":"c1","IsNewConversation":true}}`,
			`data: {"Type":"thought","Payload":{"RecordId":"r1","AgentThought":{"Procedures":[{"Title":"thinking","Status":"processing","Debugging":{"Content":"Let me "}}]}}}`,
			`data: {"Type":"thought","Payload":{"RecordId":"r1","Incremental":true,"AgentThought":{"Procedures":[{"Title":"thinking","Status":"success","Debugging":{"Content":"check."}}]}}}`,
			`data: {"Type":"reply","Payload":{"RecordId":"r1","Content":"Final answer","Incremental":false}}`,
			`data: {"Type":"reply","Payload":{"RecordId":"r1","Content":"Final answer","IsFinal":true}}`,
		}

		var snap Snapshot
		for _, f := range frames {
			snap, _ = r.Apply(mustParse(f))
		}

		procs := snap.Record.AgentThought.Procedures
		Expect(procs).To(HaveLen(1))
		Expect(procs[0].Debugging.Content).To(Equal("Let me check."))
		Expect(procs[0].Status).To(Equal("success"))
		Expect(snap.Record.Content).To(Equal("Final answer"))
		Expect(snap.Record.IsFinal).To(BeTrue())
		Expect(snap.Conversation.IsNewConversation).To(BeTrue())
		Expect(snap.Sequence).To(BeEquivalentTo(len(frames)))
	})

	It("names its outcomes", func() {
		Expect(OutcomeTerminated.String()).To(Equal("terminated"))
		Expect(Outcome(99).String()).To(Equal("unknown"))
	})
})
