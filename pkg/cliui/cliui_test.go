package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/TencentCloudADP/adp-chat-client/pkg/cliui"
	"github.com/TencentCloudADP/adp-chat-client/pkg/reconcile"
	"github.com/TencentCloudADP/adp-chat-client/pkg/record"
)

func snapshot(content string, procs ...record.Procedure) reconcile.Snapshot {
	rec := record.Record{Content: content}
	if len(procs) > 0 {
		rec.AgentThought = &record.AgentThought{Procedures: procs}
	}
	return reconcile.Snapshot{Record: rec}
}

var _ = Describe("cliui", func() {
	Describe("FormatDuration", func() {
		It("formats sub-second durations in milliseconds", func() {
			Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		})

		It("formats longer durations in seconds", func() {
			Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
		})
	})

	Describe("Step", func() {
		It("returns the error of fn and prints the message", func() {
			var buf bytes.Buffer
			boom := errors.New("boom")

			Expect(cliui.Step(&buf, "connecting", func() error { return boom })).To(MatchError(boom))
			Expect(buf.String()).To(ContainSubstring("connecting"))
			Expect(buf.String()).To(HaveSuffix("\n"))
		})
	})

	Describe("TurnPrinter", func() {
		var (
			buf bytes.Buffer
			p   *cliui.TurnPrinter
		)

		BeforeEach(func() {
			buf.Reset()
			p = cliui.NewTurnPrinter(&buf, true)
		})

		It("prints only the appended reply text", func() {
			p.Update(snapshot("Hel"))
			p.Update(snapshot("Hello"))
			p.Update(snapshot("Hello"))
			Expect(buf.String()).To(Equal("Hello"))
		})

		It("reprints replaced reply text on a new line", func() {
			p.Update(snapshot("draft"))
			p.Update(snapshot("Final answer"))
			Expect(buf.String()).To(Equal("draft\nFinal answer"))
		})

		It("prints reasoning steps when they appear or change", func() {
			step := record.Procedure{Title: "search", Status: "processing", Debugging: &record.Debugging{}}
			p.Update(snapshot("", step))
			p.Update(snapshot("", step))

			done := step
			done.Status = "success"
			p.Update(snapshot("", done))

			Expect(buf.String()).To(Equal("  · search\n  v search\n"))
		})

		It("finishes with citations and usage", func() {
			p.Update(snapshot("answer"))
			snap := snapshot("answer")
			snap.Record.References = []record.Reference{{Name: "doc", URL: "https://example.com"}}
			snap.Record.TokenStat = &record.TokenStat{TokenCount: 42, Elapsed: 1500}
			p.Finish(snap)

			Expect(buf.String()).To(Equal("answer\n[1] doc https://example.com\n42 tokens, 1.5s\n"))
		})

		It("prints errors on their own line", func() {
			p.Update(snapshot("partial"))
			p.Error(errors.New("remote error: quota exceeded"))
			Expect(buf.String()).To(Equal("partial\nx remote error: quota exceeded\n"))
		})
	})
})
