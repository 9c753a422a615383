package record_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/TencentCloudADP/adp-chat-client/pkg/record"
)

func newTracedRecord() *record.Record {
	return &record.Record{
		RecordID:    "r-1",
		Content:     "hello",
		OptionCards: []string{"a", "b"},
		QuoteInfos:  []record.QuoteInfo{{Index: "1", Position: 3}},
		References:  []record.Reference{{ID: "ref-1", Name: "doc"}},
		AgentThought: &record.AgentThought{
			Elapsed: 12,
			Procedures: []record.Procedure{
				{Title: "search", Status: "processing", Debugging: &record.Debugging{Content: "foo"}},
			},
		},
		TokenStat: &record.TokenStat{
			TokenCount: 10,
			Procedures: []record.TokenStatProcedure{
				{Title: "llm", Count: 10, Debugging: &record.Debugging{Content: "10 tokens"}},
			},
		},
	}
}

var _ = Describe("Record", func() {
	Describe("Clone", func() {
		It("returns an equal value", func() {
			rec := newTracedRecord()
			Expect(rec.Clone()).To(Equal(*rec))
		})

		It("does not share slices or pointers with the source", func() {
			rec := newTracedRecord()
			clone := rec.Clone()

			rec.OptionCards[0] = "changed"
			rec.References[0].Name = "changed"
			rec.AgentThought.Procedures[0].Debugging.Content = "changed"
			rec.AgentThought.Procedures = append(rec.AgentThought.Procedures, record.Procedure{Title: "next"})
			rec.TokenStat.Procedures[0].Debugging.Content = "changed"

			Expect(clone.OptionCards[0]).To(Equal("a"))
			Expect(clone.References[0].Name).To(Equal("doc"))
			Expect(clone.AgentThought.Procedures).To(HaveLen(1))
			Expect(clone.AgentThought.Procedures[0].Debugging.Content).To(Equal("foo"))
			Expect(clone.TokenStat.Procedures[0].Debugging.Content).To(Equal("10 tokens"))
		})

		It("returns a zero record for a nil receiver", func() {
			var rec *record.Record
			Expect(rec.Clone()).To(Equal(record.Record{}))
		})
	})

	Describe("Procedure", func() {
		It("is open only with a Debugging block", func() {
			open := record.Procedure{Debugging: &record.Debugging{}}
			closed := record.Procedure{Title: "done"}
			Expect(open.Open()).To(BeTrue())
			Expect(closed.Open()).To(BeFalse())
		})
	})

	Describe("JSON", func() {
		It("uses the wire field names", func() {
			payload := []byte(`{
				"RecordId": "r-9",
				"RelatedRecordId": "r-8",
				"Content": "hi",
				"IsFinal": true,
				"Score": 1,
				"References": [{"Id": "x", "Type": 2, "Url": "https://example.com", "DocBizId": "d"}],
				"AgentThought": {"Procedures": [{"Title": "t", "Debugging": {"Content": "c", "DisplayUrl": "u"}}]}
			}`)

			var rec record.Record
			Expect(json.Unmarshal(payload, &rec)).To(Succeed())
			Expect(rec.RecordID).To(Equal("r-9"))
			Expect(rec.RelatedRecordID).To(Equal("r-8"))
			Expect(rec.IsFinal).To(BeTrue())
			Expect(rec.Score).To(Equal(record.ScoreLike))
			Expect(rec.References[0].URL).To(Equal("https://example.com"))
			Expect(rec.References[0].DocBizID).To(Equal("d"))
			Expect(rec.AgentThought.Procedures[0].Debugging.DisplayURL).To(Equal("u"))
		})
	})
})
