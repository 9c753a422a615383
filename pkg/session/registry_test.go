package session

import (
	"context"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Registry", func() {
	var reg *Registry

	BeforeEach(func() {
		reg = NewRegistry(nil)
	})

	It("registers sessions under generated ids", func() {
		a := reg.Create(stringTransport(stream(replyFrame)), Callbacks{})
		b := reg.Create(stringTransport(stream(replyFrame)), Callbacks{})

		Expect(a.ID()).NotTo(BeEmpty())
		Expect(a.ID()).NotTo(Equal(b.ID()))
		Expect(reg.Len()).To(Equal(2))
		Expect(reg.List()).To(ConsistOf(a.ID(), b.ID()))

		got, ok := reg.Get(a.ID())
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(a))
	})

	It("cancels a registered session", func() {
		pr, pw := io.Pipe()
		defer pw.Close()

		rec := &recorder{}
		s := reg.Create(TransportFunc(func(context.Context) (io.ReadCloser, error) {
			return pr, nil
		}), rec.callbacks())
		go func() { _ = s.Run(context.Background()) }()

		Expect(reg.Cancel(s.ID())).To(BeTrue())
		Eventually(s.Done()).Should(BeClosed())
		Expect(s.State()).To(Equal(StateCancelled))
		Expect(reg.Len()).To(Equal(1))
	})

	It("destroys sessions", func() {
		s := reg.Create(stringTransport(stream(replyFrame)), Callbacks{})

		Expect(reg.Destroy(s.ID())).To(BeTrue())
		Expect(reg.Len()).To(BeZero())

		_, ok := reg.Get(s.ID())
		Expect(ok).To(BeFalse())
		Expect(reg.Destroy(s.ID())).To(BeFalse())
		Expect(reg.Cancel(s.ID())).To(BeFalse())
	})

	It("keeps registries independent", func() {
		other := NewRegistry(nil)
		reg.Create(stringTransport(""), Callbacks{})
		Expect(other.Len()).To(BeZero())
	})
})
