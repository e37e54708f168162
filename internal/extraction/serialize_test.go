package extraction

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// blockingGenerator records how many calls overlap
type blockingGenerator struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	release  chan struct{}
}

func (b *blockingGenerator) Generate(ctx context.Context, prompt string, cfg SamplingConfig) (string, error) {
	b.enter()
	defer b.inFlight.Add(-1)
	<-b.release
	return prompt, nil
}

func (b *blockingGenerator) Transcribe(ctx context.Context, pngData []byte) (string, error) {
	b.enter()
	defer b.inFlight.Add(-1)
	<-b.release
	return string(pngData), nil
}

func (b *blockingGenerator) enter() {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (b *blockingGenerator) Close() error {
	return nil
}

var _ = Describe("Serialize", func() {
	var (
		inner *blockingGenerator
	)

	BeforeEach(func() {
		inner = &blockingGenerator{release: make(chan struct{})}
	})

	It("should allow one call at a time by default", func() {
		g := Serialize(inner, 0)

		var wg sync.WaitGroup
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := g.Generate(context.Background(), "p", DefaultSampling())
				Expect(err).NotTo(HaveOccurred())
			}()
		}

		Eventually(inner.inFlight.Load).Should(Equal(int32(1)))
		Consistently(inner.inFlight.Load, 50*time.Millisecond).Should(Equal(int32(1)))
		close(inner.release)
		wg.Wait()
		Expect(inner.peak.Load()).To(Equal(int32(1)))
	})

	It("should allow as many calls as slots", func() {
		g := Serialize(inner, 2)

		var wg sync.WaitGroup
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = g.Generate(context.Background(), "p", DefaultSampling())
			}()
		}

		Eventually(inner.inFlight.Load).Should(Equal(int32(2)))
		close(inner.release)
		wg.Wait()
		Expect(inner.peak.Load()).To(Equal(int32(2)))
	})

	It("should give up waiting when the context ends", func() {
		g := Serialize(inner, 1)

		go func() {
			_, _ = g.Generate(context.Background(), "first", DefaultSampling())
		}()
		Eventually(inner.inFlight.Load).Should(Equal(int32(1)))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := g.Generate(ctx, "second", DefaultSampling())
		Expect(err).To(MatchError(context.DeadlineExceeded))

		close(inner.release)
	})

	It("should make transcriptions wait for a generation slot", func() {
		g := Serialize(inner, 1)

		go func() {
			_, _ = g.Generate(context.Background(), "first", DefaultSampling())
		}()
		Eventually(inner.inFlight.Load).Should(Equal(int32(1)))

		transcribed := make(chan string, 1)
		go func() {
			text, _ := g.Transcribe(context.Background(), []byte("page"))
			transcribed <- text
		}()

		Consistently(inner.inFlight.Load, 50*time.Millisecond).Should(Equal(int32(1)))
		Expect(transcribed).NotTo(Receive())

		close(inner.release)
		Eventually(transcribed).Should(Receive(Equal("page")))
		Expect(inner.peak.Load()).To(Equal(int32(1)))
	})

	It("should refuse to transcribe with a text-only generator", func() {
		_, err := Serialize(&mockGenerator{}, 1).Transcribe(context.Background(), []byte("page"))
		Expect(err).To(MatchError(ContainSubstring("cannot transcribe images")))
		Expect(KindOf(err)).To(Equal(KindUpstream))
	})

	It("should close the wrapped generator", func() {
		m := &mockGenerator{}
		Expect(Serialize(m, 1).Close()).To(Succeed())
		Expect(m.closed).To(BeTrue())
	})
})
