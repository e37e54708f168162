package extraction

import (
	"context"
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server     *ghttp.Server
		ollama     *Ollama
		sampling   SamplingConfig
		received   ollamaGenerateRequest
		completion string
		err        error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		sampling = DefaultSampling()
		received = ollamaGenerateRequest{}

		var newErr error
		ollama, newErr = NewOllama(server.URL()+"/", "llama2:13b-chat")
		Expect(newErr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		completion, err = ollama.Generate(context.Background(), "PROMPT"+Delimiter, sampling)
	})

	When("the API answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/generate"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaGenerateResponse{
					Response: ` {"invoice_number": "A-1"}`,
					Done:     true,
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should echo the prompt before the continuation", func() {
			Expect(completion).To(Equal("PROMPT" + Delimiter + ` {"invoice_number": "A-1"}`))
		})

		It("should send the prompt in raw mode without streaming", func() {
			Expect(received.Prompt).To(Equal("PROMPT" + Delimiter))
			Expect(received.Raw).To(BeTrue())
			Expect(received.Stream).To(BeFalse())
			Expect(received.Model).To(Equal("llama2:13b-chat"))
		})

		It("should map the sampling options", func() {
			Expect(received.Options).To(Equal(ollamaOptions{
				Temperature: 0.7,
				TopP:        0.95,
				TopK:        40,
				NumPredict:  2048,
			}))
		})

		It("should produce a completion the extractor accepts", func() {
			record, parseErr := ExtractJSON(completion)
			Expect(parseErr).NotTo(HaveOccurred())
			Expect(record.Value).To(HaveKeyWithValue("invoice_number", "A-1"))
		})
	})

	When("sampling is disabled", func() {
		BeforeEach(func() {
			sampling.DoSample = false
			server.AppendHandlers(ghttp.CombineHandlers(
				func(w http.ResponseWriter, r *http.Request) {
					Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaGenerateResponse{Done: true}),
			))
		})

		It("should request greedy decoding", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(received.Options.Temperature).To(Equal(0.0))
		})
	})

	When("the API returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"error":"model 'llama2:13b-chat' not found"}`))
		})

		It("should return an upstream failure", func() {
			Expect(KindOf(err)).To(Equal(KindUpstream))
			Expect(err.Error()).To(ContainSubstring("status 404"))
		})
	})

	When("the API returns garbage", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `not json`))
		})

		It("should return an upstream failure", func() {
			Expect(KindOf(err)).To(Equal(KindUpstream))
		})
	})
})

var _ = Describe("NewOllama", func() {
	It("should apply defaults", func() {
		o, err := NewOllama("", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(o.baseURL).To(Equal("http://localhost:11434"))
		Expect(o.model).To(Equal("llama2:13b-chat"))
		Expect(o.Close()).To(Succeed())
	})
})

var _ = Describe("NewGemini", func() {
	It("should require an API key", func() {
		_, err := NewGemini("", "")
		Expect(err).To(MatchError(ContainSubstring("api key is required")))
	})
})
