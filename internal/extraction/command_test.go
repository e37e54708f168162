package extraction

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const fakeGeneratorEnv = "EXTRACTION_FAKE_GENERATOR"

// runFakeGenerator answers JSON-line requests the way a model script would:
// the prompt echoed, then an object built from the sampling options.
func runFakeGenerator(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	enc := json.NewEncoder(out)
	for scanner.Scan() {
		var req commandRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			_ = enc.Encode(commandResponse{Error: "bad request line"})
			continue
		}
		switch {
		case strings.Contains(req.Prompt, "FAIL"):
			_ = enc.Encode(commandResponse{Error: "CUDA out of memory"})
		case strings.Contains(req.Prompt, "HANG"):
			time.Sleep(time.Minute)
		case strings.Contains(req.Prompt, "EXIT"):
			os.Exit(3)
		default:
			_ = enc.Encode(commandResponse{
				Completion: req.Prompt + fmt.Sprintf(` {"max_new_tokens": %d}`, req.Sampling.MaxNewTokens),
			})
		}
	}
}

var _ = Describe("Command", func() {
	var (
		command *Command
	)

	BeforeEach(func() {
		Expect(os.Setenv(fakeGeneratorEnv, "1")).To(Succeed())
		var err error
		command, err = NewCommand([]string{os.Args[0], "-test.run=^TestExtraction$"})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.Unsetenv(fakeGeneratorEnv)).To(Succeed())
		_ = command.Close()
	})

	It("should return the process completion", func() {
		completion, err := command.Generate(context.Background(), "PROMPT"+Delimiter, DefaultSampling())
		Expect(err).NotTo(HaveOccurred())
		Expect(completion).To(Equal("PROMPT" + Delimiter + ` {"max_new_tokens": 2048}`))
	})

	It("should handle several requests on one process", func() {
		for i := 0; i < 3; i++ {
			cfg := DefaultSampling()
			cfg.MaxNewTokens = 100 + i
			completion, err := command.Generate(context.Background(), "multi\nline\nprompt"+Delimiter, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(completion).To(HaveSuffix(fmt.Sprintf(`{"max_new_tokens": %d}`, 100+i)))
		}
	})

	It("should report errors from the process as upstream failures", func() {
		_, err := command.Generate(context.Background(), "FAIL", DefaultSampling())
		Expect(KindOf(err)).To(Equal(KindUpstream))
		Expect(err.Error()).To(ContainSubstring("CUDA out of memory"))

		_, err = command.Generate(context.Background(), "ok", DefaultSampling())
		Expect(err).NotTo(HaveOccurred())
	})

	It("should stop using a process that exited", func() {
		_, err := command.Generate(context.Background(), "EXIT", DefaultSampling())
		Expect(KindOf(err)).To(Equal(KindUpstream))

		_, err = command.Generate(context.Background(), "ok", DefaultSampling())
		Expect(err).To(MatchError(ContainSubstring("not running")))
	})

	It("should abandon a request when the context ends", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := command.Generate(ctx, "HANG", DefaultSampling())
		Expect(err).To(MatchError(context.DeadlineExceeded))
		Expect(KindOf(err)).To(Equal(KindUpstream))

		_, err = command.Generate(context.Background(), "ok", DefaultSampling())
		Expect(err).To(MatchError(ContainSubstring("abandoned request")))
	})

	It("should close after an abandoned request once the pending read ends", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := command.Generate(ctx, "HANG", DefaultSampling())
		Expect(err).To(MatchError(context.DeadlineExceeded))

		closed := make(chan error, 1)
		go func() {
			closed <- command.Close()
		}()
		Eventually(closed, 2*time.Second).Should(Receive())
		Expect(command.reading).To(BeClosed())
	})
})

var _ = Describe("NewCommand", func() {
	It("should require a command", func() {
		_, err := NewCommand(nil)
		Expect(err).To(MatchError(ContainSubstring("command is required")))
	})

	It("should fail when the binary does not exist", func() {
		_, err := NewCommand([]string{"/nonexistent/model-server"})
		Expect(err).To(HaveOccurred())
	})
})
