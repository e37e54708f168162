package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-formatter/internal/document"
	"github.com/zombor/invoice-formatter/internal/extraction"
	"github.com/zombor/invoice-formatter/internal/invoice"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("invoice-formatter")
	var (
		mode           = fs.StringLong("mode", "http", "Transport: 'http' or 'stdio'")
		port           = fs.IntLong("port", 5000, "HTTP server port")
		generatorType  = fs.StringLong("generator", "gemini", "Generator backend: 'gemini', 'ollama' or 'command'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llama2:13b-chat", "Ollama model name")
		command        = fs.StringLong("command", "", "Generator process command line, e.g. 'python3 generate.py --model llama-2-13b-chat'")
		slots          = fs.IntLong("generator-slots", 1, "Concurrent requests allowed into the generator (command is always 1)")
		temperature    = fs.Float64Long("temperature", 0.7, "Sampling temperature")
		greedy         = fs.BoolLong("greedy", "Disable sampling and decode greedily")
		topP           = fs.Float64Long("top-p", 0.95, "Nucleus sampling probability mass")
		topK           = fs.IntLong("top-k", 40, "Top-k sampling cutoff (0 disables)")
		maxNewTokens   = fs.IntLong("max-new-tokens", 2048, "Maximum tokens to generate")
		requestTimeout = fs.DurationLong("request-timeout", 0, "Per-request deadline, e.g. 2m (0 for none)")
		maxUploadMB    = fs.IntLong("max-upload-mb", 50, "Maximum upload size in MB")
		journalPath    = fs.StringLong("journal", "", "Extraction journal database path (empty disables the journal)")
		corsOrigins    = fs.StringLong("cors-origins", "", "Comma-separated allowed CORS origins (empty allows all)")
		logFormat      = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_FORMATTER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, err := newLogger(*logFormat, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	sampling := extraction.SamplingConfig{
		Temperature:  *temperature,
		DoSample:     !*greedy,
		TopP:         *topP,
		TopK:         *topK,
		MaxNewTokens: *maxNewTokens,
	}
	if err := sampling.Validate(); err != nil {
		slog.Error("Invalid sampling configuration", "error", err)
		os.Exit(1)
	}

	// Initialize generator based on type
	var (
		generator     extraction.Generator
		canTranscribe bool
	)
	switch *generatorType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini generator...", "model", *geminiModel)
		gemini, err := extraction.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		generator, canTranscribe = gemini, true
	case "ollama":
		slog.Info("Initializing Ollama generator...", "url", *ollamaURL, "model", *ollamaModel)
		generator, err = extraction.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	case "command":
		slog.Info("Starting generator process...", "command", *command)
		generator, err = extraction.NewCommand(strings.Fields(*command))
		if err != nil {
			slog.Error("Failed to start generator process", "error", err)
			os.Exit(1)
		}
		*slots = 1
	default:
		slog.Error("Invalid generator type", "type", *generatorType, "valid", "gemini, ollama or command")
		os.Exit(1)
	}
	serialized := extraction.Serialize(generator, *slots)
	defer serialized.Close()

	// Image transcription shares the generator slots
	var transcriber document.Transcriber
	if canTranscribe {
		transcriber = serialized
	}

	shapes, err := extraction.NewShapeChecker()
	if err != nil {
		slog.Error("Failed to compile invoice shape schema", "error", err)
		os.Exit(1)
	}

	var journal invoice.Journal = invoice.NopJournal{}
	if *journalPath != "" {
		slog.Info("Initializing journal...", "path", *journalPath)
		journal, err = invoice.NewBoltJournal(*journalPath)
		if err != nil {
			slog.Error("Failed to initialize journal", "error", err)
			os.Exit(1)
		}
	}
	defer journal.Close()

	service := invoice.NewService(
		extraction.NewExtractor(serialized, sampling),
		document.NewReader(transcriber),
		shapes,
		journal,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "http":
		server := invoice.NewServer(service, invoice.Config{
			RequestTimeout: *requestTimeout,
			MaxUploadBytes: int64(*maxUploadMB) << 20,
			CORSOrigins:    splitList(*corsOrigins),
		})
		err = server.Start(ctx, fmt.Sprintf(":%d", *port))
	case "stdio":
		slog.Info("Reading invoices from stdin, one per line")
		err = invoice.NewLineServer(service, *requestTimeout).Serve(ctx, os.Stdin, os.Stdout)
	default:
		slog.Error("Invalid mode", "mode", *mode, "valid", "http or stdio")
		os.Exit(1)
	}
	if err != nil && ctx.Err() == nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}

// newLogger builds the process logger. Logs go to stderr so stdio mode keeps
// stdout for records.
func newLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (valid: text, json)", format)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
