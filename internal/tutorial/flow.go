package tutorial

import (
	"log/slog"

	"github.com/avelez/codetour/internal/engine"
	"github.com/avelez/codetour/internal/github"
	"github.com/avelez/codetour/internal/llm"
	"github.com/avelez/codetour/pkg/schema"
)

// Default crawl filters, applied when the request leaves them unset.
var (
	DefaultIncludePatterns = []string{
		"*.py", "*.js", "*.jsx", "*.ts", "*.tsx", "*.go", "*.java",
		"*.pyi", "*.pyx", "*.c", "*.cc", "*.cpp", "*.h", "*.md", "*.rst",
		"Dockerfile", "Makefile", "*.yaml", "*.yml",
	}
	DefaultExcludePatterns = []string{
		"venv/*", ".venv/*", "*test*", "tests/*", "docs/*", "examples/*",
		"v1/*", "dist/*", "build/*", "experimental/*", "deprecated/*",
		"legacy/*", ".git/*", ".github/*", ".next/*", ".vscode/*",
		"obj/*", "bin/*", "node_modules/*", "*.log",
	}
)

// DefaultMaxFileSize is the per-file crawl limit when the request leaves it unset.
const DefaultMaxFileSize int64 = 100_000

// Config wires a tutorial generation flow.
type Config struct {
	GitHub    *github.Client
	Generator llm.Generator
	Writer    *Writer
	UseCache  bool

	// Recorder and RunID are optional; when both are set, step lifecycle
	// events are appended to the run's event log.
	Recorder EventRecorder
	RunID    string

	Logger *slog.Logger
}

// NewFlow builds the six-step generation pipeline and returns a driver ready
// to run. Each driver holds its own shared context; build one per run.
func NewFlow(cfg Config) *engine.Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wrap := func(step engine.Step) engine.Step {
		return withRecording(step, cfg.Recorder, cfg.RunID, logger)
	}

	b := engine.NewBuilder(logger)
	fetch := b.Node(wrap(NewFetchRepoStep(cfg.GitHub)), fetchRetry)
	identify := b.Node(wrap(NewIdentifyAbstractionsStep(cfg.Generator, cfg.UseCache)), llmRetry)
	analyze := b.Node(wrap(NewAnalyzeRelationshipsStep(cfg.Generator, cfg.UseCache)), llmRetry)
	order := b.Node(wrap(NewOrderChaptersStep(cfg.Generator, cfg.UseCache)), llmRetry)
	write := b.Node(wrap(NewWriteChaptersStep(cfg.Generator, cfg.UseCache)), llmRetry)
	combine := b.Node(wrap(NewCombineTutorialStep(cfg.Writer)), combineRetry)

	fetch.Then(identify).Then(analyze).Then(order).Then(write).Then(combine)

	return engine.NewDriver(fetch, logger)
}

// RunParams converts a request into the initial shared context for a run,
// filling in the default filters.
func RunParams(req *schema.TutorialRequest, outputDir string) map[string]any {
	language := req.Language
	if language == "" {
		language = "english"
	}
	include := req.IncludePatterns
	if len(include) == 0 {
		include = DefaultIncludePatterns
	}
	exclude := req.ExcludePatterns
	if len(exclude) == 0 {
		exclude = DefaultExcludePatterns
	}
	maxSize := req.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if req.OutputDir != "" {
		outputDir = req.OutputDir
	}

	return map[string]any{
		KeyRepoURL:         req.RepoURL,
		KeyLanguage:        language,
		KeyIncludePatterns: include,
		KeyExcludePatterns: exclude,
		KeyMaxFileSize:     maxSize,
		KeyOutputDir:       outputDir,
	}
}
