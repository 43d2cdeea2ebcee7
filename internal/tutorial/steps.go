package tutorial

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/avelez/codetour/internal/engine"
	"github.com/avelez/codetour/internal/github"
	"github.com/avelez/codetour/internal/llm"
	"github.com/avelez/codetour/internal/logging"
	"github.com/avelez/codetour/pkg/schema"
)

// Shared context keys used by the pipeline steps.
const (
	KeyRepoURL         = "repo_url"
	KeyLanguage        = "language"
	KeyIncludePatterns = "include_patterns"
	KeyExcludePatterns = "exclude_patterns"
	KeyMaxFileSize     = "max_file_size"
	KeyOutputDir       = "output_dir"
	KeyFiles           = "files"
	KeyProjectName     = "project_name"
	KeyAbstractions    = "abstractions"
	KeyRelationships   = "relationships"
	KeyChapterOrder    = "chapter_order"
	KeyChapters        = "chapters"
	KeyFinalOutputDir  = "final_output_dir"
)

// Retry policies per step. Fetching retries fast; LLM steps wait out
// transient provider errors; combining writes locally and never retries.
var (
	fetchRetry   = engine.RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}
	llmRetry     = engine.RetryPolicy{MaxAttempts: 5, Delay: 20 * time.Second}
	combineRetry = engine.RetryPolicy{MaxAttempts: 1}
)

// rethrowFallback is the default fallback: re-raise the final attempt's error.
type rethrowFallback struct{}

func (rethrowFallback) ExecFallback(ctx context.Context, prepRes any, execErr error) (any, error) {
	return nil, execErr
}

func filesFrom(shared *engine.Context) ([]github.File, error) {
	v, ok := shared.Get(KeyFiles)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeExecution, "no fetched files in shared context")
	}
	files, ok := v.([]github.File)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "unexpected type %T for fetched files", v)
	}
	if len(files) == 0 {
		return nil, schema.NewError(schema.ErrCodeExecution, "repository yielded no files after filtering")
	}
	return files, nil
}

func abstractionsFrom(shared *engine.Context) ([]schema.Abstraction, error) {
	v, ok := shared.Get(KeyAbstractions)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeExecution, "no abstractions in shared context")
	}
	abstractions, ok := v.([]schema.Abstraction)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "unexpected type %T for abstractions", v)
	}
	return abstractions, nil
}

// cacheAllowed disables the prompt cache on retries: a malformed response
// that got cached on the first attempt must not be replayed on the second.
func cacheAllowed(ctx context.Context) bool {
	return logging.Attempt(ctx) <= 1
}

// --- FetchRepo ---

// FetchRepoStep crawls the target repository and stores the filtered file
// set in the shared context.
type FetchRepoStep struct {
	rethrowFallback
	gh *github.Client
}

func NewFetchRepoStep(gh *github.Client) *FetchRepoStep { return &FetchRepoStep{gh: gh} }

func (s *FetchRepoStep) Name() string { return "fetch_repo" }

type fetchPrep struct {
	url  string
	opts github.FetchOptions
}

func (s *FetchRepoStep) Prep(ctx context.Context, shared *engine.Context) (any, error) {
	repoURL := shared.GetString(KeyRepoURL)
	if repoURL == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "repository URL is required")
	}
	return fetchPrep{
		url: repoURL,
		opts: github.FetchOptions{
			IncludePatterns: shared.GetStringSlice(KeyIncludePatterns),
			ExcludePatterns: shared.GetStringSlice(KeyExcludePatterns),
			MaxFileSize:     shared.GetInt64(KeyMaxFileSize),
		},
	}, nil
}

func (s *FetchRepoStep) Exec(ctx context.Context, prepRes any) (any, error) {
	prep := prepRes.(fetchPrep)
	return s.gh.FetchRepository(ctx, prep.url, prep.opts)
}

func (s *FetchRepoStep) Post(ctx context.Context, shared *engine.Context, prepRes, execRes any) (any, error) {
	result := execRes.(*github.FetchResult)
	shared.Set(KeyFiles, result.Files)
	if shared.GetString(KeyProjectName) == "" {
		shared.Set(KeyProjectName, result.Locator.Repo)
	}
	return len(result.Files), nil
}

// --- IdentifyAbstractions ---

// IdentifyAbstractionsStep asks the model for the codebase's core concepts.
type IdentifyAbstractionsStep struct {
	rethrowFallback
	gen      llm.Generator
	useCache bool
}

func NewIdentifyAbstractionsStep(gen llm.Generator, useCache bool) *IdentifyAbstractionsStep {
	return &IdentifyAbstractionsStep{gen: gen, useCache: useCache}
}

func (s *IdentifyAbstractionsStep) Name() string { return "identify_abstractions" }

type identifyPrep struct {
	prompt    string
	fileCount int
}

func (s *IdentifyAbstractionsStep) Prep(ctx context.Context, shared *engine.Context) (any, error) {
	files, err := filesFrom(shared)
	if err != nil {
		return nil, err
	}
	return identifyPrep{
		prompt:    identifyAbstractionsPrompt(shared.GetString(KeyProjectName), shared.GetString(KeyLanguage), files),
		fileCount: len(files),
	}, nil
}

func (s *IdentifyAbstractionsStep) Exec(ctx context.Context, prepRes any) (any, error) {
	prep := prepRes.(identifyPrep)
	response, err := s.gen.Generate(ctx, prep.prompt, s.useCache && cacheAllowed(ctx))
	if err != nil {
		return nil, err
	}
	return parseAbstractions(response, prep.fileCount)
}

func (s *IdentifyAbstractionsStep) Post(ctx context.Context, shared *engine.Context, prepRes, execRes any) (any, error) {
	abstractions := execRes.([]schema.Abstraction)
	shared.Set(KeyAbstractions, abstractions)
	return len(abstractions), nil
}

// --- AnalyzeRelationships ---

// AnalyzeRelationshipsStep derives the project summary and the interaction
// edges between abstractions.
type AnalyzeRelationshipsStep struct {
	rethrowFallback
	gen      llm.Generator
	useCache bool
}

func NewAnalyzeRelationshipsStep(gen llm.Generator, useCache bool) *AnalyzeRelationshipsStep {
	return &AnalyzeRelationshipsStep{gen: gen, useCache: useCache}
}

func (s *AnalyzeRelationshipsStep) Name() string { return "analyze_relationships" }

type analyzePrep struct {
	prompt           string
	abstractionCount int
}

func (s *AnalyzeRelationshipsStep) Prep(ctx context.Context, shared *engine.Context) (any, error) {
	files, err := filesFrom(shared)
	if err != nil {
		return nil, err
	}
	abstractions, err := abstractionsFrom(shared)
	if err != nil {
		return nil, err
	}
	return analyzePrep{
		prompt:           analyzeRelationshipsPrompt(shared.GetString(KeyProjectName), shared.GetString(KeyLanguage), abstractions, files),
		abstractionCount: len(abstractions),
	}, nil
}

func (s *AnalyzeRelationshipsStep) Exec(ctx context.Context, prepRes any) (any, error) {
	prep := prepRes.(analyzePrep)
	response, err := s.gen.Generate(ctx, prep.prompt, s.useCache && cacheAllowed(ctx))
	if err != nil {
		return nil, err
	}
	return parseRelationships(response, prep.abstractionCount)
}

func (s *AnalyzeRelationshipsStep) Post(ctx context.Context, shared *engine.Context, prepRes, execRes any) (any, error) {
	analysis := execRes.(*schema.RelationshipAnalysis)
	shared.Set(KeyRelationships, analysis)
	return len(analysis.Details), nil
}

// --- OrderChapters ---

// OrderChaptersStep decides the reading order of the abstractions.
type OrderChaptersStep struct {
	rethrowFallback
	gen      llm.Generator
	useCache bool
}

func NewOrderChaptersStep(gen llm.Generator, useCache bool) *OrderChaptersStep {
	return &OrderChaptersStep{gen: gen, useCache: useCache}
}

func (s *OrderChaptersStep) Name() string { return "order_chapters" }

func (s *OrderChaptersStep) Prep(ctx context.Context, shared *engine.Context) (any, error) {
	abstractions, err := abstractionsFrom(shared)
	if err != nil {
		return nil, err
	}
	analysis, ok := shared.Get(KeyRelationships)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeExecution, "no relationship analysis in shared context")
	}
	return analyzePrep{
		prompt:           orderChaptersPrompt(shared.GetString(KeyProjectName), shared.GetString(KeyLanguage), abstractions, analysis.(*schema.RelationshipAnalysis)),
		abstractionCount: len(abstractions),
	}, nil
}

func (s *OrderChaptersStep) Exec(ctx context.Context, prepRes any) (any, error) {
	prep := prepRes.(analyzePrep)
	response, err := s.gen.Generate(ctx, prep.prompt, s.useCache && cacheAllowed(ctx))
	if err != nil {
		return nil, err
	}
	return parseChapterOrder(response, prep.abstractionCount)
}

func (s *OrderChaptersStep) Post(ctx context.Context, shared *engine.Context, prepRes, execRes any) (any, error) {
	order := execRes.([]int)
	shared.Set(KeyChapterOrder, order)
	return order, nil
}

// --- WriteChapters ---

// WriteChaptersStep generates one Markdown chapter per abstraction, in
// reading order, feeding each chapter the ones written before it.
type WriteChaptersStep struct {
	rethrowFallback
	gen      llm.Generator
	useCache bool
}

func NewWriteChaptersStep(gen llm.Generator, useCache bool) *WriteChaptersStep {
	return &WriteChaptersStep{gen: gen, useCache: useCache}
}

func (s *WriteChaptersStep) Name() string { return "write_chapters" }

// previousContextLimit caps how much of the already-written chapters is fed
// back into each prompt.
const previousContextLimit = 8000

type writePrep struct {
	projectName  string
	language     string
	abstractions []schema.Abstraction
	order        []int
	files        []github.File
	fullListing  string
}

func (s *WriteChaptersStep) Prep(ctx context.Context, shared *engine.Context) (any, error) {
	files, err := filesFrom(shared)
	if err != nil {
		return nil, err
	}
	abstractions, err := abstractionsFrom(shared)
	if err != nil {
		return nil, err
	}
	orderVal, ok := shared.Get(KeyChapterOrder)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeExecution, "no chapter order in shared context")
	}
	order := orderVal.([]int)

	var listing strings.Builder
	for i, idx := range order {
		fmt.Fprintf(&listing, "%d. [%s](%s)\n", i+1, abstractions[idx].Name, chapterFilename(i+1, abstractions[idx].Name))
	}

	return writePrep{
		projectName:  shared.GetString(KeyProjectName),
		language:     shared.GetString(KeyLanguage),
		abstractions: abstractions,
		order:        order,
		files:        files,
		fullListing:  listing.String(),
	}, nil
}

func (s *WriteChaptersStep) Exec(ctx context.Context, prepRes any) (any, error) {
	prep := prepRes.(writePrep)
	useCache := s.useCache && cacheAllowed(ctx)

	var written []string
	for i, idx := range prep.order {
		abstraction := prep.abstractions[idx]

		var fileCtx strings.Builder
		for _, fi := range abstraction.FileIndices {
			f := prep.files[fi]
			fmt.Fprintf(&fileCtx, "--- %s ---\n%s\n\n", f.Path, f.Content)
		}

		prompt := writeChapterPrompt(chapterPromptInput{
			ProjectName:     prep.projectName,
			Language:        prep.language,
			ChapterNum:      i + 1,
			Abstraction:     abstraction,
			FullListing:     prep.fullListing,
			PreviousContext: tail(strings.Join(written, "\n\n"), previousContextLimit),
			FileContext:     fileCtx.String(),
		})

		content, err := s.gen.Generate(ctx, prompt, useCache)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeLLM, "write chapter %d (%s)", i+1, abstraction.Name).WithCause(err)
		}
		written = append(written, ensureChapterHeading(content, i+1, abstraction.Name))
	}
	return written, nil
}

func (s *WriteChaptersStep) Post(ctx context.Context, shared *engine.Context, prepRes, execRes any) (any, error) {
	chapters := execRes.([]string)
	shared.Set(KeyChapters, chapters)
	return len(chapters), nil
}

// ensureChapterHeading makes sure the chapter opens with its canonical
// heading, repairing or prepending it when the model drifted.
func ensureChapterHeading(content string, num int, name string) string {
	heading := fmt.Sprintf("# Chapter %d: %s", num, name)
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, fmt.Sprintf("# Chapter %d", num)) {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "#") {
		lines[0] = heading
		return strings.Join(lines, "\n")
	}
	return heading + "\n\n" + trimmed
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}

// --- CombineTutorial ---

// CombineTutorialStep assembles the index, writes everything to disk and
// produces the final Tutorial.
type CombineTutorialStep struct {
	rethrowFallback
	writer *Writer
}

func NewCombineTutorialStep(writer *Writer) *CombineTutorialStep {
	return &CombineTutorialStep{writer: writer}
}

func (s *CombineTutorialStep) Name() string { return "combine_tutorial" }

type combinePrep struct {
	projectName string
	repoURL     string
	language    string
	outputPath  string
	index       string
	chapters    []schema.ChapterFile
}

func (s *CombineTutorialStep) Prep(ctx context.Context, shared *engine.Context) (any, error) {
	abstractions, err := abstractionsFrom(shared)
	if err != nil {
		return nil, err
	}
	analysisVal, ok := shared.Get(KeyRelationships)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeExecution, "no relationship analysis in shared context")
	}
	analysis := analysisVal.(*schema.RelationshipAnalysis)
	orderVal, ok := shared.Get(KeyChapterOrder)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeExecution, "no chapter order in shared context")
	}
	order := orderVal.([]int)
	chaptersVal, ok := shared.Get(KeyChapters)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeExecution, "no chapters in shared context")
	}
	contents := chaptersVal.([]string)

	projectName := shared.GetString(KeyProjectName)
	repoURL := shared.GetString(KeyRepoURL)
	outputBase := shared.GetString(KeyOutputDir)
	if outputBase == "" {
		outputBase = "output"
	}

	var index strings.Builder
	fmt.Fprintf(&index, "# Tutorial: %s\n\n", projectName)
	fmt.Fprintf(&index, "%s\n\n", analysis.Summary)
	fmt.Fprintf(&index, "**Source Repository:** [%s](%s)\n\n", repoURL, repoURL)
	fmt.Fprintf(&index, "```mermaid\n%s\n```\n\n", mermaidFlowchart(abstractions, analysis.Details))
	index.WriteString("## Chapters\n\n")

	var chapterFiles []schema.ChapterFile
	for i, idx := range order {
		if i >= len(contents) {
			break
		}
		name := abstractions[idx].Name
		filename := chapterFilename(i+1, name)
		fmt.Fprintf(&index, "%d. [%s](%s)\n", i+1, name, filename)

		content := contents[i]
		if !strings.HasSuffix(content, "\n\n") {
			content += "\n\n"
		}
		chapterFiles = append(chapterFiles, schema.ChapterFile{
			Filename: filename,
			Content:  content + attribution,
		})
	}
	index.WriteString("\n\n" + attribution)

	return combinePrep{
		projectName: projectName,
		repoURL:     repoURL,
		language:    shared.GetString(KeyLanguage),
		outputPath:  filepath.Join(outputBase, projectName),
		index:       index.String(),
		chapters:    chapterFiles,
	}, nil
}

func (s *CombineTutorialStep) Exec(ctx context.Context, prepRes any) (any, error) {
	prep := prepRes.(combinePrep)
	return s.writer.Write(prep.outputPath, prep.index, prep.chapters)
}

func (s *CombineTutorialStep) Post(ctx context.Context, shared *engine.Context, prepRes, execRes any) (any, error) {
	prep := prepRes.(combinePrep)
	outputPath := execRes.(string)
	shared.Set(KeyFinalOutputDir, outputPath)

	chapters := make([]string, 0, len(prep.chapters))
	for _, ch := range prep.chapters {
		chapters = append(chapters, ch.Filename)
	}
	return &schema.Tutorial{
		Title:       prep.projectName + " Tutorial",
		ProjectName: prep.projectName,
		RepoURL:     prep.repoURL,
		Language:    prep.language,
		Chapters:    chapters,
		OutputDir:   outputPath,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
