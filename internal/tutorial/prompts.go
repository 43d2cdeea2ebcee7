package tutorial

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/avelez/codetour/internal/github"
	"github.com/avelez/codetour/pkg/schema"
)

const maxAbstractions = 10

// filesContext renders the fetched files as an indexed listing so the model
// can refer back to them by number.
func filesContext(files []github.File) string {
	var b strings.Builder
	for i, f := range files {
		fmt.Fprintf(&b, "--- File %d: %s ---\n%s\n\n", i, f.Path, f.Content)
	}
	return b.String()
}

func fileListing(files []github.File) string {
	var b strings.Builder
	for i, f := range files {
		fmt.Fprintf(&b, "- %d # %s\n", i, f.Path)
	}
	return b.String()
}

func languageInstruction(language string) string {
	if language == "" || strings.EqualFold(language, "english") {
		return ""
	}
	return fmt.Sprintf("IMPORTANT: Generate all names, descriptions and prose in %s. Keep code, file paths and JSON keys in English.\n\n", titleCase(language))
}

func titleCase(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func identifyAbstractionsPrompt(projectName, language string, files []github.File) string {
	return fmt.Sprintf(`%sFor the project `+"`%s`"+`:

Codebase Context:
%s

Analyze the codebase context.
Identify the top 5-%d core most important abstractions to help those new to the codebase.

For each abstraction, provide:
1. A concise "name".
2. A beginner-friendly "description" explaining what it is with a simple analogy, in around 100 words.
3. A list of relevant "file_indices" (integers) using the file listing below.

List of file indices and paths present in the context:
%s
Respond with ONLY a JSON array in this format:

[
  {"name": "Query Processing", "description": "Explains what the abstraction does. It's like a central dispatcher routing requests.", "file_indices": [0, 3]}
]`,
		languageInstruction(language), projectName, filesContext(files), maxAbstractions, fileListing(files))
}

func analyzeRelationshipsPrompt(projectName, language string, abstractions []schema.Abstraction, files []github.File) string {
	var listing strings.Builder
	for i, a := range abstractions {
		fmt.Fprintf(&listing, "- Index %d: %s (%s)\n", i, a.Name, a.Description)
	}
	return fmt.Sprintf(`%sBased on the following abstractions and relevant code snippets from the project `+"`%s`"+`:

List of Abstraction Indices and Names:
%s
Codebase Context:
%s

Please provide:
1. A high-level "summary" of the project's main purpose and functionality in a few beginner-friendly sentences. Use markdown formatting with **bold** and *italic* text to highlight important concepts.
2. A list ("details") of the key interactions between these abstractions. For each interaction, specify "from" and "to" as abstraction indices and a brief "label" for the interaction in just a few words (e.g. "Manages", "Inherits", "Uses").
   Simplify the relationships and exclude those that are not important. Make sure EVERY abstraction appears in at least one relationship (either as source or target).

Respond with ONLY a JSON object in this format:

{
  "summary": "A brief, simple explanation of the project.",
  "details": [
    {"from": 0, "to": 1, "label": "Manages"}
  ]
}`,
		languageInstruction(language), projectName, listing.String(), filesContext(relevantFiles(abstractions, files)))
}

func orderChaptersPrompt(projectName, language string, abstractions []schema.Abstraction, analysis *schema.RelationshipAnalysis) string {
	var listing strings.Builder
	for i, a := range abstractions {
		fmt.Fprintf(&listing, "- %d # %s\n", i, a.Name)
	}
	var rels strings.Builder
	for _, r := range analysis.Details {
		if r.From >= 0 && r.From < len(abstractions) && r.To >= 0 && r.To < len(abstractions) {
			fmt.Fprintf(&rels, "- From %d (%s) to %d (%s): %s\n", r.From, abstractions[r.From].Name, r.To, abstractions[r.To].Name, r.Label)
		}
	}
	return fmt.Sprintf(`%sGiven the following project abstractions and their relationships for the project `+"`%s`"+`:

Abstractions (Index # Name):
%s
Context about relationships and project summary:
%s

Relationships:
%s
If you are going to make a tutorial for `+"`%s`"+`, what is the best order to explain these abstractions, from first to last?
Ideally, first explain those that are the most important or foundational, perhaps user-facing concepts or entry points. Then move to more detailed, lower-level implementation details.

Respond with ONLY a JSON array of abstraction indices, covering every abstraction exactly once:

[2, 0, 1]`,
		languageInstruction(language), projectName, listing.String(), analysis.Summary, rels.String(), projectName)
}

type chapterPromptInput struct {
	ProjectName     string
	Language        string
	ChapterNum      int
	Abstraction     schema.Abstraction
	FullListing     string
	PreviousContext string
	FileContext     string
}

func writeChapterPrompt(in chapterPromptInput) string {
	prev := in.PreviousContext
	if prev == "" {
		prev = "This is the first chapter."
	}
	fileCtx := in.FileContext
	if fileCtx == "" {
		fileCtx = "No specific code snippets provided for this abstraction."
	}
	return fmt.Sprintf(`%sWrite a very beginner-friendly tutorial chapter (in Markdown format) for the project `+"`%s`"+` about the concept: "%s". This is Chapter %d.

Concept Details:
- Name: %s
- Description:
%s

Complete Tutorial Structure:
%s

Context from previous chapters:
%s

Relevant Code Snippets (Code itself remains unchanged):
%s

Instructions for the chapter:
- Start with a clear heading (e.g. `+"`# Chapter %d: %s`"+`). Use the provided concept name.
- If this is not the first chapter, begin with a brief transition from the previous chapter, referencing it with a proper Markdown link using its name.
- Begin with a high-level motivation explaining what problem this abstraction solves. Start with a central use case as a concrete example. Make it very minimal and friendly to beginners.
- If the abstraction is complex, break it down into key concepts and explain them one-by-one.
- Explain how to use this abstraction to solve the use case. Give example inputs and outputs for code snippets.
- Each code block should be BELOW 20 lines. Break longer blocks into smaller pieces and walk through them one-by-one, with a beginner-friendly explanation right after each block.
- Describe the internal implementation. First a step-by-step walkthrough of what happens when the abstraction is called; a simple mermaid sequenceDiagram with at most 5 participants is recommended.
- When referring to other core abstractions covered in other chapters, ALWAYS use proper Markdown links like [Chapter Title](filename.md), using the Complete Tutorial Structure above for the correct filename.
- Heavily use analogies and examples throughout to help beginners understand.
- End with a brief conclusion summarizing what was learned and a transition to the next chapter, if there is one.

Now, directly provide a super beginner-friendly Markdown output (DON'T need markdown code fences):`,
		languageInstruction(in.Language), in.ProjectName, in.Abstraction.Name, in.ChapterNum,
		in.Abstraction.Name, in.Abstraction.Description,
		in.FullListing, prev, fileCtx, in.ChapterNum, in.Abstraction.Name)
}

// relevantFiles returns the files referenced by any abstraction, falling back
// to all files when no indices were provided.
func relevantFiles(abstractions []schema.Abstraction, files []github.File) []github.File {
	seen := map[int]bool{}
	var out []github.File
	for _, a := range abstractions {
		for _, idx := range a.FileIndices {
			if idx >= 0 && idx < len(files) && !seen[idx] {
				seen[idx] = true
				out = append(out, files[idx])
			}
		}
	}
	if len(out) == 0 {
		return files
	}
	return out
}
