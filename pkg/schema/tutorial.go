package schema

import "time"

// TutorialRequest is the JSON payload accepted by the HTTP boundary and the
// MCP tutorial.generate tool.
type TutorialRequest struct {
	RepoURL         string   `json:"repo_url"`
	Language        string   `json:"language,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	MaxFileSize     int64    `json:"max_file_size,omitempty"`
	OutputDir       string   `json:"output_dir,omitempty"`
}

// Abstraction is one core concept identified in the codebase. FileIndices
// refer into the fetched file list of the same run.
type Abstraction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	FileIndices []int  `json:"file_indices,omitempty"`
}

// Relationship is a directed edge between two abstractions, by index.
type Relationship struct {
	From  int    `json:"from"`
	To    int    `json:"to"`
	Label string `json:"label"`
}

// RelationshipAnalysis is the output of the relationship-analysis step:
// a prose summary plus the edges used for the index diagram.
type RelationshipAnalysis struct {
	Summary string         `json:"summary"`
	Details []Relationship `json:"details"`
}

// ChapterFile pairs a generated chapter filename with its Markdown content.
type ChapterFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Tutorial is the pipeline's final result.
type Tutorial struct {
	Title       string    `json:"title"`
	ProjectName string    `json:"project_name"`
	RepoURL     string    `json:"repo_url"`
	Language    string    `json:"language"`
	Chapters    []string  `json:"chapters"` // chapter filenames, in reading order
	OutputDir   string    `json:"output_dir"`
	GeneratedAt time.Time `json:"generated_at"`
}

// RunStatus enumerates the lifecycle states of a persisted generation run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)
