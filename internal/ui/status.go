package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// StatusInfo describes a project's index and the services it talks to.
type StatusInfo struct {
	ProjectName string `json:"project_name"`
	ProjectDir  string `json:"project_dir"`
	State       string `json:"state"` // "not_built", "building", "ready"

	BuildID        string    `json:"build_id,omitempty"`
	Documents      int       `json:"documents"`
	Nodes          int       `json:"nodes"`
	Dimensions     int       `json:"dimensions,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	LastBuilt      time.Time `json:"last_built,omitempty"`
	IndexSize      int64     `json:"index_size"`
	InputFiles     int       `json:"input_files"`

	BuildStage    string  `json:"build_stage,omitempty"`
	BuildProgress float64 `json:"build_progress,omitempty"`
	BuildError    string  `json:"build_error,omitempty"`

	EmbedderType   string `json:"embedder_type"`
	EmbedderStatus string `json:"embedder_status"` // "ready", "offline", "error"
	EmbedderModel  string `json:"embedder_model,omitempty"`
	LLMURL         string `json:"llm_url"`
	LLMModel       string `json:"llm_model"`

	Queries *QueryStats `json:"queries,omitempty"`
}

// QueryStats summarises the questions a project has answered.
type QueryStats struct {
	Total           int64     `json:"total"`
	Answered        int64     `json:"answered"`
	NoContext       int64     `json:"no_context"`
	Failed          int64     `json:"failed"`
	Latency         []Count   `json:"latency,omitempty"`
	TopTerms        []Count   `json:"top_terms,omitempty"`
	RecentNoContext []string  `json:"recent_no_context,omitempty"`
	Since           time.Time `json:"since"`
}

// Count is a labelled counter, kept in display order.
type Count struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index Status: "+info.ProjectName))

	_, _ = fmt.Fprintf(r.out, "  State:        %s\n", r.renderStatus(info.State))
	_, _ = fmt.Fprintf(r.out, "  Directory:    %s\n", info.ProjectDir)
	_, _ = fmt.Fprintf(r.out, "  Input files:  %d\n", info.InputFiles)
	if info.BuildStage != "" {
		_, _ = fmt.Fprintf(r.out, "  Building:     %s (%.0f%%)\n", info.BuildStage, info.BuildProgress)
	}
	if info.BuildError != "" {
		_, _ = fmt.Fprintf(r.out, "  Last error:   %s\n", r.styles.Error.Render(info.BuildError))
	}
	_, _ = fmt.Fprintln(r.out)

	if info.BuildID != "" {
		_, _ = fmt.Fprintln(r.out, "  Index:")
		_, _ = fmt.Fprintf(r.out, "    Build:      %s\n", info.BuildID)
		_, _ = fmt.Fprintf(r.out, "    Documents:  %d\n", info.Documents)
		_, _ = fmt.Fprintf(r.out, "    Nodes:      %d\n", info.Nodes)
		_, _ = fmt.Fprintf(r.out, "    Model:      %s (%d dims)\n", info.EmbeddingModel, info.Dimensions)
		_, _ = fmt.Fprintf(r.out, "    Size:       %s\n", FormatBytes(info.IndexSize))
		if !info.LastBuilt.IsZero() {
			_, _ = fmt.Fprintf(r.out, "    Built:      %s\n", formatTime(info.LastBuilt))
		}
		_, _ = fmt.Fprintln(r.out)
	}

	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	_, _ = fmt.Fprintf(r.out, "    Type:   %s\n", info.EmbedderType)
	_, _ = fmt.Fprintf(r.out, "    Status: %s\n", r.renderStatus(info.EmbedderStatus))
	if info.EmbedderModel != "" {
		_, _ = fmt.Fprintf(r.out, "    Model:  %s\n", info.EmbedderModel)
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Language model:")
	_, _ = fmt.Fprintf(r.out, "    URL:    %s\n", info.LLMURL)
	_, _ = fmt.Fprintf(r.out, "    Model:  %s\n", info.LLMModel)

	if q := info.Queries; q != nil && q.Total > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "  Questions (since %s):\n", q.Since.Format("2006-01-02"))
		_, _ = fmt.Fprintf(r.out, "    Total:      %d (%d answered, %d without context, %d failed)\n",
			q.Total, q.Answered, q.NoContext, q.Failed)
		if len(q.Latency) > 0 {
			_, _ = fmt.Fprintf(r.out, "    Latency:    %s\n", joinCounts(q.Latency))
		}
		if len(q.TopTerms) > 0 {
			_, _ = fmt.Fprintf(r.out, "    Top terms:  %s\n", joinCounts(q.TopTerms))
		}
		for _, question := range q.RecentNoContext {
			_, _ = fmt.Fprintf(r.out, "    Unanswered: %s\n", r.styles.Dim.Render(question))
		}
	}

	return nil
}

func joinCounts(counts []Count) string {
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%s %d", c.Label, c.Count)
	}
	return strings.Join(parts, ", ")
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// renderStatus formats a status string with color.
func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "offline", "building", "not_built":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
