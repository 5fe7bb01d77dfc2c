package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// diffPreviewLines caps the inline diff shown for edit/write tools.
const diffPreviewLines = 8

// toolIcons give frequently used tools a recognizable marker.
var toolIcons = map[string]string{
	"bash":      "💻",
	"read":      "📖",
	"glob":      "🔍",
	"grep":      "🔍",
	"webfetch":  "🌐",
	"task":      "🤖",
	"todowrite": "📋",
}

// formatToolSummary renders the one-line notice for a running tool.
func formatToolSummary(tool, title string) string {
	icon, ok := toolIcons[tool]
	if !ok {
		icon = "⚙️"
	}
	if title == "" {
		return fmt.Sprintf("%s %s", icon, tool)
	}
	return fmt.Sprintf("%s %s: %s", icon, tool, title)
}

// editInput is the tool input shape shared by edit and write.
type editInput struct {
	FilePath  string `json:"filePath"`
	OldString string `json:"oldString"`
	NewString string `json:"newString"`
	Content   string `json:"content"`
}

// buildToolDiff reconstructs a unified-style diff from an edit or write
// tool input. Write tools produce additions only.
func buildToolDiff(tool string, input json.RawMessage) (filePath, diff string) {
	var in editInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", ""
	}
	var b strings.Builder
	switch tool {
	case "write":
		for _, line := range strings.Split(strings.TrimRight(in.Content, "\n"), "\n") {
			b.WriteString("+ ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	case "edit":
		for _, line := range strings.Split(strings.TrimRight(in.OldString, "\n"), "\n") {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
		for _, line := range strings.Split(strings.TrimRight(in.NewString, "\n"), "\n") {
			b.WriteString("+ ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	default:
		return in.FilePath, ""
	}
	return in.FilePath, b.String()
}

// diffPreview truncates a diff to its first lines for inline display.
func diffPreview(diff string, maxLines int) string {
	lines := strings.Split(strings.TrimRight(diff, "\n"), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	omitted := len(lines) - maxLines
	return strings.Join(lines[:maxLines], "\n") + fmt.Sprintf("\n… %d more lines", omitted)
}

// todoItem is one entry of a todowrite invocation.
type todoItem struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}

var todoIcons = map[string]string{
	"pending":     "○",
	"in_progress": "◐",
	"completed":   "●",
	"cancelled":   "⊘",
}

// renderTodos formats the full todo list with a circled status icon per
// item.
func renderTodos(input json.RawMessage) string {
	var in struct {
		Todos []todoItem `json:"todos"`
	}
	if err := json.Unmarshal(input, &in); err != nil || len(in.Todos) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("📋 Todos:\n")
	for _, item := range in.Todos {
		icon, ok := todoIcons[item.Status]
		if !ok {
			icon = "○"
		}
		fmt.Fprintf(&b, "%s %s\n", icon, item.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
