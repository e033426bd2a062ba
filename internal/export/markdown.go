package export

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ongoingai/llmcompare/internal/critique"
)

func writeMarkdown(path string, doc Document) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}()

	w := bufio.NewWriter(file)
	renderMarkdown(w, doc)
	return w.Flush()
}

func renderMarkdown(w *bufio.Writer, doc Document) {
	fmt.Fprintf(w, "# LLM Comparison Report\n\n")
	fmt.Fprintf(w, "**Generated:** %s\n\n", doc.GeneratedAt.Format("2006-01-02 15:04:05"))
	if doc.RunID != "" {
		fmt.Fprintf(w, "**Run:** `%s`\n\n", doc.RunID)
	}
	if doc.Project != "" {
		fmt.Fprintf(w, "**Project:** %s\n\n", markdownCell(doc.Project))
	}
	fmt.Fprintf(w, "**Comparison Groups:** %d\n\n", len(doc.Groups))

	for _, group := range doc.Groups {
		summary := group.Summary
		fmt.Fprintf(w, "## Group %d\n\n", group.ID)
		fmt.Fprintf(w, "**Start Time:** %s\n", formatKey(group.Key))
		fmt.Fprintf(w, "**Number of Calls:** %d\n", summary.CallCount)
		fmt.Fprintf(w, "**Models:** %s\n", markdownCell(modelList(summary)))
		fmt.Fprintf(w, "**Total Tokens:** %d | **Average Duration (ms):** %.2f | **Total Cost (USD):** %s\n\n",
			summary.TotalTokens, summary.AvgDurationMS, costText(summary))

		fmt.Fprintf(w, "| Variant | Model | Prompt Tokens | Completion Tokens | Total Tokens | Duration (ms) | Cost |\n")
		fmt.Fprintf(w, "|---------|-------|---------------|-------------------|--------------|---------------|------|\n")
		for i, entry := range group.Calls {
			call := entry.Call
			fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %s |\n",
				strings.TrimPrefix(critique.VariantLabel(i), "Variant "),
				markdownCell(call.Model.String()),
				call.PromptTokens.String(),
				call.CompletionTokens.String(),
				call.TotalTokens.String(),
				call.DurationMS.String(),
				call.Cost.String(),
			)
		}
		fmt.Fprintf(w, "\n")
	}

	if len(doc.Critiques) == 0 {
		return
	}
	ids := make([]int, 0, len(doc.Critiques))
	for id := range doc.Critiques {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fmt.Fprintf(w, "## Critique Results\n\n")
	for _, id := range ids {
		result := doc.Critiques[id]
		fmt.Fprintf(w, "### Group %d\n\n", id)
		if !result.Available {
			fmt.Fprintf(w, "_Critique unavailable (%s)._\n\n", result.Reason)
			continue
		}
		fmt.Fprintf(w, "%s\n\n", strings.TrimSpace(result.Text))
		fmt.Fprintf(w, "_Model: %s, tokens: %d, cost: $%s_\n\n", result.Model, result.TokensUsed, result.CostUSD.StringFixed(6))
	}
}

func markdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", `\|`)
	return strings.ReplaceAll(value, "\n", " ")
}
