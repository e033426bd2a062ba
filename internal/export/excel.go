package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/ongoingai/llmcompare/internal/spans"
)

const (
	summarySheet  = "Summary"
	detailedSheet = "Detailed Data"
)

var (
	summaryHeader = []any{
		"Group", "Start Time", "Number of Calls", "Models Used",
		"Prompt Tokens", "Completion Tokens", "Total Tokens",
		"Average Duration (ms)", "Total Cost (USD)",
	}
	detailedHeader = []any{
		"Group", "Call", "Variant", "Start Time", "Model",
		"Prompt Tokens", "Completion Tokens", "Total Tokens",
		"Duration (ms)", "Temperature", "Max Tokens", "Cost", "Status",
	}
)

func writeExcel(path string, doc Document) (err error) {
	book := excelize.NewFile()
	defer func() {
		if closeErr := book.Close(); err == nil {
			err = closeErr
		}
	}()

	if err := book.SetSheetName(book.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := book.NewSheet(detailedSheet); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}

	summaryRows := [][]any{summaryHeader}
	for _, group := range doc.Groups {
		summary := group.Summary
		summaryRows = append(summaryRows, []any{
			group.ID,
			formatKey(group.Key),
			summary.CallCount,
			modelList(summary),
			summary.PromptTokens,
			summary.CompletionTokens,
			summary.TotalTokens,
			summary.AvgDurationMS,
			costCell(summary.CostReported, summary.TotalCostUSD.InexactFloat64()),
		})
	}
	if err := writeSheet(book, summarySheet, summaryRows); err != nil {
		return err
	}

	detailedRows := [][]any{detailedHeader}
	for _, row := range callRows(doc.Groups) {
		call := row.Detail
		detailedRows = append(detailedRows, []any{
			row.Group,
			row.Call,
			row.Variant,
			row.Start,
			call.Model.Value(),
			call.PromptTokens.Value(),
			call.CompletionTokens.Value(),
			call.TotalTokens.Value(),
			call.DurationMS.Value(),
			call.Temperature.Value(),
			call.MaxTokens.Value(),
			call.Cost.Value(),
			call.Status.Value(),
		})
	}
	if err := writeSheet(book, detailedSheet, detailedRows); err != nil {
		return err
	}

	return book.SaveAs(path)
}

func writeSheet(book *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := book.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func costCell(reported bool, value float64) any {
	if !reported {
		return spans.Missing
	}
	return value
}
