package export

import (
	"encoding/csv"
	"os"
	"strconv"
)

var csvHeader = []string{
	"group_number",
	"call_number",
	"start_time",
	"span_id",
	"model",
	"prompt_tokens",
	"completion_tokens",
	"total_tokens",
	"duration_ms",
	"temperature",
	"max_tokens",
	"cost",
	"status",
}

func writeCSV(path string, doc Document) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range callRows(doc.Groups) {
		call := row.Detail
		record := []string{
			strconv.Itoa(row.Group),
			strconv.Itoa(row.Call),
			row.Start,
			call.SpanID.String(),
			call.Model.String(),
			call.PromptTokens.String(),
			call.CompletionTokens.String(),
			call.TotalTokens.String(),
			call.DurationMS.String(),
			call.Temperature.String(),
			call.MaxTokens.String(),
			call.Cost.String(),
			call.Status.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
