package graph

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// listToCSV renders rows (header included by the caller) as CSV text
// without a trailing newline. Write errors cannot occur on the in-memory
// builder, so they are ignored.
func listToCSV(rows [][]string) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	for _, row := range rows {
		_ = w.Write(row)
	}
	w.Flush()
	return strings.TrimRight(sb.String(), "\n")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatInt(i int) string {
	return strconv.Itoa(i)
}

// csvSection wraps CSV text in a fenced block under the given header, the
// exact layout consumed by the answer-generation prompt.
func csvSection(header, csvText string) string {
	return "-----" + header + "-----\n```csv\n" + csvText + "\n```"
}
