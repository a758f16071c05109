package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// QAPair is one question/answer row from a QA source.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FormatQAPairs renders QA pairs as retrievable text, one block per pair.
func FormatQAPairs(pairs []QAPair) string {
	var buf strings.Builder
	for i, p := range pairs {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString("Q: ")
		buf.WriteString(strings.TrimSpace(p.Question))
		buf.WriteString("\nA: ")
		buf.WriteString(strings.TrimSpace(p.Answer))
	}
	return buf.String()
}

// extractQASheet reads an .xlsx workbook of question/answer rows. When the
// first row is a header naming question and answer columns those columns are
// used; otherwise the first two columns are. Sheets without at least two
// columns fall back to tab-joined rows.
func extractQASheet(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var pairs []QAPair
	var fallback strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			fallback.WriteString(strings.Join(row, "\t"))
			fallback.WriteByte('\n')
		}
		qCol, aCol, start := qaColumns(rows)
		if qCol < 0 {
			continue
		}
		for _, row := range rows[start:] {
			if len(row) <= qCol || len(row) <= aCol {
				continue
			}
			q, a := strings.TrimSpace(row[qCol]), strings.TrimSpace(row[aCol])
			if q == "" || a == "" {
				continue
			}
			pairs = append(pairs, QAPair{Question: q, Answer: a})
		}
	}
	if len(pairs) > 0 {
		return FormatQAPairs(pairs), nil
	}
	return strings.TrimSpace(fallback.String()), nil
}

// qaColumns picks the question and answer column indexes for a sheet and the
// first data row. Returns qCol -1 when the sheet cannot hold pairs.
func qaColumns(rows [][]string) (qCol, aCol, start int) {
	if len(rows) == 0 {
		return -1, -1, 0
	}
	qCol, aCol = -1, -1
	for i, cell := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "question", "questions", "q":
			qCol = i
		case "answer", "answers", "a":
			aCol = i
		}
	}
	if qCol >= 0 && aCol >= 0 {
		return qCol, aCol, 1
	}
	if len(rows[0]) >= 2 {
		return 0, 1, 0
	}
	return -1, -1, 0
}
