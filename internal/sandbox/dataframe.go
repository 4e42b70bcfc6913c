package sandbox

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/scianalytics/agentcore/pkg/models"
)

const dataframePreviewRows = 20

// readDataframePreview parses a small prefix of a collected output_df.csv
// into a bounded preview, per spec step 5/6. Returns (nil, nil) when the
// file simply doesn't exist — that's the common case, not a failure.
func readDataframePreview(path string) (*models.DataframePreview, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open output_df.csv: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("output_df.csv is empty")
	}
	header := splitCSVLine(scanner.Text())
	columns := make([]models.ColumnInfo, len(header))
	for i, name := range header {
		columns[i] = models.ColumnInfo{Name: name, Type: "string"}
	}

	var rows [][]any
	rowCount := 0
	for scanner.Scan() {
		rowCount++
		if len(rows) < dataframePreviewRows {
			fields := splitCSVLine(scanner.Text())
			row := make([]any, len(fields))
			for i, v := range fields {
				row[i] = v
			}
			rows = append(rows, row)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan output_df.csv: %w", err)
	}

	return &models.DataframePreview{Columns: columns, Rows: rows, RowCount: rowCount}, nil
}

// splitCSVLine is a minimal unquoted-CSV splitter sufficient for the
// sandbox's own generated output files (it does not need to handle
// arbitrary user-uploaded CSVs, only files this package's capability
// envelope told the snippet to write).
func splitCSVLine(line string) []string {
	return strings.Split(line, ",")
}
