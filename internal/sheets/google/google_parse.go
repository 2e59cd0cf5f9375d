package google

import (
	"strings"

	"sikdae/internal/core"
	ports "sikdae/internal/sheets"
)

// parseValues converts a values matrix as returned by the Sheets API.
func parseValues(values [][]interface{}) ([]core.ExpenseRecord, ports.IngestStats, error) {
	rows := make([][]string, len(values))
	for i, row := range values {
		rows[i] = ports.ToStrings(row)
	}
	return ports.RowsToRecords(rows)
}

// sheetRange builds the A1 range covering every used column of a tab.
// Tab names are always quoted since statement tabs are usually Korean.
func sheetRange(sheetName string) string {
	name := strings.TrimSpace(sheetName)
	if name == "" {
		name = DefaultSheetName
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'!A:Z"
}
