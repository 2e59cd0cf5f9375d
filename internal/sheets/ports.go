package sheets

import (
	"context"

	"sikdae/internal/core"
)

// Ports for inbound statement sources.
type (
	// RowReader returns the accepted expense rows of one statement.
	RowReader interface {
		ReadRows(ctx context.Context) ([]core.ExpenseRecord, IngestStats, error)
	}

	// SheetOpener builds a RowReader for a spreadsheet chosen at runtime,
	// e.g. one named in a queued analysis request.
	SheetOpener interface {
		Open(spreadsheetID, sheetName string) RowReader
	}
)
