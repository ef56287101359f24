package store

import "context"

// TableStore is the durable tabular backing store. Implementations are
// expected to retry transient failures internally and return only after
// retries are exhausted. Row indexes are zero-based data rows.
type TableStore interface {
	// GetAllRows returns every data row of a table.
	GetAllRows(ctx context.Context, table string) ([][]string, error)
	// GetRowsSince returns data rows starting at the given index. Used for
	// append-only tables so refresh cost tracks new content.
	GetRowsSince(ctx context.Context, table string, start int) ([][]string, error)
	// AppendRow adds a row after the last data row of a table.
	AppendRow(ctx context.Context, table string, row []string) error
	// UpdateRow overwrites the data row at the given index.
	UpdateRow(ctx context.Context, table string, index int, row []string) error
}
