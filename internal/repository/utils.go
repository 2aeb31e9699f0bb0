package repository

import (
	"database/sql"
	"time"

	"photogallery/internal/models"
)

// scanRow scans the current row into a column-keyed map. TEXT columns arrive as
// []byte and are converted to strings; timestamps are rendered as RFC 3339.
func scanRow(rows *sql.Rows) (models.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range columns {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, err
	}

	row := make(models.Row, len(columns))
	for i, col := range columns {
		switch v := values[i].(type) {
		case []byte:
			row[col] = string(v)
		case time.Time:
			row[col] = v.UTC().Format(time.RFC3339Nano)
		default:
			row[col] = v
		}
	}
	return row, nil
}
