package storage

import (
	"database/sql"
	"encoding/json"
	"time"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && cErr != sql.ErrTxDone {
		*err = cErr
	}
}

func toSQLNullType[T float64 | int64, Y float64 | int | int64](f *Y) T {
	if f == nil {
		return 0
	}
	return T(*f)
}

func nullFloat(f *float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: toSQLNullType[float64](f), Valid: f != nil}
}

func nullInt(i *int) sql.NullInt64 {
	return sql.NullInt64{Int64: toSQLNullType[int64](i), Valid: i != nil}
}

func nullBool(b *bool) sql.NullBool {
	return sql.NullBool{Bool: b != nil && *b, Valid: b != nil}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func fromNullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func fromNullBool(n sql.NullBool) *bool {
	if !n.Valid {
		return nil
	}
	v := n.Bool
	return &v
}

func fromNullTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

// Cell voltages are a variable-length list; stored as a JSON array in a
// single column.
func cellsToJSON(cells []float64) sql.NullString {
	if len(cells) == 0 {
		return sql.NullString{}
	}
	p, err := json.Marshal(cells)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(p), Valid: true}
}

func cellsFromJSON(n sql.NullString) []float64 {
	if !n.Valid || n.String == "" {
		return nil
	}
	var cells []float64
	if err := json.Unmarshal([]byte(n.String), &cells); err != nil {
		return nil
	}
	return cells
}
