package parser

import (
	"log/slog"
	"strconv"
	"strings"
)

// Multipliers to the canonical unit system (meters, meters per second).
const (
	feetToMeters = 0.3048
	mphToMps     = 0.44704
)

// unitConv converts a parsed value to canonical units.
type unitConv func(float64) float64

func identity(v float64) float64 { return v }

// unitFromHeader maps a unit tag embedded in a column name, e.g.
// "altitude(feet)", to its conversion. Unknown tags pass through unchanged.
func unitFromHeader(unit string) unitConv {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "feet", "ft":
		return func(v float64) float64 { return v * feetToMeters }
	case "mph":
		return func(v float64) float64 { return v * mphToMps }
	case "f", "°f":
		return func(v float64) float64 { return (v - 32) * 5 / 9 }
	default:
		return identity
	}
}

// columnReader resolves CSV fields by name, independent of column order,
// and returns values already converted to canonical units. Missing columns,
// empty cells and malformed numbers all yield nil, never an error: a bad
// cell must not kill the row.
type columnReader struct {
	index  map[string]int
	conv   map[string]unitConv
	logger *slog.Logger
}

func newColumnReader(header []string, logger *slog.Logger) *columnReader {
	r := &columnReader{
		index:  make(map[string]int, len(header)),
		conv:   make(map[string]unitConv, len(header)),
		logger: logger,
	}
	for i, name := range header {
		name = strings.TrimSpace(name)
		base := name
		conv := unitConv(identity)
		if open := strings.IndexByte(name, '('); open >= 0 {
			if end := strings.IndexByte(name[open:], ')'); end > 0 {
				conv = unitFromHeader(name[open+1 : open+end])
			}
			base = strings.TrimSpace(name[:open])
		}
		key := strings.ToLower(base)
		if _, ok := r.index[key]; ok {
			continue // first occurrence wins
		}
		r.index[key] = i
		r.conv[key] = conv
	}
	return r
}

// Has reports whether the header contains the named column.
func (r *columnReader) Has(name string) bool {
	_, ok := r.index[strings.ToLower(name)]
	return ok
}

func (r *columnReader) cell(row []string, name string) (string, bool) {
	i, ok := r.index[strings.ToLower(name)]
	if !ok || i >= len(row) {
		return "", false
	}
	v := strings.TrimSpace(row[i])
	if v == "" {
		return "", false
	}
	return v, true
}

// Float returns the cell value converted to canonical units, or nil.
func (r *columnReader) Float(row []string, name string) *float64 {
	v, ok := r.cell(row, name)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.logger.Debug("malformed numeric cell", slog.String("column", name), slog.String("value", v))
		return nil
	}
	f = r.conv[strings.ToLower(name)](f)
	return &f
}

// RawFloat returns the cell value without unit conversion, or nil. Used for
// fields like raw RC stick counts that get their own normalization.
func (r *columnReader) RawFloat(row []string, name string) *float64 {
	v, ok := r.cell(row, name)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.logger.Debug("malformed numeric cell", slog.String("column", name), slog.String("value", v))
		return nil
	}
	return &f
}

// Int returns the cell value as an integer, or nil.
func (r *columnReader) Int(row []string, name string) *int {
	f := r.RawFloat(row, name)
	if f == nil {
		return nil
	}
	i := int(*f)
	return &i
}

// Bool interprets the cell as a boolean flag: a non-zero number or a
// literal true value.
func (r *columnReader) Bool(row []string, name string) *bool {
	v, ok := r.cell(row, name)
	if !ok {
		return nil
	}
	var b bool
	switch strings.ToLower(v) {
	case "true", "yes", "y":
		b = true
	case "false", "no", "n":
		b = false
	default:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.logger.Debug("malformed boolean cell", slog.String("column", name), slog.String("value", v))
			return nil
		}
		b = f != 0
	}
	return &b
}

// String returns the trimmed cell value, or empty when absent.
func (r *columnReader) String(row []string, name string) string {
	v, _ := r.cell(row, name)
	return v
}
