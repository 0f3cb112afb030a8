package storage

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"
)

const backupFormatVersion = 1

// csvNull marks a SQL NULL in the exported CSV, since an empty string is a
// legitimate value.
const csvNull = `\N`

// backupTables lists every exported table. flights must come first: import
// uses its rows to clear colliding records before loading.
var backupTables = []string{
	"flights",
	"telemetry",
	"flight_tags",
	"flight_messages",
	"settings",
	"keychains",
	"equipment_names",
}

// keyedTables maps the tables not covered by the flight collision sweep to
// their primary key columns, so restore can clear colliding rows before
// loading. A freshly opened database already holds settings rows, so restore
// into a non-empty target is the normal case, not the exception.
var keyedTables = map[string][]string{
	"settings":        {"key"},
	"keychains":       {"drone_serial", "log_version"},
	"equipment_names": {"serial"},
}

type backupManifest struct {
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"createdAt"`
	Tables    map[string]int `json:"tables"` // table name to row count
}

// ExportBackup serializes every table to CSV inside one gzip compressed tar
// archive. The result round-trips through ImportBackup, including flight
// IDs.
func (s *SqliteStore) ExportBackup(ctx context.Context, w io.Writer) (err error) {
	db, err := s.getReadDB()
	if err != nil {
		return fmt.Errorf("getting read connection: %w", err)
	}

	manifest := backupManifest{
		Version:   backupFormatVersion,
		CreatedAt: time.Now().UTC(),
		Tables:    make(map[string]int, len(backupTables)),
	}

	dumps := make(map[string][]byte, len(backupTables))
	for _, table := range backupTables {
		var buf bytes.Buffer
		var count int
		if count, err = dumpTableCSV(ctx, db, table, &buf); err != nil {
			return fmt.Errorf("dumping table %s: %w", table, err)
		}
		dumps[table] = buf.Bytes()
		manifest.Tables[table] = count
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err = writeTarFile(tw, "manifest.json", manifestData); err != nil {
		return err
	}
	for _, table := range backupTables {
		if err = writeTarFile(tw, table+".csv", dumps[table]); err != nil {
			return err
		}
	}

	if err = tw.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	if err = gz.Close(); err != nil {
		return fmt.Errorf("closing gzip stream: %w", err)
	}
	return nil
}

func writeTarFile(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: time.Now().UTC(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing tar header %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("writing tar entry %s: %w", name, err)
	}
	return nil
}

func dumpTableCSV(ctx context.Context, db *sql.DB, table string, w io.Writer) (count int, err error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return 0, fmt.Errorf("querying table: %w", err)
	}
	defer closeWithError(rows, &err)

	columns, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("reading columns: %w", err)
	}

	cw := csv.NewWriter(w)
	if err = cw.Write(columns); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}

	values := make([]any, len(columns))
	dests := make([]any, len(columns))
	for i := range values {
		dests[i] = &values[i]
	}

	record := make([]string, len(columns))
	for rows.Next() {
		if err = rows.Scan(dests...); err != nil {
			return 0, fmt.Errorf("scanning row: %w", err)
		}
		for i, v := range values {
			record[i] = valueToCSV(v)
		}
		if err = cw.Write(record); err != nil {
			return 0, fmt.Errorf("writing row: %w", err)
		}
		count++
	}
	if err = rows.Err(); err != nil {
		return 0, err
	}

	cw.Flush()
	return count, cw.Error()
}

func valueToCSV(v any) string {
	switch x := v.(type) {
	case nil:
		return csvNull
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		// A layout the SQLite driver converts back to time.Time on read.
		return x.UTC().Format("2006-01-02 15:04:05.999999999-07:00")
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// ImportBackup restores an archive produced by ExportBackup. Rows whose
// flight ID or file hash collides with the incoming set are deleted first,
// then every table is bulk loaded.
func (s *SqliteStore) ImportBackup(ctx context.Context, r io.Reader) (err error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer closeWithError(gz, &err)

	var manifest *backupManifest
	tables := make(map[string][][]string)

	tr := tar.NewReader(gz)
	for {
		hdr, rErr := tr.Next()
		if errors.Is(rErr, io.EOF) {
			break
		}
		if rErr != nil {
			return fmt.Errorf("reading archive: %w", rErr)
		}

		switch {
		case hdr.Name == "manifest.json":
			var m backupManifest
			if err = json.NewDecoder(tr).Decode(&m); err != nil {
				return fmt.Errorf("decoding manifest: %w", err)
			}
			manifest = &m

		case strings.HasSuffix(hdr.Name, ".csv"):
			table := strings.TrimSuffix(hdr.Name, ".csv")
			if !slices.Contains(backupTables, table) {
				return fmt.Errorf("unexpected table %q in archive", table)
			}
			records, rErr := csv.NewReader(tr).ReadAll()
			if rErr != nil {
				return fmt.Errorf("reading %s: %w", hdr.Name, rErr)
			}
			tables[table] = records
		}
	}

	if manifest == nil {
		return errors.New("archive has no manifest")
	}
	if manifest.Version != backupFormatVersion {
		return fmt.Errorf("unsupported backup version %d", manifest.Version)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if err = deleteColliding(ctx, tx, tables["flights"]); err != nil {
		return err
	}
	for table, keys := range keyedTables {
		if err = deleteCollidingKeys(ctx, tx, table, keys, tables[table]); err != nil {
			return err
		}
	}

	for _, table := range backupTables {
		records := tables[table]
		if len(records) < 2 {
			continue // header only, or table absent from archive
		}
		if err = loadTableCSV(ctx, tx, table, records); err != nil {
			return fmt.Errorf("loading table %s: %w", table, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// deleteColliding clears existing rows that would collide with the incoming
// flights on primary key or unique file hash, cascading to their dependent
// rows.
func deleteColliding(ctx context.Context, tx *sql.Tx, flightRecords [][]string) error {
	if len(flightRecords) < 2 {
		return nil
	}

	header := flightRecords[0]
	idCol := slices.Index(header, "id")
	hashCol := slices.Index(header, "file_hash")
	if idCol < 0 || hashCol < 0 {
		return errors.New("flights.csv is missing id or file_hash column")
	}

	for _, rec := range flightRecords[1:] {
		if idCol >= len(rec) || hashCol >= len(rec) {
			continue
		}

		ids := make(map[int64]struct{})
		if id, err := strconv.ParseInt(rec[idCol], 10, 64); err == nil {
			ids[id] = struct{}{}
		}

		rows, err := tx.QueryContext(ctx, `SELECT id FROM flights WHERE file_hash = ?`, rec[hashCol])
		if err != nil {
			return fmt.Errorf("querying colliding hash: %w", err)
		}
		for rows.Next() {
			var id int64
			if err = rows.Scan(&id); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scanning colliding flight: %w", err)
			}
			ids[id] = struct{}{}
		}
		if err = rows.Close(); err != nil {
			return err
		}

		for id := range ids {
			for _, stmt := range []string{deleteFlightTelemetrySQL, deleteFlightTagsSQL, deleteFlightMessagesSQL, deleteFlightSQL} {
				if _, err = tx.ExecContext(ctx, stmt, id); err != nil {
					return fmt.Errorf("deleting colliding flight %d: %w", id, err)
				}
			}
		}
	}
	return nil
}

// deleteCollidingKeys clears existing rows of a keyed table whose primary
// key matches an incoming row, so the subsequent insert cannot hit a unique
// constraint.
func deleteCollidingKeys(ctx context.Context, tx *sql.Tx, table string, keys []string, records [][]string) error {
	if len(records) < 2 {
		return nil
	}

	header := records[0]
	cols := make([]int, len(keys))
	for i, key := range keys {
		if cols[i] = slices.Index(header, key); cols[i] < 0 {
			return fmt.Errorf("%s.csv is missing key column %s", table, key)
		}
	}

	var where strings.Builder
	for i, key := range keys {
		if i > 0 {
			where.WriteString(" AND ")
		}
		where.WriteString(key)
		where.WriteString(" = ?")
	}

	prepared, err := tx.PrepareContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", table, where.String()))
	if err != nil {
		return fmt.Errorf("preparing delete: %w", err)
	}
	defer prepared.Close()

	args := make([]any, len(keys))
	for _, rec := range records[1:] {
		for i, col := range cols {
			if col >= len(rec) {
				return fmt.Errorf("%s.csv row is missing key column %s", table, keys[i])
			}
			args[i] = rec[col]
		}
		if _, err = prepared.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("deleting colliding %s row: %w", table, err)
		}
	}
	return nil
}

func loadTableCSV(ctx context.Context, tx *sql.Tx, table string, records [][]string) error {
	header := records[0]

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?%s)",
		table, strings.Join(header, ", "), strings.Repeat(", ?", len(header)-1))

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer prepared.Close()

	args := make([]any, len(header))
	for _, rec := range records[1:] {
		if len(rec) != len(header) {
			return fmt.Errorf("row has %d columns, want %d", len(rec), len(header))
		}
		for i, v := range rec {
			if v == csvNull {
				args[i] = nil
			} else {
				args[i] = v
			}
		}
		if _, err = prepared.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("inserting row: %w", err)
		}
	}
	return nil
}
