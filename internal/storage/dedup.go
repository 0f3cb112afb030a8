package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// settingDuplicateChecked gates the one-time automatic deduplication run.
const settingDuplicateChecked = "duplicate_checked"

// Deduplicate removes duplicate flights in two passes. The hash pass
// catches byte-identical re-imports; the signature pass additionally
// catches the same flight exported by two different tools, which a hash
// can never match. Both passes keep the record with the highest point
// count, ties broken by lowest ID, and orphaned telemetry, tag and message
// rows are purged afterwards. Running it twice with no new data removes
// nothing the second time.
func (s *SqliteStore) Deduplicate(ctx context.Context) (removed int, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		return
	}
	defer rollbackWithError(tx, &err)

	for _, pass := range []struct {
		name string
		sql  string
	}{
		{"hash", deleteHashDuplicatesSQL},
		{"signature", deleteSignatureDuplicatesSQL},
	} {
		res, execErr := tx.ExecContext(ctx, pass.sql)
		if execErr != nil {
			err = fmt.Errorf("%s dedup pass: %w", pass.name, execErr)
			return
		}
		n, _ := res.RowsAffected()
		if n > 0 {
			s.logger.Info("removed duplicate flights",
				slog.String("pass", pass.name), slog.Int64("count", n))
		}
		removed += int(n)
	}

	// Orphaned rows silently corrupt aggregate statistics; cleanup is part
	// of the pass, not optional.
	for _, stmt := range []string{deleteOrphanTelemetrySQL, deleteOrphanTagsSQL, deleteOrphanMessagesSQL} {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			err = fmt.Errorf("purging orphans: %w", err)
			return
		}
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
		return
	}
	return removed, nil
}

// RunStartupDeduplication runs Deduplicate once per database, gated by a
// persisted flag. Explicit Deduplicate calls remain available afterwards.
func (s *SqliteStore) RunStartupDeduplication(ctx context.Context) (int, error) {
	_, done, err := s.Setting(ctx, settingDuplicateChecked)
	if err != nil {
		return 0, err
	}
	if done {
		return 0, nil
	}

	removed, err := s.Deduplicate(ctx)
	if err != nil {
		return removed, err
	}

	if err = s.SetSetting(ctx, settingDuplicateChecked, "1"); err != nil {
		return removed, err
	}
	return removed, nil
}
