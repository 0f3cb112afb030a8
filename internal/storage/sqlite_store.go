package storage

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
)

// maxInsertBatch bounds rows per INSERT statement so the bind variable
// count stays under SQLite's default limit of 999.
const maxInsertBatch = 30

const flightIDModulus = 1_000_000_000_000

// Option configures a SqliteStore.
type Option func(*SqliteStore)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *SqliteStore) {
		s.logger = logger
	}
}

// WithMaxBatchSize overrides the telemetry insert batch size. Values above
// maxInsertBatch are capped.
func WithMaxBatchSize(n int) Option {
	return func(s *SqliteStore) {
		if n > 0 && n <= maxInsertBatch {
			s.maxBatchSize = n
		}
	}
}

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath       string
	logger       *slog.Logger
	maxBatchSize int

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a new database connection and initializes the
// schema using the Sqlite database
func NewSqliteStore(dbPath string, opts ...Option) *SqliteStore {
	s := &SqliteStore{
		dbPath:       dbPath,
		logger:       slog.Default(),
		maxBatchSize: maxInsertBatch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// Make sure the schema exists before a read-only connection opens
		// the file.
		if _, err := s.getWriteDB(); err != nil {
			s.readDBErr = err
			return
		}

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) ImportFlight(ctx context.Context, result *flight.ParseResult) (flightID int64, stored int, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	meta := result.Metadata
	flightID, err = s.generateFlightID(ctx, db)
	if err != nil {
		err = fmt.Errorf("generating flight ID: %w", err)
		return
	}

	_, err = db.ExecContext(ctx, insertFlightSQL,
		flightID,
		meta.FileName,
		meta.DisplayName,
		meta.FileHash,
		nullString(meta.DroneModel),
		nullString(meta.DroneSerial),
		nullString(meta.AircraftName),
		nullString(meta.BatterySerial),
		nullTime(meta.StartTime),
		nullTime(meta.EndTime),
		meta.DurationSecs,
		meta.TotalDistance,
		meta.MaxAltitude,
		meta.MaxSpeed,
		nullFloat(meta.HomeLat),
		nullFloat(meta.HomeLon),
		len(result.Points),
		meta.PhotoCount,
		meta.VideoCount,
		nullString(result.Notes),
	)
	if err != nil {
		err = fmt.Errorf("inserting flight: %w", err)
		return
	}

	stored, skipped, err := s.BulkInsertTelemetry(ctx, flightID, result.Points)
	if err != nil {
		// No ghost flights: a failed point load takes its metadata row
		// with it.
		if _, dErr := db.ExecContext(ctx, deleteFlightSQL, flightID); dErr != nil {
			s.logger.Error("rolling back flight after failed telemetry insert",
				slog.Int64("flightID", flightID), slog.Any("error", dErr))
		}
		flightID, stored = 0, 0
		err = fmt.Errorf("inserting telemetry: %w", err)
		return
	}
	if skipped > 0 {
		if _, err = db.ExecContext(ctx, updatePointCountSQL, stored, flightID); err != nil {
			err = fmt.Errorf("updating point count: %w", err)
			return
		}
	}

	for _, tag := range result.Tags {
		if err = s.AddTag(ctx, flightID, tag, flight.TagTypeAuto); err != nil {
			return
		}
	}
	for _, tag := range result.ManualTags {
		if err = s.AddTag(ctx, flightID, tag, flight.TagTypeManual); err != nil {
			return
		}
	}

	if err = s.insertMessages(ctx, flightID, result.Messages); err != nil {
		return
	}
	return flightID, stored, nil
}

// generateFlightID derives a new ID from the wall clock, incrementing past
// collisions. IDs are not content-derived: two imports of the same file get
// different IDs and deduplication sorts them out.
func (s *SqliteStore) generateFlightID(ctx context.Context, db *sql.DB) (int64, error) {
	id := time.Now().UnixMilli() % flightIDModulus
	for {
		var exists bool
		if err := db.QueryRowContext(ctx, flightExistsSQL, id).Scan(&exists); err != nil {
			return 0, err
		}
		if !exists {
			return id, nil
		}
		id++
	}
}

func (s *SqliteStore) BulkInsertTelemetry(ctx context.Context, flightID int64, points []flight.TelemetryPoint) (inserted, skipped int, err error) {
	if len(points) == 0 {
		return
	}

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

	seen := make(map[int64]struct{}, len(points))
	batch := make([]flight.TelemetryPoint, 0, s.maxBatchSize)
	for chunk := range slices.Chunk(points, s.maxBatchSize) {
		batch = batch[:0]
		for _, pt := range chunk {
			if _, dup := seen[pt.TimestampMS]; dup {
				skipped++
				continue
			}
			seen[pt.TimestampMS] = struct{}{}
			batch = append(batch, pt)
		}
		if len(batch) == 0 {
			continue
		}

		valuesPlaceholder := "(?" + strings.Repeat(", ?", telemetryColumnCount-1) + ")"

		var sb strings.Builder
		sb.WriteString(insertTelemetryPrefixSQL)

		values := make([]any, 0, len(batch)*telemetryColumnCount)
		for i := range batch {
			values = append(values, telemetryValues(flightID, &batch[i])...)
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			err = fmt.Errorf("batch inserting telemetry: %w", err)
			return
		}
		inserted += len(batch)
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
		return
	}

	if skipped > 0 {
		s.logger.Info("skipped duplicate timestamps",
			slog.Int64("flightID", flightID), slog.Int("count", skipped))
	}
	return
}

func telemetryValues(flightID int64, pt *flight.TelemetryPoint) []any {
	return []any{
		flightID,
		pt.TimestampMS,
		nullFloat(pt.Latitude),
		nullFloat(pt.Longitude),
		nullFloat(pt.Altitude),
		nullFloat(pt.Height),
		nullFloat(pt.VPSHeight),
		nullFloat(pt.VelocityX),
		nullFloat(pt.VelocityY),
		nullFloat(pt.VelocityZ),
		nullFloat(pt.Speed),
		nullFloat(pt.Pitch),
		nullFloat(pt.Roll),
		nullFloat(pt.Yaw),
		nullFloat(pt.GimbalPitch),
		nullFloat(pt.GimbalRoll),
		nullFloat(pt.GimbalYaw),
		nullFloat(pt.BatteryPercent),
		nullFloat(pt.BatteryVoltage),
		nullFloat(pt.BatteryCurrent),
		nullFloat(pt.BatteryTemperature),
		cellsToJSON(pt.CellVoltages),
		nullInt(pt.Satellites),
		nullInt(pt.GPSSignalLevel),
		nullInt(pt.RCUplink),
		nullInt(pt.RCDownlink),
		nullFloat(pt.RCAileron),
		nullFloat(pt.RCElevator),
		nullFloat(pt.RCThrottle),
		nullFloat(pt.RCRudder),
		nullBool(pt.IsPhoto),
		nullBool(pt.IsVideo),
	}
}

func scanTelemetry(rows *sql.Rows) (*flight.TelemetryPoint, error) {
	var pt flight.TelemetryPoint
	var fid int64
	var lat, lon, alt, height, vps, vx, vy, vz, speed sql.NullFloat64
	var pitch, roll, yaw, gp, gr, gy sql.NullFloat64
	var bPct, bVolt, bCur, bTemp sql.NullFloat64
	var cells sql.NullString
	var sats, gpsLevel, up, down sql.NullInt64
	var ail, elev, thr, rud sql.NullFloat64
	var photo, video sql.NullBool

	if err := rows.Scan(&fid, &pt.TimestampMS, &lat, &lon, &alt, &height, &vps,
		&vx, &vy, &vz, &speed, &pitch, &roll, &yaw, &gp, &gr, &gy,
		&bPct, &bVolt, &bCur, &bTemp, &cells, &sats, &gpsLevel, &up, &down,
		&ail, &elev, &thr, &rud, &photo, &video); err != nil {
		return nil, err
	}

	pt.Latitude = fromNullFloat(lat)
	pt.Longitude = fromNullFloat(lon)
	pt.Altitude = fromNullFloat(alt)
	pt.Height = fromNullFloat(height)
	pt.VPSHeight = fromNullFloat(vps)
	pt.VelocityX = fromNullFloat(vx)
	pt.VelocityY = fromNullFloat(vy)
	pt.VelocityZ = fromNullFloat(vz)
	pt.Speed = fromNullFloat(speed)
	pt.Pitch = fromNullFloat(pitch)
	pt.Roll = fromNullFloat(roll)
	pt.Yaw = fromNullFloat(yaw)
	pt.GimbalPitch = fromNullFloat(gp)
	pt.GimbalRoll = fromNullFloat(gr)
	pt.GimbalYaw = fromNullFloat(gy)
	pt.BatteryPercent = fromNullFloat(bPct)
	pt.BatteryVoltage = fromNullFloat(bVolt)
	pt.BatteryCurrent = fromNullFloat(bCur)
	pt.BatteryTemperature = fromNullFloat(bTemp)
	pt.CellVoltages = cellsFromJSON(cells)
	pt.Satellites = fromNullInt(sats)
	pt.GPSSignalLevel = fromNullInt(gpsLevel)
	pt.RCUplink = fromNullInt(up)
	pt.RCDownlink = fromNullInt(down)
	pt.RCAileron = fromNullFloat(ail)
	pt.RCElevator = fromNullFloat(elev)
	pt.RCThrottle = fromNullFloat(thr)
	pt.RCRudder = fromNullFloat(rud)
	pt.IsPhoto = fromNullBool(photo)
	pt.IsVideo = fromNullBool(video)
	return &pt, nil
}

func (s *SqliteStore) insertMessages(ctx context.Context, flightID int64, messages []flight.Message) (err error) {
	if len(messages) == 0 {
		return
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

	for chunk := range slices.Chunk(messages, maxInsertBatch) {
		var sb strings.Builder
		sb.WriteString(insertMessageSQL)

		values := make([]any, 0, len(chunk)*4)
		for i, msg := range chunk {
			values = append(values, flightID, msg.TimestampMS, nullString(msg.Type), msg.Message)
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?)")
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting messages: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) IsFileImported(ctx context.Context, fileHash string) (displayName string, imported bool, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	err = db.QueryRowContext(ctx, selectFileImportedSQL, fileHash).Scan(&displayName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	case err != nil:
		err = fmt.Errorf("querying file hash: %w", err)
	default:
		imported = true
	}
	return
}

func (s *SqliteStore) IsDuplicateFlight(ctx context.Context, droneSerial, batterySerial string, start time.Time) (bool, error) {
	if droneSerial == "" || batterySerial == "" {
		return false, nil
	}

	db, err := s.getReadDB()
	if err != nil {
		return false, fmt.Errorf("getting read connection: %w", err)
	}

	var exists bool
	if err = db.QueryRowContext(ctx, selectSignatureSQL, droneSerial, batterySerial, start.UTC()).Scan(&exists); err != nil {
		return false, fmt.Errorf("querying signature: %w", err)
	}
	return exists, nil
}

func scanFlight(row interface{ Scan(...any) error }) (*flight.Metadata, error) {
	var m flight.Metadata
	var model, serial, name, battery, notes sql.NullString
	var start, end sql.NullTime
	var homeLat, homeLon sql.NullFloat64

	err := row.Scan(&m.ID, &m.FileName, &m.DisplayName, &m.FileHash,
		&model, &serial, &name, &battery, &start, &end,
		&m.DurationSecs, &m.TotalDistance, &m.MaxAltitude, &m.MaxSpeed,
		&homeLat, &homeLon, &m.PointCount, &m.PhotoCount, &m.VideoCount, &notes)
	if err != nil {
		return nil, err
	}

	m.DroneModel = model.String
	m.DroneSerial = serial.String
	m.AircraftName = name.String
	m.BatterySerial = battery.String
	m.StartTime = fromNullTime(start)
	m.EndTime = fromNullTime(end)
	m.HomeLat = fromNullFloat(homeLat)
	m.HomeLon = fromNullFloat(homeLon)
	m.Notes = notes.String
	return &m, nil
}

func (s *SqliteStore) Flights(ctx context.Context) (flights []*flight.Metadata, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectFlightsSQL)
	if err != nil {
		err = fmt.Errorf("querying flights: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var m *flight.Metadata
		if m, err = scanFlight(rows); err != nil {
			err = fmt.Errorf("scanning flight: %w", err)
			return
		}
		flights = append(flights, m)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Flight(ctx context.Context, id int64) (*flight.Metadata, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	m, err := scanFlight(db.QueryRowContext(ctx, selectFlightSQL, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("scanning flight: %w", err)
	}
	return m, nil
}

func (s *SqliteStore) DeleteFlight(ctx context.Context, id int64) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	for _, stmt := range []string{deleteFlightTelemetrySQL, deleteFlightTagsSQL, deleteFlightMessagesSQL, deleteFlightSQL} {
		if _, err = tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("deleting flight: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) UpdateDisplayName(ctx context.Context, id int64, name string) error {
	return s.execWrite(ctx, updateDisplayNameSQL, name, id)
}

func (s *SqliteStore) UpdateNotes(ctx context.Context, id int64, notes string) error {
	return s.execWrite(ctx, updateNotesSQL, nullString(notes), id)
}

func (s *SqliteStore) AddTag(ctx context.Context, flightID int64, tag, tagType string) error {
	if tagType != flight.TagTypeAuto && tagType != flight.TagTypeManual {
		return fmt.Errorf("invalid tag type %q", tagType)
	}
	return s.execWrite(ctx, insertTagSQL, flightID, tag, tagType)
}

func (s *SqliteStore) RemoveTag(ctx context.Context, flightID int64, tag string) error {
	return s.execWrite(ctx, deleteTagSQL, flightID, tag)
}

func (s *SqliteStore) TagsForFlight(ctx context.Context, flightID int64) (tags []flight.Tag, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectTagsSQL, flightID)
	if err != nil {
		err = fmt.Errorf("querying tags: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var t flight.Tag
		if err = rows.Scan(&t.FlightID, &t.Tag, &t.Type); err != nil {
			err = fmt.Errorf("scanning tag: %w", err)
			return
		}
		tags = append(tags, t)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) ReplaceAutoTags(ctx context.Context, flightID int64, tags []string) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, deleteAutoTagsSQL, flightID); err != nil {
		return fmt.Errorf("deleting auto tags: %w", err)
	}
	for _, tag := range tags {
		if _, err = tx.ExecContext(ctx, insertTagSQL, flightID, tag, flight.TagTypeAuto); err != nil {
			return fmt.Errorf("inserting tag: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) RemoveAllAutoTags(ctx context.Context) error {
	return s.execWrite(ctx, deleteAllAutoTagsSQL)
}

func (s *SqliteStore) Messages(ctx context.Context, flightID int64) (messages []flight.Message, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectMessagesSQL, flightID)
	if err != nil {
		err = fmt.Errorf("querying messages: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var m flight.Message
		var msgType sql.NullString
		if err = rows.Scan(&m.FlightID, &m.TimestampMS, &msgType, &m.Message); err != nil {
			err = fmt.Errorf("scanning message: %w", err)
			return
		}
		m.Type = msgType.String
		messages = append(messages, m)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Setting(ctx context.Context, key string) (value string, ok bool, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	err = db.QueryRowContext(ctx, selectSettingSQL, key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	case err != nil:
		err = fmt.Errorf("querying setting: %w", err)
	default:
		ok = true
	}
	return
}

func (s *SqliteStore) SetSetting(ctx context.Context, key, value string) error {
	return s.execWrite(ctx, upsertSettingSQL, key, value)
}

func (s *SqliteStore) Keychain(droneSerial string, logVersion int) ([]byte, bool) {
	db, err := s.getReadDB()
	if err != nil {
		s.logger.Error("keychain lookup failed", slog.Any("error", err))
		return nil, false
	}

	var encoded string
	err = db.QueryRow(selectKeychainSQL, droneSerial, logVersion).Scan(&encoded)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false
	case err != nil:
		s.logger.Error("keychain lookup failed", slog.Any("error", err))
		return nil, false
	}

	key, err := hex.DecodeString(encoded)
	if err != nil {
		s.logger.Error("stored keychain is not valid hex", slog.String("droneSerial", droneSerial))
		return nil, false
	}
	return key, true
}

func (s *SqliteStore) StoreKeychain(ctx context.Context, droneSerial string, logVersion int, key []byte) error {
	return s.execWrite(ctx, upsertKeychainSQL, droneSerial, logVersion, hex.EncodeToString(key))
}

func (s *SqliteStore) EquipmentName(ctx context.Context, serial string) (name string, ok bool, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	err = db.QueryRowContext(ctx, selectEquipmentNameSQL, serial).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	case err != nil:
		err = fmt.Errorf("querying equipment name: %w", err)
	default:
		ok = true
	}
	return
}

func (s *SqliteStore) SetEquipmentName(ctx context.Context, serial, name, kind string) error {
	return s.execWrite(ctx, upsertEquipmentNameSQL, serial, name, kind)
}

func (s *SqliteStore) execWrite(ctx context.Context, query string, args ...any) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}
	if _, err = db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}
	return nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			s.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			s.closeErr = writeErr
		case readErr != nil:
			s.closeErr = readErr
		}
	})

	return s.closeErr
}
