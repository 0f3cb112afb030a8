package storage

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS flights (
    id             INTEGER PRIMARY KEY,
    file_name      TEXT NOT NULL,
    display_name   TEXT NOT NULL,
    file_hash      TEXT NOT NULL UNIQUE,
    drone_model    TEXT,
    drone_serial   TEXT,
    aircraft_name  TEXT,
    battery_serial TEXT,
    start_time     TIMESTAMP,
    end_time       TIMESTAMP,
    duration_secs  REAL NOT NULL DEFAULT 0,
    total_distance REAL NOT NULL DEFAULT 0,
    max_altitude   REAL NOT NULL DEFAULT 0,
    max_speed      REAL NOT NULL DEFAULT 0,
    home_lat       REAL,
    home_lon       REAL,
    point_count    INTEGER NOT NULL DEFAULT 0,
    photo_count    INTEGER NOT NULL DEFAULT 0,
    video_count    INTEGER NOT NULL DEFAULT 0,
    notes          TEXT
);

CREATE TABLE IF NOT EXISTS telemetry (
    flight_id           INTEGER NOT NULL,
    timestamp_ms        INTEGER NOT NULL,
    latitude            REAL,
    longitude           REAL,
    altitude            REAL,
    height              REAL,
    vps_height          REAL,
    velocity_x          REAL,
    velocity_y          REAL,
    velocity_z          REAL,
    speed               REAL,
    pitch               REAL,
    roll                REAL,
    yaw                 REAL,
    gimbal_pitch        REAL,
    gimbal_roll         REAL,
    gimbal_yaw          REAL,
    battery_percent     REAL,
    battery_voltage     REAL,
    battery_current     REAL,
    battery_temperature REAL,
    cell_voltages       TEXT,
    satellites          INTEGER,
    gps_signal_level    INTEGER,
    rc_uplink           INTEGER,
    rc_downlink         INTEGER,
    rc_aileron          REAL,
    rc_elevator         REAL,
    rc_throttle         REAL,
    rc_rudder           REAL,
    is_photo            INTEGER,
    is_video            INTEGER,
    PRIMARY KEY (flight_id, timestamp_ms)
);

CREATE TABLE IF NOT EXISTS flight_tags (
    flight_id INTEGER NOT NULL,
    tag       TEXT NOT NULL,
    tag_type  TEXT NOT NULL DEFAULT 'auto',
    PRIMARY KEY (flight_id, tag)
);

CREATE TABLE IF NOT EXISTS flight_messages (
    flight_id    INTEGER NOT NULL,
    timestamp_ms INTEGER NOT NULL,
    message_type TEXT,
    message      TEXT
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS keychains (
    drone_serial TEXT NOT NULL,
    log_version  INTEGER NOT NULL,
    keychain     TEXT NOT NULL,
    PRIMARY KEY (drone_serial, log_version)
);

CREATE TABLE IF NOT EXISTS equipment_names (
    serial TEXT PRIMARY KEY,
    name   TEXT NOT NULL,
    kind   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_flights_signature
    ON flights (drone_serial, battery_serial, start_time);
CREATE INDEX IF NOT EXISTS idx_messages_flight
    ON flight_messages (flight_id, timestamp_ms);
`

// telemetryColumns is the column order used by every telemetry insert and
// select in this package. Keep the scan helpers in sync with it.
const telemetryColumns = `
    flight_id, timestamp_ms, latitude, longitude, altitude, height,
    vps_height, velocity_x, velocity_y, velocity_z, speed, pitch, roll, yaw,
    gimbal_pitch, gimbal_roll, gimbal_yaw, battery_percent, battery_voltage,
    battery_current, battery_temperature, cell_voltages, satellites,
    gps_signal_level, rc_uplink, rc_downlink, rc_aileron, rc_elevator,
    rc_throttle, rc_rudder, is_photo, is_video`

const telemetryColumnCount = 32

const (
	insertFlightSQL = `
INSERT INTO flights (id,
                     file_name,
                     display_name,
                     file_hash,
                     drone_model,
                     drone_serial,
                     aircraft_name,
                     battery_serial,
                     start_time,
                     end_time,
                     duration_secs,
                     total_distance,
                     max_altitude,
                     max_speed,
                     home_lat,
                     home_lon,
                     point_count,
                     photo_count,
                     video_count,
                     notes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectFlightColumnsSQL = `
SELECT
    id,
    file_name,
    display_name,
    file_hash,
    drone_model,
    drone_serial,
    aircraft_name,
    battery_serial,
    start_time,
    end_time,
    duration_secs,
    total_distance,
    max_altitude,
    max_speed,
    home_lat,
    home_lon,
    point_count,
    photo_count,
    video_count,
    notes
FROM flights`

	selectFlightSQL  = selectFlightColumnsSQL + ` WHERE id = ?`
	selectFlightsSQL = selectFlightColumnsSQL + ` ORDER BY start_time DESC, id DESC`

	flightExistsSQL = `SELECT EXISTS (SELECT 1 FROM flights WHERE id = ?)`

	deleteFlightSQL          = `DELETE FROM flights WHERE id = ?`
	deleteFlightTelemetrySQL = `DELETE FROM telemetry WHERE flight_id = ?`
	deleteFlightTagsSQL      = `DELETE FROM flight_tags WHERE flight_id = ?`
	deleteFlightMessagesSQL  = `DELETE FROM flight_messages WHERE flight_id = ?`

	updateDisplayNameSQL = `UPDATE flights SET display_name = ? WHERE id = ?`
	updateNotesSQL       = `UPDATE flights SET notes = ? WHERE id = ?`
	updatePointCountSQL  = `UPDATE flights SET point_count = ? WHERE id = ?`

	selectFileImportedSQL = `SELECT display_name FROM flights WHERE file_hash = ?`

	selectSignatureSQL = `
SELECT EXISTS (
    SELECT 1
    FROM flights
    WHERE drone_serial = ? AND battery_serial = ? AND start_time = ?)`

	insertTelemetryPrefixSQL = `INSERT INTO telemetry (` + telemetryColumns + `) VALUES `

	selectTelemetrySQL = `
SELECT ` + telemetryColumns + `
FROM telemetry
WHERE flight_id = ?
ORDER BY timestamp_ms`

	selectPointSpanSQL = `
SELECT COUNT(*), COALESCE(MIN(timestamp_ms), 0), COALESCE(MAX(timestamp_ms), 0)
FROM telemetry
WHERE flight_id = ?`

	insertMessageSQL = `
INSERT INTO flight_messages (flight_id, timestamp_ms, message_type, message)
VALUES `

	selectMessagesSQL = `
SELECT flight_id, timestamp_ms, message_type, message
FROM flight_messages
WHERE flight_id = ?
ORDER BY timestamp_ms`

	insertTagSQL = `
INSERT OR IGNORE INTO flight_tags (flight_id, tag, tag_type)
VALUES (?, ?, ?)`

	deleteTagSQL = `DELETE FROM flight_tags WHERE flight_id = ? AND tag = ?`

	selectTagsSQL = `
SELECT flight_id, tag, tag_type
FROM flight_tags
WHERE flight_id = ?
ORDER BY tag`

	deleteAutoTagsSQL    = `DELETE FROM flight_tags WHERE flight_id = ? AND tag_type = 'auto'`
	deleteAllAutoTagsSQL = `DELETE FROM flight_tags WHERE tag_type = 'auto'`

	selectSettingSQL = `SELECT value FROM settings WHERE key = ?`
	upsertSettingSQL = `
INSERT INTO settings (key, value)
VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value`

	selectKeychainSQL = `SELECT keychain FROM keychains WHERE drone_serial = ? AND log_version = ?`
	upsertKeychainSQL = `
INSERT INTO keychains (drone_serial, log_version, keychain)
VALUES (?, ?, ?)
ON CONFLICT (drone_serial, log_version) DO UPDATE SET keychain = excluded.keychain`

	selectEquipmentNameSQL = `SELECT name FROM equipment_names WHERE serial = ?`
	upsertEquipmentNameSQL = `
INSERT INTO equipment_names (serial, name, kind)
VALUES (?, ?, ?)
ON CONFLICT (serial) DO UPDATE SET name = excluded.name, kind = excluded.kind`
)

// Deduplication. Between two flights sharing a hash or a signature, the one
// with more points wins; ties go to the lowest ID for determinism.
const (
	deleteHashDuplicatesSQL = `
DELETE FROM flights
WHERE id IN (
    SELECT f.id
    FROM flights f
    JOIN flights k
      ON k.file_hash = f.file_hash
     AND k.id != f.id
     AND (k.point_count > f.point_count
          OR (k.point_count = f.point_count AND k.id < f.id)))`

	deleteSignatureDuplicatesSQL = `
DELETE FROM flights
WHERE id IN (
    SELECT f.id
    FROM flights f
    JOIN flights k
      ON k.drone_serial = f.drone_serial
     AND k.battery_serial = f.battery_serial
     AND k.start_time = f.start_time
     AND k.id != f.id
     AND (k.point_count > f.point_count
          OR (k.point_count = f.point_count AND k.id < f.id)))`

	deleteOrphanTelemetrySQL = `
DELETE FROM telemetry
WHERE flight_id NOT IN (SELECT id FROM flights)`

	deleteOrphanTagsSQL = `
DELETE FROM flight_tags
WHERE flight_id NOT IN (SELECT id FROM flights)`

	deleteOrphanMessagesSQL = `
DELETE FROM flight_messages
WHERE flight_id NOT IN (SELECT id FROM flights)`
)

// Downsampling. Numeric fields average within a bucket; boolean camera
// state OR-s so an event anywhere in the bucket survives; categorical
// fields come from the bucket's first row by time, fetched by the second
// statement and merged in Go.
const (
	selectBucketAggregatesSQL = `
SELECT (timestamp_ms / ?1) * ?1 AS bucket,
       AVG(latitude),
       AVG(longitude),
       AVG(altitude),
       AVG(height),
       AVG(vps_height),
       AVG(velocity_x),
       AVG(velocity_y),
       AVG(velocity_z),
       AVG(speed),
       AVG(pitch),
       AVG(roll),
       AVG(yaw),
       AVG(gimbal_pitch),
       AVG(gimbal_roll),
       AVG(gimbal_yaw),
       AVG(battery_percent),
       AVG(battery_voltage),
       AVG(battery_current),
       AVG(battery_temperature),
       AVG(rc_aileron),
       AVG(rc_elevator),
       AVG(rc_throttle),
       AVG(rc_rudder),
       MAX(is_photo),
       MAX(is_video)
FROM telemetry
WHERE flight_id = ?2
GROUP BY bucket
ORDER BY bucket`

	selectBucketFirstRowsSQL = `
SELECT (t.timestamp_ms / ?1) * ?1 AS bucket,
       t.cell_voltages,
       t.satellites,
       t.gps_signal_level,
       t.rc_uplink,
       t.rc_downlink
FROM telemetry t
JOIN (
    SELECT MIN(timestamp_ms) AS first_ts
    FROM telemetry
    WHERE flight_id = ?2
    GROUP BY (timestamp_ms / ?1) * ?1
) f ON t.timestamp_ms = f.first_ts
WHERE t.flight_id = ?2
ORDER BY bucket`

	selectTrackSQL = `
SELECT latitude, longitude, COALESCE(height, altitude, 0)
FROM telemetry
WHERE flight_id = ?
  AND latitude IS NOT NULL
  AND longitude IS NOT NULL
  AND (ABS(latitude) > 1e-6 OR ABS(longitude) > 1e-6)
ORDER BY timestamp_ms`
)

// Overview aggregates.
const (
	selectOverviewTotalsSQL = `
SELECT COUNT(*),
       COALESCE(SUM(duration_secs), 0),
       COALESCE(SUM(total_distance), 0),
       COALESCE(MAX(max_altitude), 0),
       COALESCE(MAX(max_speed), 0)
FROM flights`

	selectDroneUsageSQL = `
SELECT COALESCE(NULLIF(drone_model, ''), 'Unknown'), COUNT(*), COALESCE(SUM(duration_secs), 0)
FROM flights
GROUP BY 1
ORDER BY 2 DESC`

	selectBatteryUsageSQL = `
SELECT battery_serial, COUNT(*), COALESCE(SUM(duration_secs), 0)
FROM flights
WHERE battery_serial IS NOT NULL
GROUP BY battery_serial
ORDER BY 2 DESC`

	selectFlightsByDateSQL = `
SELECT DATE(start_time), COUNT(*)
FROM flights
WHERE start_time IS NOT NULL
GROUP BY DATE(start_time)
ORDER BY 1`

	selectTopByDurationSQL = `
SELECT id, display_name, duration_secs
FROM flights
ORDER BY duration_secs DESC, id
LIMIT ?`

	selectTopByDistanceSQL = `
SELECT id, display_name, total_distance
FROM flights
ORDER BY total_distance DESC, id
LIMIT ?`
)
