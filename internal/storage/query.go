package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
)

const (
	// DefaultMaxPoints is the raw-vs-downsampled threshold: up to this many
	// points are returned unmodified.
	DefaultMaxPoints = 5000

	// minBucketMS floors the downsampling bucket so very long flights do
	// not collapse into sub-second noise buckets.
	minBucketMS = int64(1000)

	topFlightsLimit = 5
)

func (s *SqliteStore) FlightTelemetry(ctx context.Context, flightID int64, maxPoints int) ([]flight.TelemetryPoint, error) {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}

	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	var count int
	var minTS, maxTS int64
	if err = db.QueryRowContext(ctx, selectPointSpanSQL, flightID).Scan(&count, &minTS, &maxTS); err != nil {
		return nil, fmt.Errorf("querying point span: %w", err)
	}

	if count <= maxPoints {
		return s.rawTelemetry(ctx, db, flightID)
	}

	bucket := (maxTS - minTS) / int64(maxPoints)
	if bucket < minBucketMS {
		bucket = minBucketMS
	}
	return s.bucketedTelemetry(ctx, db, flightID, bucket)
}

func (s *SqliteStore) rawTelemetry(ctx context.Context, db *sql.DB, flightID int64) (points []flight.TelemetryPoint, err error) {
	rows, err := db.QueryContext(ctx, selectTelemetrySQL, flightID)
	if err != nil {
		err = fmt.Errorf("querying telemetry: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var pt *flight.TelemetryPoint
		if pt, err = scanTelemetry(rows); err != nil {
			err = fmt.Errorf("scanning telemetry: %w", err)
			return
		}
		points = append(points, *pt)
	}
	err = rows.Err()
	return
}

// bucketedTelemetry aggregates points into fixed time buckets. Two queries:
// averages and OR-ed booleans per bucket, then the categorical fields from
// each bucket's first row by time, merged by bucket key.
func (s *SqliteStore) bucketedTelemetry(ctx context.Context, db *sql.DB, flightID, bucketMS int64) (points []flight.TelemetryPoint, err error) {
	rows, err := db.QueryContext(ctx, selectBucketAggregatesSQL, bucketMS, flightID)
	if err != nil {
		err = fmt.Errorf("querying bucket aggregates: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	index := make(map[int64]int)
	for rows.Next() {
		var pt flight.TelemetryPoint
		var lat, lon, alt, height, vps, vx, vy, vz, speed sql.NullFloat64
		var pitch, roll, yaw, gp, gr, gy sql.NullFloat64
		var bPct, bVolt, bCur, bTemp sql.NullFloat64
		var ail, elev, thr, rud sql.NullFloat64
		var photo, video sql.NullBool

		if err = rows.Scan(&pt.TimestampMS, &lat, &lon, &alt, &height, &vps,
			&vx, &vy, &vz, &speed, &pitch, &roll, &yaw, &gp, &gr, &gy,
			&bPct, &bVolt, &bCur, &bTemp, &ail, &elev, &thr, &rud,
			&photo, &video); err != nil {
			err = fmt.Errorf("scanning bucket aggregate: %w", err)
			return
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
		pt.RCAileron = fromNullFloat(ail)
		pt.RCElevator = fromNullFloat(elev)
		pt.RCThrottle = fromNullFloat(thr)
		pt.RCRudder = fromNullFloat(rud)
		pt.IsPhoto = fromNullBool(photo)
		pt.IsVideo = fromNullBool(video)

		index[pt.TimestampMS] = len(points)
		points = append(points, pt)
	}
	if err = rows.Err(); err != nil {
		return
	}

	first, err := db.QueryContext(ctx, selectBucketFirstRowsSQL, bucketMS, flightID)
	if err != nil {
		err = fmt.Errorf("querying bucket first rows: %w", err)
		return
	}
	defer closeWithError(first, &err)

	for first.Next() {
		var bucket int64
		var cells sql.NullString
		var sats, gpsLevel, up, down sql.NullInt64

		if err = first.Scan(&bucket, &cells, &sats, &gpsLevel, &up, &down); err != nil {
			err = fmt.Errorf("scanning bucket first row: %w", err)
			return
		}

		i, ok := index[bucket]
		if !ok {
			continue
		}
		points[i].CellVoltages = cellsFromJSON(cells)
		points[i].Satellites = fromNullInt(sats)
		points[i].GPSSignalLevel = fromNullInt(gpsLevel)
		points[i].RCUplink = fromNullInt(up)
		points[i].RCDownlink = fromNullInt(down)
	}
	err = first.Err()
	return
}

func (s *SqliteStore) ExtractTrack(ctx context.Context, flightID int64, maxPoints int) (track []flight.TrackPoint, err error) {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}

	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectTrackSQL, flightID)
	if err != nil {
		err = fmt.Errorf("querying track: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	var all []flight.TrackPoint
	for rows.Next() {
		var tp flight.TrackPoint
		if err = rows.Scan(&tp.Latitude, &tp.Longitude, &tp.Height); err != nil {
			err = fmt.Errorf("scanning track point: %w", err)
			return
		}
		all = append(all, tp)
	}
	if err = rows.Err(); err != nil {
		return
	}

	// A 2D path keeps its shape better under stride sampling than under
	// temporal averaging.
	if len(all) <= maxPoints {
		return all, nil
	}
	stride := (len(all) + maxPoints - 1) / maxPoints
	track = make([]flight.TrackPoint, 0, maxPoints)
	for i := 0; i < len(all); i += stride {
		track = append(track, all[i])
	}
	return track, nil
}

func (s *SqliteStore) OverviewStats(ctx context.Context) (stats *OverviewStats, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stats = &OverviewStats{}
	err = db.QueryRowContext(ctx, selectOverviewTotalsSQL).Scan(
		&stats.TotalFlights, &stats.TotalDurationSecs, &stats.TotalDistance,
		&stats.MaxAltitude, &stats.MaxSpeed)
	if err != nil {
		err = fmt.Errorf("querying totals: %w", err)
		return
	}

	if stats.DroneUsage, err = s.usageEntries(ctx, db, selectDroneUsageSQL); err != nil {
		return
	}
	if stats.BatteryUsage, err = s.usageEntries(ctx, db, selectBatteryUsageSQL); err != nil {
		return
	}

	rows, err := db.QueryContext(ctx, selectFlightsByDateSQL)
	if err != nil {
		err = fmt.Errorf("querying flights by date: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var dc DateCount
		if err = rows.Scan(&dc.Date, &dc.Count); err != nil {
			err = fmt.Errorf("scanning date count: %w", err)
			return
		}
		stats.FlightsByDate = append(stats.FlightsByDate, dc)
	}
	if err = rows.Err(); err != nil {
		return
	}

	if stats.TopByDuration, err = s.topFlights(ctx, db, selectTopByDurationSQL); err != nil {
		return
	}
	if stats.TopByDistance, err = s.topFlights(ctx, db, selectTopByDistanceSQL); err != nil {
		return
	}
	return stats, nil
}

func (s *SqliteStore) usageEntries(ctx context.Context, db *sql.DB, query string) (entries []UsageEntry, err error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		err = fmt.Errorf("querying usage: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var e UsageEntry
		if err = rows.Scan(&e.Name, &e.Flights, &e.DurationSecs); err != nil {
			err = fmt.Errorf("scanning usage entry: %w", err)
			return
		}
		entries = append(entries, e)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) topFlights(ctx context.Context, db *sql.DB, query string) (ranks []FlightRank, err error) {
	rows, err := db.QueryContext(ctx, query, topFlightsLimit)
	if err != nil {
		err = fmt.Errorf("querying top flights: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r FlightRank
		if err = rows.Scan(&r.ID, &r.DisplayName, &r.Value); err != nil {
			err = fmt.Errorf("scanning flight rank: %w", err)
			return
		}
		ranks = append(ranks, r)
	}
	err = rows.Err()
	return
}
