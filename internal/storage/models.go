package storage

// OverviewStats aggregates the whole flight library.
type OverviewStats struct {
	TotalFlights      int
	TotalDurationSecs float64
	TotalDistance     float64
	MaxAltitude       float64
	MaxSpeed          float64
	DroneUsage        []UsageEntry
	BatteryUsage      []UsageEntry
	FlightsByDate     []DateCount
	TopByDuration     []FlightRank
	TopByDistance     []FlightRank
}

// UsageEntry counts flights and accumulated airtime per drone model or
// battery serial.
type UsageEntry struct {
	Name         string
	Flights      int
	DurationSecs float64
}

type DateCount struct {
	Date  string // YYYY-MM-DD
	Count int
}

type FlightRank struct {
	ID          int64
	DisplayName string
	Value       float64
}
