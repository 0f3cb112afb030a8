package geo

// Embedded country gazetteer: ISO 3166-1 alpha-2 code, display name,
// continent and an approximate geographic centroid. Centroids are close
// enough for nearest-neighbor country resolution of a drone home point.

type continentCode int

const (
	africa continentCode = iota
	antarctica
	asia
	europe
	northAmerica
	oceania
	southAmerica
)

var continentNames = map[continentCode]string{
	africa:       "Africa",
	antarctica:   "Antarctica",
	asia:         "Asia",
	europe:       "Europe",
	northAmerica: "North America",
	oceania:      "Oceania",
	southAmerica: "South America",
}

type countryEntry struct {
	cc        string
	name      string
	continent continentCode
	lat, lon  float64
}

var countries = []countryEntry{
	{"AR", "Argentina", southAmerica, -38.4, -63.6},
	{"AT", "Austria", europe, 47.5, 14.6},
	{"AU", "Australia", oceania, -25.3, 133.8},
	{"BE", "Belgium", europe, 50.5, 4.5},
	{"BG", "Bulgaria", europe, 42.7, 25.5},
	{"BO", "Bolivia", southAmerica, -16.3, -63.6},
	{"BR", "Brazil", southAmerica, -14.2, -51.9},
	{"CA", "Canada", northAmerica, 56.1, -106.3},
	{"CH", "Switzerland", europe, 46.8, 8.2},
	{"CL", "Chile", southAmerica, -35.7, -71.5},
	{"CN", "China", asia, 35.9, 104.2},
	{"CO", "Colombia", southAmerica, 4.6, -74.3},
	{"CR", "Costa Rica", northAmerica, 9.7, -83.8},
	{"CU", "Cuba", northAmerica, 21.5, -77.8},
	{"CZ", "Czechia", europe, 49.8, 15.5},
	{"DE", "Germany", europe, 51.2, 10.5},
	{"DK", "Denmark", europe, 56.3, 9.5},
	{"DO", "Dominican Republic", northAmerica, 18.7, -70.2},
	{"DZ", "Algeria", africa, 28.0, 1.7},
	{"EC", "Ecuador", southAmerica, -1.8, -78.2},
	{"EE", "Estonia", europe, 58.6, 25.0},
	{"EG", "Egypt", africa, 26.8, 30.8},
	{"ES", "Spain", europe, 40.5, -3.7},
	{"ET", "Ethiopia", africa, 9.1, 40.5},
	{"FI", "Finland", europe, 61.9, 25.7},
	{"FJ", "Fiji", oceania, -17.7, 178.1},
	{"FR", "France", europe, 46.2, 2.2},
	{"GB", "United Kingdom", europe, 55.4, -3.4},
	{"GR", "Greece", europe, 39.1, 21.8},
	{"GT", "Guatemala", northAmerica, 15.8, -90.2},
	{"HR", "Croatia", europe, 45.1, 15.2},
	{"HU", "Hungary", europe, 47.2, 19.5},
	{"ID", "Indonesia", asia, -0.8, 113.9},
	{"IE", "Ireland", europe, 53.4, -8.2},
	{"IL", "Israel", asia, 31.0, 34.9},
	{"IN", "India", asia, 20.6, 79.0},
	{"IS", "Iceland", europe, 64.9, -19.0},
	{"IT", "Italy", europe, 41.9, 12.6},
	{"JM", "Jamaica", northAmerica, 18.1, -77.3},
	{"JO", "Jordan", asia, 30.6, 36.2},
	{"JP", "Japan", asia, 36.2, 138.3},
	{"KE", "Kenya", africa, -0.0, 37.9},
	{"KH", "Cambodia", asia, 12.6, 105.0},
	{"KR", "South Korea", asia, 35.9, 127.8},
	{"LK", "Sri Lanka", asia, 7.9, 80.8},
	{"LT", "Lithuania", europe, 55.2, 23.9},
	{"LU", "Luxembourg", europe, 49.8, 6.1},
	{"LV", "Latvia", europe, 56.9, 24.6},
	{"MA", "Morocco", africa, 31.8, -7.1},
	{"MG", "Madagascar", africa, -18.8, 46.9},
	{"MX", "Mexico", northAmerica, 23.6, -102.6},
	{"MY", "Malaysia", asia, 4.2, 102.0},
	{"NA", "Namibia", africa, -22.9, 18.5},
	{"NG", "Nigeria", africa, 9.1, 8.7},
	{"NL", "Netherlands", europe, 52.1, 5.3},
	{"NO", "Norway", europe, 60.5, 8.5},
	{"NP", "Nepal", asia, 28.4, 84.1},
	{"NZ", "New Zealand", oceania, -40.9, 174.9},
	{"PA", "Panama", northAmerica, 8.5, -80.8},
	{"PE", "Peru", southAmerica, -9.2, -75.0},
	{"PH", "Philippines", asia, 12.9, 121.8},
	{"PK", "Pakistan", asia, 30.4, 69.3},
	{"PL", "Poland", europe, 51.9, 19.1},
	{"PT", "Portugal", europe, 39.4, -8.2},
	{"PY", "Paraguay", southAmerica, -23.4, -58.4},
	{"RO", "Romania", europe, 45.9, 24.9},
	{"RS", "Serbia", europe, 44.0, 21.0},
	{"RU", "Russia", europe, 61.5, 105.3},
	{"SA", "Saudi Arabia", asia, 23.9, 45.1},
	{"SE", "Sweden", europe, 60.1, 18.6},
	{"SG", "Singapore", asia, 1.35, 103.8},
	{"SI", "Slovenia", europe, 46.2, 15.0},
	{"SK", "Slovakia", europe, 48.7, 19.7},
	{"TH", "Thailand", asia, 15.9, 100.99},
	{"TR", "Turkey", asia, 39.0, 35.2},
	{"TW", "Taiwan", asia, 23.7, 121.0},
	{"TZ", "Tanzania", africa, -6.4, 34.9},
	{"UA", "Ukraine", europe, 48.4, 31.2},
	{"US", "United States", northAmerica, 37.1, -95.7},
	{"UY", "Uruguay", southAmerica, -32.5, -55.8},
	{"VN", "Vietnam", asia, 14.1, 108.3},
	{"ZA", "South Africa", africa, -30.6, 22.9},
	{"ZM", "Zambia", africa, -13.1, 27.8},
	{"ZW", "Zimbabwe", africa, -19.0, 29.2},
}
