package parser

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies a supported flight log dialect.
type Format int

const (
	FormatUnsupported  Format = iota
	FormatDroneLogbook        // CSV re-import of this tool's own export
	FormatLitchi              // Litchi flight record CSV
	FormatDJI                 // DJI flight controller binary log
)

func (f Format) String() string {
	switch f {
	case FormatDroneLogbook:
		return "dronelogbook-csv"
	case FormatLitchi:
		return "litchi-csv"
	case FormatDJI:
		return "dji-binary"
	default:
		return "unsupported"
	}
}

// maxHeaderLine bounds how much of a file detection is allowed to read.
// Classification must stay cheap: one header line, never a full parse.
const maxHeaderLine = 64 * 1024

// DetectFormat classifies a log file by its first non-empty line and file
// extension. The re-import CSV dialect is checked before the Litchi dialect
// before the binary fallback; first match wins. An empty file classifies as
// FormatUnsupported.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnsupported, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxHeaderLine)

	var header string
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			header = line
			break
		}
	}
	if err = scanner.Err(); err != nil {
		// A binary log has no line structure; an oversized first "line" in
		// a .txt file is the binary format, not a broken CSV.
		if errors.Is(err, bufio.ErrTooLong) && strings.EqualFold(filepath.Ext(path), ".txt") {
			return FormatDJI, nil
		}
		return FormatUnsupported, fmt.Errorf("reading header: %w", err)
	}
	if header == "" {
		return FormatUnsupported, nil
	}

	lower := strings.ToLower(header)
	switch {
	case strings.Contains(lower, "time_s") && strings.Contains(lower, "lat") && strings.Contains(lower, "lng"):
		return FormatDroneLogbook, nil

	case strings.Contains(lower, "latitude") && strings.Contains(lower, "longitude"):
		return FormatLitchi, nil

	case strings.EqualFold(filepath.Ext(path), ".txt"):
		return FormatDJI, nil
	}

	return FormatUnsupported, nil
}
