package core

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
)

var (
	timeStringRe   = regexp.MustCompile(`(?i)^\s*([0-9.]+)\s*(ms|s)?\s*$`)
	memoryStringRe = regexp.MustCompile(`(?i)^\s*([0-9.]+)\s*(k|m|g)?\s*$`)
)

const (
	nsPerMillisecond = 1_000_000
	nsPerSecond      = 1_000_000_000

	bytesPerKiB = 1024
	bytesPerMiB = 1024 * 1024
	bytesPerGiB = 1024 * 1024 * 1024
)

// ParseTimeToNs resolves a problem-config time value to nanoseconds.
//
// Accepts either a bare number (already in seconds, per the config
// grammar's implicit default unit) or a string matching
// `^([0-9.]+)\s*(ms|s)?$` (case-insensitive, default unit "s").
func ParseTimeToNs(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v) * nsPerSecond, nil
	case int64:
		return v * nsPerSecond, nil
	case float64:
		return int64(math.Round(v * nsPerSecond)), nil
	case string:
		m := timeStringRe.FindStringSubmatch(v)
		if m == nil {
			return 0, newErr(KindConfigInvalid, "invalid time string %q", v)
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, newErr(KindConfigInvalid, "invalid time string %q", v)
		}
		unit := strings.ToLower(m[2])
		switch unit {
		case "ms":
			return int64(math.Round(n * nsPerMillisecond)), nil
		default: // "s" or empty defaults to seconds
			return int64(math.Round(n * nsPerSecond)), nil
		}
	default:
		return 0, newErr(KindConfigInvalid, "unsupported time value type %T", raw)
	}
}

// ParseMemoryToBytes resolves a problem-config memory value to bytes.
//
// Accepts either a bare number (already in bytes) or a string matching
// `^([0-9.]+)\s*(k|m|g|)$` (case-insensitive, IEC binary units).
func ParseMemoryToBytes(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(math.Round(v)), nil
	case string:
		m := memoryStringRe.FindStringSubmatch(v)
		if m == nil {
			return 0, newErr(KindConfigInvalid, "invalid memory string %q", v)
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, newErr(KindConfigInvalid, "invalid memory string %q", v)
		}
		switch strings.ToLower(m[2]) {
		case "k":
			return int64(math.Round(n * bytesPerKiB)), nil
		case "m":
			return int64(math.Round(n * bytesPerMiB)), nil
		case "g":
			return int64(math.Round(n * bytesPerGiB)), nil
		default:
			return int64(math.Round(n)), nil
		}
	default:
		return 0, newErr(KindConfigInvalid, "unsupported memory value type %T", raw)
	}
}

// humanBytes renders a byte count for log fields, e.g. "256MiB".
func humanBytes(n int64) string {
	if n < 0 {
		return fmt.Sprintf("%d", n)
	}
	return units.BytesSize(float64(n))
}
