package metrics

import "strings"

// DurationUnit is a duration unit tag reported by the node (libmedida duration_unit/boundary_unit).
type DurationUnit string

const (
	UnitDay         DurationUnit = "d"
	UnitHour        DurationUnit = "h"
	UnitMinute      DurationUnit = "m"
	UnitSecond      DurationUnit = "s"
	UnitMillisecond DurationUnit = "ms"
	UnitMicrosecond DurationUnit = "us"
	UnitNanosecond  DurationUnit = "ns"
)

// ParseDurationUnit validates a raw unit tag.
// Params: raw unit string from the node payload.
// Returns: typed unit or UnsupportedUnitError.
func ParseDurationUnit(raw string) (DurationUnit, error) {
	unit := DurationUnit(strings.TrimSpace(raw))
	switch unit {
	case UnitDay, UnitHour, UnitMinute, UnitSecond, UnitMillisecond, UnitMicrosecond, UnitNanosecond:
		return unit, nil
	default:
		return "", &UnsupportedUnitError{Unit: raw}
	}
}

// ToSeconds converts value expressed in unit into seconds.
// Params: value duration amount; unit one of d,h,m,s,ms,us,ns.
// Returns: value in seconds or UnsupportedUnitError for unknown units.
func ToSeconds(value float64, unit DurationUnit) (float64, error) {
	switch unit {
	case UnitDay:
		return value * 86400, nil
	case UnitHour:
		return value * 3600, nil
	case UnitMinute:
		return value * 60, nil
	case UnitSecond:
		return value, nil
	case UnitMillisecond:
		return value / 1e3, nil
	case UnitMicrosecond:
		return value / 1e6, nil
	case UnitNanosecond:
		return value / 1e9, nil
	default:
		return 0, &UnsupportedUnitError{Unit: string(unit)}
	}
}
