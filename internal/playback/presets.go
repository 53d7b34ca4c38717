package playback

import (
	"strconv"
	"strings"
	"time"

	"github.com/efreitasn/futuresim/internal/domain"
)

// Named speeds accepted in place of a numeric multiplier.
var speedPresets = map[string]float64{
	"slow":   6,
	"normal": 60,
	"fast":   600,
}

// ParseSpeed accepts a preset name or a positive number.
func ParseSpeed(s string) (float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return speedPresets["normal"], nil
	}
	if v, ok := speedPresets[s]; ok {
		return v, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, domain.Invalidf("invalid playback speed: %q", s)
	}
	return v, nil
}

// ParsePrecision accepts tick, minute_bar and the low_precision alias
// of minute_bar.
func ParsePrecision(s string) (domain.Precision, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "tick":
		return domain.PrecisionTick, nil
	case "", "minute_bar", "low_precision":
		return domain.PrecisionMinuteBar, nil
	}
	return "", domain.Invalidf("unknown playback precision: %q", s)
}

// Step is the simulated time one recorded element covers.
func Step(p domain.Precision) time.Duration {
	if p == domain.PrecisionTick {
		return 500 * time.Millisecond
	}
	return time.Minute
}

// Interval is the wall-clock time between two advances at speed.
func Interval(p domain.Precision, speed float64) time.Duration {
	if speed <= 0 {
		return 0
	}
	return time.Duration(float64(Step(p)) / speed)
}
