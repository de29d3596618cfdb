package cron

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidExpression is returned when a cron expression cannot be parsed
// due to incorrect field count, out-of-range values, or malformed syntax.
var ErrInvalidExpression = errors.New("invalid cron expression")

// ErrNoMatch is returned when Next exhausts its iteration limit without
// finding a time that satisfies all cron fields.
var ErrNoMatch = errors.New("cron: no matching time found within iteration limit")

// ErrNilSchedule is returned when Next is called on a nil schedule receiver.
var ErrNilSchedule = errors.New("cron schedule is nil")

const (
	cronFieldCount = 5 // minute hour day-of-month month day-of-week
	splitParts     = 2 // parts when splitting step or range expressions
)

// fieldSpec describes the bounds and the optional symbolic names of one
// cron field.
type fieldSpec struct {
	label string
	min   int
	max   int
	names map[string]int
}

var (
	minuteSpec = fieldSpec{label: "minute", min: 0, max: 59}
	hourSpec   = fieldSpec{label: "hour", min: 0, max: 23}
	domSpec    = fieldSpec{label: "day-of-month", min: 1, max: 31}

	monthSpec = fieldSpec{label: "month", min: 1, max: 12, names: map[string]int{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}}

	dowSpec = fieldSpec{label: "day-of-week", min: 0, max: 6, names: map[string]int{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	}}
)

// Schedule represents a parsed cron schedule capable of computing
// the next execution time after a given reference time.
type Schedule interface {
	Next(time.Time) (time.Time, error)
}

type schedule struct {
	minutes []int
	hours   []int
	doms    []int
	months  []int
	dows    []int
}

// Parse parses a standard 5-field cron expression and returns a Schedule
// that can compute the next execution time. The field order is minute,
// hour, day-of-month, month, day-of-week; month and day-of-week accept
// three-letter names (jan-dec, sun-sat) as well as numbers. Returns
// ErrInvalidExpression if the expression is malformed or out of range.
func Parse(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}

	fields := strings.Fields(expr)
	if len(fields) != cronFieldCount {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidExpression, cronFieldCount, len(fields))
	}

	specs := []fieldSpec{minuteSpec, hourSpec, domSpec, monthSpec, dowSpec}
	parsed := make([][]int, cronFieldCount)

	for i, spec := range specs {
		vals, err := parseField(fields[i], spec)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", spec.label, err)
		}

		parsed[i] = vals
	}

	return &schedule{
		minutes: parsed[0],
		hours:   parsed[1],
		doms:    parsed[2],
		months:  parsed[3],
		dows:    parsed[4],
	}, nil
}

// Next computes the next execution time after the given reference time.
// It normalizes the input to UTC, advances by one minute, and iteratively
// narrows month, then day, then hour, then minute until every field
// matches. Returns the matching time in UTC, or ErrNoMatch if nothing
// matches within the iteration limit (a year of minutes).
func (sched *schedule) Next(from time.Time) (time.Time, error) {
	if sched == nil {
		return time.Time{}, ErrNilSchedule
	}

	from = from.UTC()
	candidate := from.Add(time.Minute).Truncate(time.Minute)

	const maxIterations = 366 * 24 * 60
	for i := 0; i < maxIterations; i++ {
		switch {
		case !slices.Contains(sched.months, int(candidate.Month())):
			candidate = time.Date(candidate.Year(), candidate.Month()+1, 1, 0, 0, 0, 0, time.UTC)

		case !slices.Contains(sched.doms, candidate.Day()) ||
			!slices.Contains(sched.dows, int(candidate.Weekday())):
			next := candidate.AddDate(0, 0, 1)
			candidate = time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, time.UTC)

		case !slices.Contains(sched.hours, candidate.Hour()):
			candidate = candidate.Add(time.Hour).Truncate(time.Hour)

		case !slices.Contains(sched.minutes, candidate.Minute()):
			candidate = candidate.Add(time.Minute)

		default:
			return candidate, nil
		}
	}

	return time.Time{}, ErrNoMatch
}

func parseField(field string, spec fieldSpec) ([]int, error) {
	var result []int

	for _, part := range strings.Split(field, ",") {
		vals, err := parsePart(part, spec)
		if err != nil {
			return nil, err
		}

		result = append(result, vals...)
	}

	return deduplicate(result), nil
}

func parsePart(part string, spec fieldSpec) ([]int, error) {
	var rangeStart, rangeEnd, step int

	stepParts := strings.SplitN(part, "/", splitParts)
	hasStep := len(stepParts) == splitParts

	if hasStep {
		s, err := parseStep(stepParts[1])
		if err != nil {
			return nil, err
		}

		step = s
	}

	rangePart := stepParts[0]

	switch {
	case rangePart == "*":
		rangeStart = spec.min
		rangeEnd = spec.max
	case strings.Contains(rangePart, "-"):
		lo, hi, err := parseRange(rangePart, spec)
		if err != nil {
			return nil, err
		}

		rangeStart = lo
		rangeEnd = hi
	default:
		val, err := parseValue(rangePart, spec)
		if err != nil {
			return nil, err
		}

		if !hasStep {
			return []int{val}, nil
		}

		rangeStart = val
		rangeEnd = spec.max
	}

	if !hasStep {
		step = 1
	}

	var vals []int
	for v := rangeStart; v <= rangeEnd; v += step {
		vals = append(vals, v)
	}

	return vals, nil
}

// parseValue resolves a single token to an integer, accepting symbolic
// names when the field defines them, and validates bounds.
func parseValue(raw string, spec fieldSpec) (int, error) {
	if spec.names != nil {
		if v, ok := spec.names[strings.ToLower(raw)]; ok {
			return v, nil
		}
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid value %q", ErrInvalidExpression, raw)
	}

	if val < spec.min || val > spec.max {
		return 0, fmt.Errorf("%w: value %d out of bounds [%d, %d]", ErrInvalidExpression, val, spec.min, spec.max)
	}

	return val, nil
}

// parseStep parses and validates a cron step value, ensuring it is a positive integer.
func parseStep(raw string) (int, error) {
	s, err := strconv.Atoi(raw)
	if err != nil || s <= 0 {
		return 0, fmt.Errorf("%w: invalid step %q", ErrInvalidExpression, raw)
	}

	return s, nil
}

// parseRange parses a "lo-hi" range expression and validates its bounds.
func parseRange(rangePart string, spec fieldSpec) (int, int, error) {
	bounds := strings.SplitN(rangePart, "-", splitParts)

	lo, err := parseValue(bounds[0], spec)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid range start %q", ErrInvalidExpression, bounds[0])
	}

	hi, err := parseValue(bounds[1], spec)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid range end %q", ErrInvalidExpression, bounds[1])
	}

	if lo > hi {
		return 0, 0, fmt.Errorf("%w: range %d-%d is inverted", ErrInvalidExpression, lo, hi)
	}

	return lo, hi, nil
}

func deduplicate(vals []int) []int {
	seen := make(map[int]bool, len(vals))
	result := make([]int, 0, len(vals))

	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}

	slices.Sort(result)

	return result
}
