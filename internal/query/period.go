package query

import (
	"errors"
	"fmt"

	"tradequery/internal/model"
)

var (
	ErrInvalidYear   = errors.New("query: year must be a positive 4-digit number")
	ErrRangeInverted = errors.New("query: start year is after end year")
)

// Periods expands an inclusive year range into one period per year.
// Inverted bounds are rejected, not swapped.
func Periods(from, to string) ([]model.Period, error) {
	start, ok := model.ParseYear(from)
	if !ok {
		return nil, fmt.Errorf("%w: start %q", ErrInvalidYear, from)
	}
	end, ok := model.ParseYear(to)
	if !ok {
		return nil, fmt.Errorf("%w: end %q", ErrInvalidYear, to)
	}
	if start > end {
		return nil, fmt.Errorf("%w: %d > %d", ErrRangeInverted, start, end)
	}
	return yearsBetween(start, end), nil
}

func yearsBetween(start, end int) []model.Period {
	count := end - start + 1
	if count <= 0 {
		return []model.Period{}
	}
	periods := make([]model.Period, 0, count)
	for year := start; year <= end; year++ {
		periods = append(periods, model.Period{Year: year})
	}
	return periods
}
