package eloverblik

import (
	"fmt"
	"strings"
)

// Aggregation is the time resolution the API summarizes interval data at.
// The value is sent verbatim as the last path segment of a time series
// request.
type Aggregation string

const (
	Actual  Aggregation = "Actual"
	Hour    Aggregation = "Hour"
	Day     Aggregation = "Day"
	Month   Aggregation = "Month"
	Quarter Aggregation = "Quarter"
	Year    Aggregation = "Year"
)

// Aggregations lists every supported resolution, finest first.
var Aggregations = []Aggregation{Actual, Hour, Day, Month, Quarter, Year}

// ParseAggregation resolves a case-insensitive aggregation name.
func ParseAggregation(name string) (Aggregation, error) {
	for _, a := range Aggregations {
		if strings.EqualFold(name, string(a)) {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown aggregation %q", ErrInvalidArgument, name)
}

func (a Aggregation) String() string {
	return string(a)
}

// UnmarshalText lets an Aggregation be read from config files and flags.
func (a *Aggregation) UnmarshalText(text []byte) error {
	parsed, err := ParseAggregation(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
