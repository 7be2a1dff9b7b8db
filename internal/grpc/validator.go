package server

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// The API serves at most two years per request; queries are held to the same.
const maxTimeRange = 2 * 365 * 24 * time.Hour

// MeterDataQuery is a validated QueryTimeSeries or QueryMeterReadings request.
type MeterDataQuery struct {
	MeteringPointID string
	Start           time.Time
	End             time.Time
	Resolution      string
}

type RequestValidator struct {
	validResolutions map[string]bool
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{
		validResolutions: map[string]bool{
			"PT15M": true,
			"PT1H":  true,
			"P1D":   true,
			"P1M":   true,
			"P1Y":   true,
		},
	}
}

// Parse reads and validates the query fields of req. Resolution is optional
// and only meaningful for time series.
func (v *RequestValidator) Parse(req *structpb.Struct) (MeterDataQuery, error) {
	var q MeterDataQuery
	fields := req.GetFields()

	q.MeteringPointID = fields["metering_point_id"].GetStringValue()
	q.Resolution = fields["resolution"].GetStringValue()

	var err error
	if q.Start, err = parseTimestamp(fields, "start"); err != nil {
		return q, err
	}
	if q.End, err = parseTimestamp(fields, "end"); err != nil {
		return q, err
	}

	return q, v.Validate(q)
}

// Validate checks if the request parameters are valid
func (v *RequestValidator) Validate(q MeterDataQuery) error {
	if q.MeteringPointID == "" {
		return fmt.Errorf("missing metering_point_id")
	}

	// Validate timestamps are present
	if q.Start.IsZero() || q.End.IsZero() {
		return fmt.Errorf("missing timestamp")
	}

	// Validate time range
	if !q.Start.Before(q.End) {
		return fmt.Errorf("start time must be before end time")
	}

	// Validate maximum time range
	if q.End.Sub(q.Start) > maxTimeRange {
		return fmt.Errorf("time range exceeds maximum allowed")
	}

	if q.Resolution != "" && !v.validResolutions[q.Resolution] {
		return fmt.Errorf("invalid resolution: %s", q.Resolution)
	}

	return nil
}

func parseTimestamp(fields map[string]*structpb.Value, name string) (time.Time, error) {
	raw := fields[name].GetStringValue()
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %q is not an RFC 3339 timestamp", name, raw)
	}
	return t, nil
}
