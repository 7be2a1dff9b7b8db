package models

import "time"

// TimeSeriesPoint is one interval value as stored, flattened out of a
// market document and tagged with the metering point it belongs to.
type TimeSeriesPoint struct {
	MeteringPointID string    `json:"metering_point_id"`
	DocumentMRID    string    `json:"document_mrid"`
	BusinessType    string    `json:"business_type"`
	CurveType       string    `json:"curve_type"`
	Unit            string    `json:"unit"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	Resolution      string    `json:"resolution"`
	Position        int       `json:"position"`
	Quantity        float64   `json:"quantity"`
	Quality         string    `json:"quality"`
}

// MeterReadingRow is one register reading as stored.
type MeterReadingRow struct {
	MeteringPointID string    `json:"metering_point_id"`
	ReadAt          time.Time `json:"read_at"`
	RegisteredAt    time.Time `json:"registered_at"`
	MeterNumber     string    `json:"meter_number"`
	Value           float64   `json:"value"`
	Unit            string    `json:"unit"`
}
