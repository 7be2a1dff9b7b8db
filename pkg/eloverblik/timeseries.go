package eloverblik

import (
	"encoding/json"
	"fmt"
	"time"
)

const marketDocumentName = "MyEnergyData_MarketDocument"

// TimeSeriesLayout is the timestamp layout of market documents. The API
// uses an ISO 8601 offset without a colon, or "Z" for UTC.
const TimeSeriesLayout = "2006-01-02T15:04:05Z0700"

var timeSeriesLayouts = []string{TimeSeriesLayout, time.RFC3339}

// TimeSeries is the decoded market document of one metering point.
type TimeSeries struct {
	MRID    string
	Created time.Time
	Start   time.Time
	End     time.Time
	Tables  []Table
}

// Table is one series block of a market document, with the points of all
// its periods flattened in document order.
type Table struct {
	MRID         string
	BusinessType string
	CurveType    string
	Unit         string
	Points       []Point
}

// Point is a single interval value. Start, End and Resolution come from
// the period the point belongs to; Position is 1-based within that period.
type Point struct {
	Start      time.Time
	End        time.Time
	Resolution string
	Position   int
	Quantity   float64
	Quality    string
}

// Wire shapes. Pointer fields distinguish a missing key from a zero value.
type (
	marketDocumentResult struct {
		Document json.RawMessage `json:"MyEnergyData_MarketDocument"`
	}

	marketDocument struct {
		MRID            *string       `json:"mRID"`
		CreatedDateTime *string       `json:"createdDateTime"`
		PeriodInterval  *timeInterval `json:"period.timeInterval"`
		TimeSeries      []seriesBlock `json:"TimeSeries"`
	}

	timeInterval struct {
		Start *string `json:"start"`
		End   *string `json:"end"`
	}

	seriesBlock struct {
		MRID         *string       `json:"mRID"`
		BusinessType *string       `json:"businessType"`
		CurveType    *string       `json:"curveType"`
		Unit         *string       `json:"measurement_Unit.name"`
		Periods      []periodBlock `json:"Period"`
	}

	periodBlock struct {
		Resolution   *string       `json:"resolution"`
		TimeInterval *timeInterval `json:"timeInterval"`
		Points       []pointBlock  `json:"Point"`
	}

	pointBlock struct {
		Position *scalar `json:"position"`
		Quantity *scalar `json:"out_Quantity.quantity"`
		Quality  *string `json:"out_Quantity.quality"`
	}
)

// DecodeTimeSeries decodes a single MyEnergyData_MarketDocument object.
// Any missing field or unparseable value fails the whole document.
func DecodeTimeSeries(data []byte) (TimeSeries, error) {
	var doc marketDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return TimeSeries{}, &DecodeError{Document: marketDocumentName, Err: err}
	}

	d := timeSeriesDecoder{}
	ts := TimeSeries{
		MRID:    d.str(doc.MRID, "mRID"),
		Created: d.timestamp(doc.CreatedDateTime, "createdDateTime"),
	}
	ts.Start, ts.End = d.interval(doc.PeriodInterval, "period.timeInterval")

	if doc.TimeSeries == nil && d.err == nil {
		d.err = missingField(marketDocumentName, "TimeSeries")
	}
	for i, series := range doc.TimeSeries {
		if d.err != nil {
			break
		}
		ts.Tables = append(ts.Tables, d.table(series, fmt.Sprintf("TimeSeries[%d]", i)))
	}

	if d.err != nil {
		return TimeSeries{}, d.err
	}
	return ts, nil
}

// timeSeriesDecoder keeps the first error and turns later calls into no-ops.
type timeSeriesDecoder struct {
	err *DecodeError
}

func (d *timeSeriesDecoder) fail(field string, err error) {
	if d.err == nil {
		d.err = &DecodeError{Document: marketDocumentName, Field: field, Err: err}
	}
}

func (d *timeSeriesDecoder) str(v *string, field string) string {
	if v == nil {
		d.fail(field, errMissing)
		return ""
	}
	return *v
}

func (d *timeSeriesDecoder) timestamp(v *string, field string) time.Time {
	s := d.str(v, field)
	if d.err != nil {
		return time.Time{}
	}
	t, err := parseTime(s, timeSeriesLayouts...)
	if err != nil {
		d.fail(field, err)
	}
	return t
}

func (d *timeSeriesDecoder) interval(v *timeInterval, field string) (time.Time, time.Time) {
	if v == nil {
		d.fail(field, errMissing)
		return time.Time{}, time.Time{}
	}
	return d.timestamp(v.Start, field+".start"), d.timestamp(v.End, field+".end")
}

func (d *timeSeriesDecoder) table(s seriesBlock, field string) Table {
	t := Table{
		MRID:         d.str(s.MRID, field+".mRID"),
		BusinessType: d.str(s.BusinessType, field+".businessType"),
		CurveType:    d.str(s.CurveType, field+".curveType"),
		Unit:         d.str(s.Unit, field+".measurement_Unit.name"),
	}
	if s.Periods == nil {
		d.fail(field+".Period", errMissing)
	}

	for i, period := range s.Periods {
		pfield := fmt.Sprintf("%s.Period[%d]", field, i)
		start, end := d.interval(period.TimeInterval, pfield+".timeInterval")
		resolution := d.str(period.Resolution, pfield+".resolution")
		if period.Points == nil {
			d.fail(pfield+".Point", errMissing)
		}

		for j, p := range period.Points {
			if d.err != nil {
				return t
			}
			t.Points = append(t.Points, Point{
				Start:      start,
				End:        end,
				Resolution: resolution,
				Position:   d.position(p.Position, fmt.Sprintf("%s.Point[%d].position", pfield, j)),
				Quantity:   d.quantity(p.Quantity, fmt.Sprintf("%s.Point[%d].out_Quantity.quantity", pfield, j)),
				Quality:    d.str(p.Quality, fmt.Sprintf("%s.Point[%d].out_Quantity.quality", pfield, j)),
			})
		}
	}
	return t
}

func (d *timeSeriesDecoder) position(v *scalar, field string) int {
	if v == nil {
		d.fail(field, errMissing)
		return 0
	}
	n, err := v.int()
	if err != nil {
		d.fail(field, err)
	}
	return n
}

func (d *timeSeriesDecoder) quantity(v *scalar, field string) float64 {
	if v == nil {
		d.fail(field, errMissing)
		return 0
	}
	f, err := v.float()
	if err != nil {
		d.fail(field, err)
	}
	return f
}

// decodeMarketDocuments unwraps and decodes the result list of a time
// series request.
func decodeMarketDocuments(result json.RawMessage) ([]TimeSeries, error) {
	var items []marketDocumentResult
	if err := json.Unmarshal(result, &items); err != nil {
		return nil, &DecodeError{Document: "gettimeseries response", Field: "result", Err: err}
	}

	series := make([]TimeSeries, 0, len(items))
	for i, item := range items {
		if len(item.Document) == 0 || string(item.Document) == "null" {
			return nil, missingField("gettimeseries response", fmt.Sprintf("result[%d].%s", i, marketDocumentName))
		}
		ts, err := DecodeTimeSeries(item.Document)
		if err != nil {
			return nil, err
		}
		series = append(series, ts)
	}
	return series, nil
}
