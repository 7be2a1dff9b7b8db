package eloverblik

import (
	"encoding/json"
	"fmt"
	"time"
)

const meterReadingDocumentName = "meter reading"

// MeterReadingLayout is the timestamp layout of meter readings. It carries
// no zone; parsed values are wall-clock times in time.UTC.
const MeterReadingLayout = "01/02/2006 15:04:05"

// MeterReading holds the readings of one metering point.
type MeterReading struct {
	MeteringPointID string
	Readings        []Reading
}

// Reading is a single register value read off a physical meter.
type Reading struct {
	Read        time.Time
	Registered  time.Time
	MeterNumber string
	Value       float64
	Unit        string
}

type (
	meterReadingResult struct {
		MeteringPointID *string        `json:"meteringPointId"`
		Readings        []readingEntry `json:"readings"`
	}

	readingEntry struct {
		ReadingDate      *string `json:"readingDate"`
		RegistrationDate *string `json:"registrationDate"`
		MeterNumber      *scalar `json:"meterNumber"`
		MeterReading     *scalar `json:"meterReading"`
		MeasurementUnit  *string `json:"measurementUnit"`
	}
)

// DecodeMeterReading decodes the result object of one metering point from
// the getmeterreadings endpoint.
func DecodeMeterReading(data []byte) (MeterReading, error) {
	var res meterReadingResult
	if err := json.Unmarshal(data, &res); err != nil {
		return MeterReading{}, &DecodeError{Document: meterReadingDocumentName, Err: err}
	}

	if res.MeteringPointID == nil {
		return MeterReading{}, missingField(meterReadingDocumentName, "meteringPointId")
	}
	if res.Readings == nil {
		return MeterReading{}, missingField(meterReadingDocumentName, "readings")
	}

	mr := MeterReading{
		MeteringPointID: *res.MeteringPointID,
		Readings:        make([]Reading, 0, len(res.Readings)),
	}
	for i, entry := range res.Readings {
		r, err := decodeReading(entry, fmt.Sprintf("readings[%d]", i))
		if err != nil {
			return MeterReading{}, err
		}
		mr.Readings = append(mr.Readings, r)
	}
	return mr, nil
}

func decodeReading(e readingEntry, field string) (Reading, error) {
	switch {
	case e.ReadingDate == nil:
		return Reading{}, missingField(meterReadingDocumentName, field+".readingDate")
	case e.RegistrationDate == nil:
		return Reading{}, missingField(meterReadingDocumentName, field+".registrationDate")
	case e.MeterNumber == nil:
		return Reading{}, missingField(meterReadingDocumentName, field+".meterNumber")
	case e.MeterReading == nil:
		return Reading{}, missingField(meterReadingDocumentName, field+".meterReading")
	case e.MeasurementUnit == nil:
		return Reading{}, missingField(meterReadingDocumentName, field+".measurementUnit")
	}

	read, err := time.Parse(MeterReadingLayout, *e.ReadingDate)
	if err != nil {
		return Reading{}, &DecodeError{Document: meterReadingDocumentName, Field: field + ".readingDate", Err: err}
	}
	registered, err := time.Parse(MeterReadingLayout, *e.RegistrationDate)
	if err != nil {
		return Reading{}, &DecodeError{Document: meterReadingDocumentName, Field: field + ".registrationDate", Err: err}
	}
	value, err := e.MeterReading.float()
	if err != nil {
		return Reading{}, &DecodeError{Document: meterReadingDocumentName, Field: field + ".meterReading", Err: err}
	}

	return Reading{
		Read:        read,
		Registered:  registered,
		MeterNumber: string(*e.MeterNumber),
		Value:       value,
		Unit:        *e.MeasurementUnit,
	}, nil
}

// resultItem is the {"result": {...}} wrapper around each element of the
// details, charges and meter reading responses.
type resultItem struct {
	Result json.RawMessage `json:"result"`
}

// unwrapResults returns the inner "result" of every element in a list.
func unwrapResults(endpoint string, result json.RawMessage) ([]json.RawMessage, error) {
	var items []resultItem
	if err := json.Unmarshal(result, &items); err != nil {
		return nil, &DecodeError{Document: endpoint + " response", Field: "result", Err: err}
	}

	out := make([]json.RawMessage, 0, len(items))
	for i, item := range items {
		if len(item.Result) == 0 || string(item.Result) == "null" {
			return nil, missingField(endpoint+" response", fmt.Sprintf("result[%d].result", i))
		}
		out = append(out, item.Result)
	}
	return out, nil
}
