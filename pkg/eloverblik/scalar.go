package eloverblik

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// scalar is a JSON value the API sends either as a string or as a bare
// number. It keeps the literal text so callers decide how to parse it.
type scalar string

func (s *scalar) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = scalar(str)
		return nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = scalar(n)
	return nil
}

func (s scalar) float() (float64, error) {
	return strconv.ParseFloat(string(s), 64)
}

func (s scalar) int() (int, error) {
	return strconv.Atoi(string(s))
}

// parseTime tries each layout in order and reports the error of the first.
func parseTime(value string, layouts ...string) (time.Time, error) {
	var firstErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
