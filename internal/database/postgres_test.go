package database

import (
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestNaive(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	in := time.Date(2024, 1, 15, 6, 30, 0, 0, cet)

	out := naive(in)
	assert.Equal(t, time.UTC, out.Location())
	assert.Equal(t, time.Date(2024, 1, 15, 6, 30, 0, 0, time.UTC), out)
}

func TestDescribe(t *testing.T) {
	plain := errors.New("connection refused")
	assert.Same(t, plain, describe(plain))

	pqErr := &pq.Error{Code: "23505", Message: "duplicate key value"}
	err := describe(pqErr)
	assert.Contains(t, err.Error(), "unique_violation")
	assert.Contains(t, err.Error(), "23505")

	var target *pq.Error
	assert.True(t, errors.As(err, &target))
}
