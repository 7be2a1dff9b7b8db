package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/eloverblik/internal/database"
	"github.com/tejusbharadwaj/eloverblik/internal/models"
	"github.com/tejusbharadwaj/eloverblik/pkg/eloverblik"
)

var (
	ErrNoMeteringPoints = errors.New("no metering points to sync")
	ErrFetch            = errors.New("error fetching meter data")
	ErrStore            = errors.New("error storing meter data")
)

// MeterDataClient is the part of *eloverblik.Client the fetcher uses.
type MeterDataClient interface {
	ListMeteringPoints(ctx context.Context, includeAll bool) ([]json.RawMessage, error)
	GetTimeSeries(ctx context.Context, ids []string, start, end time.Time, agg eloverblik.Aggregation) ([]eloverblik.TimeSeries, error)
	GetMeterReadings(ctx context.Context, ids []string, start, end time.Time) ([]eloverblik.MeterReading, error)
}

// FetcherConfig selects what a SeriesFetcher syncs.
type FetcherConfig struct {
	// MeteringPoints to sync. When empty, the points linked to the
	// account are discovered on every sync.
	MeteringPoints []string
	IncludeAll     bool
	Aggregation    eloverblik.Aggregation
	MeterReadings  bool
	Lookback       time.Duration
}

// SyncResult counts what one sync stored.
type SyncResult struct {
	MeteringPoints int
	Points         int
	Readings       int
}

type SeriesFetcher struct {
	client    MeterDataClient
	dbService database.MeterDataRepository
	config    FetcherConfig
	logger    *logrus.Logger
}

func NewSeriesFetcher(client MeterDataClient, dbService database.MeterDataRepository, config FetcherConfig, logger *logrus.Logger) *SeriesFetcher {
	return &SeriesFetcher{
		client:    client,
		dbService: dbService,
		config:    config,
		logger:    logger,
	}
}

// Sync fetches time series (and optionally meter readings) for the
// configured metering points between start and end, and stores them.
func (f *SeriesFetcher) Sync(ctx context.Context, start, end time.Time) (SyncResult, error) {
	var result SyncResult

	ids, err := f.meteringPoints(ctx)
	if err != nil {
		return result, err
	}
	result.MeteringPoints = len(ids)

	log := f.logger.WithFields(logrus.Fields{
		"metering_points": len(ids),
		"start":           start.Format(eloverblik.DateLayout),
		"end":             end.Format(eloverblik.DateLayout),
		"aggregation":     f.config.Aggregation,
	})
	log.Info("Syncing meter data")

	series, err := f.client.GetTimeSeries(ctx, ids, start, end, f.config.Aggregation)
	if err != nil {
		return result, fmt.Errorf("%w: time series: %w", ErrFetch, err)
	}

	points := FlattenTimeSeries(series)
	if err := f.dbService.BatchInsertTimeSeriesPoints(ctx, points); err != nil {
		return result, fmt.Errorf("%w: %v", ErrStore, err)
	}
	result.Points = len(points)

	if f.config.MeterReadings {
		readings, err := f.client.GetMeterReadings(ctx, ids, start, end)
		if err != nil {
			return result, fmt.Errorf("%w: meter readings: %w", ErrFetch, err)
		}

		rows := FlattenMeterReadings(readings)
		if err := f.dbService.BatchInsertMeterReadings(ctx, rows); err != nil {
			return result, fmt.Errorf("%w: %v", ErrStore, err)
		}
		result.Readings = len(rows)
	}

	log.WithFields(logrus.Fields{
		"points":   result.Points,
		"readings": result.Readings,
	}).Info("Meter data synced")
	return result, nil
}

// SyncRecent syncs the lookback window ending now.
func (f *SeriesFetcher) SyncRecent(ctx context.Context) (SyncResult, error) {
	end := time.Now()
	start := end.Add(-f.config.Lookback)
	return f.Sync(ctx, start, end)
}

// BootstrapHistoricalData backfills the lookback window once at startup.
func (f *SeriesFetcher) BootstrapHistoricalData(ctx context.Context) error {
	_, err := f.SyncRecent(ctx)
	return err
}

type meteringPointSummary struct {
	MeteringPointID string `json:"meteringPointId"`
}

func (f *SeriesFetcher) meteringPoints(ctx context.Context) ([]string, error) {
	if len(f.config.MeteringPoints) > 0 {
		return f.config.MeteringPoints, nil
	}

	raw, err := f.client.ListMeteringPoints(ctx, f.config.IncludeAll)
	if err != nil {
		return nil, fmt.Errorf("%w: metering points: %w", ErrFetch, err)
	}

	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		var mp meteringPointSummary
		if err := json.Unmarshal(item, &mp); err != nil {
			return nil, fmt.Errorf("%w: metering points: %v", ErrFetch, err)
		}
		if mp.MeteringPointID != "" {
			ids = append(ids, mp.MeteringPointID)
		}
	}
	if len(ids) == 0 {
		return nil, ErrNoMeteringPoints
	}

	f.logger.WithField("metering_points", ids).Debug("Discovered metering points")
	return ids, nil
}

// FlattenTimeSeries turns decoded market documents into storable rows.
// Each table's mRID identifies the metering point it belongs to.
func FlattenTimeSeries(series []eloverblik.TimeSeries) []models.TimeSeriesPoint {
	var points []models.TimeSeriesPoint
	for _, ts := range series {
		for _, table := range ts.Tables {
			for _, p := range table.Points {
				points = append(points, models.TimeSeriesPoint{
					MeteringPointID: table.MRID,
					DocumentMRID:    ts.MRID,
					BusinessType:    table.BusinessType,
					CurveType:       table.CurveType,
					Unit:            table.Unit,
					PeriodStart:     p.Start,
					PeriodEnd:       p.End,
					Resolution:      p.Resolution,
					Position:        p.Position,
					Quantity:        p.Quantity,
					Quality:         p.Quality,
				})
			}
		}
	}
	return points
}

// FlattenMeterReadings turns decoded meter readings into storable rows.
func FlattenMeterReadings(readings []eloverblik.MeterReading) []models.MeterReadingRow {
	var rows []models.MeterReadingRow
	for _, mr := range readings {
		for _, r := range mr.Readings {
			rows = append(rows, models.MeterReadingRow{
				MeteringPointID: mr.MeteringPointID,
				ReadAt:          r.Read,
				RegisteredAt:    r.Registered,
				MeterNumber:     r.MeterNumber,
				Value:           r.Value,
				Unit:            r.Unit,
			})
		}
	}
	return rows
}
