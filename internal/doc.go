// Package internal holds the sync service built on the eloverblik client.
//
// # Architecture
//
// The service is structured into several key packages:
//   - api: Sync pipeline from the Eloverblik API into storage
//   - config: YAML and environment configuration
//   - database: PostgreSQL storage for time series and meter readings
//   - grpc: gRPC query service, health checking and middleware
//   - models: Stored row types
//   - scheduler: Cron driven background syncs
//
// Key Features
//
//   - Sync:
//     Each run fetches the configured lookback window for every metering
//     point and upserts it, so revised values overwrite earlier ones.
//
//   - Discovery:
//     With no metering points configured, the points linked to the
//     refresh token are listed on every run.
//
//   - Queries:
//     Stored data is served per metering point and time range, with
//     rate limiting and an LRU response cache purged after each sync.
//
// Example Usage
//
//	client := server.NewMeterDataClient(conn)
//	req, _ := structpb.NewStruct(map[string]interface{}{
//	    "metering_point_id": "571313174100000000",
//	    "start":             "2024-01-01T00:00:00Z",
//	    "end":               "2024-01-02T00:00:00Z",
//	})
//	resp, err := client.QueryTimeSeries(ctx, req)
//
// For more information about specific packages, see their respective
// documentation.
package internal
