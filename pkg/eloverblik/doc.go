// Package eloverblik is a client for the Eloverblik customer API, the
// Danish DataHub's access point for electricity metering data.
//
// The client authenticates with a refresh token created in the Eloverblik
// portal. On first use, and whenever the cached access token is 59 minutes
// old, the refresh token is exchanged for a new access token.
//
// Errors fall into three groups that can be told apart with errors.Is:
//   - ErrInvalidArgument: bad input, detected before any request is sent
//   - ErrHTTPStatus: the API answered with a non-2xx status (*HTTPError)
//   - ErrDataFormat: the API answered with data that does not decode (*DecodeError)
//
// Example Usage
//
//	client, err := eloverblik.New(refreshToken)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	series, err := client.GetTimeSeries(ctx,
//	    []string{"571313174100000000"},
//	    time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
//	    time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
//	    eloverblik.Hour,
//	)
package eloverblik
