// Package spotprice implements a service that keeps electricity spot prices
// continuous per interval for a set of price areas.
//
// # Architecture
//
// The service is structured into several key packages:
//   - source: Adapters for Energy-Charts, vendor CSV feeds and static prices
//   - fallback: Tries sources in priority order, sequentially or in parallel
//   - timestamp, interval: Parsing, DST-aware labelling and resolution changes
//   - currency: Unit, exchange rate (ECB or static), VAT and subunit conversion
//   - store: Per-area cache of today and tomorrow with midnight rollover
//   - pipeline: The fetch cycle tying everything together, plus rate gating
//   - database: Snapshot persistence (memory, PostgreSQL, SQLite, Redis)
//   - grpc: PriceService and health checks
//   - scheduler: Periodic refresh and rollover jobs
//
// Key Features
//
//   - Continuity:
//     Tomorrow's prices are promoted at local midnight so the current
//     interval always has a price once tomorrow was published.
//
//   - Fallback:
//     A source that fails or lacks the current interval is passed over and
//     recorded; the result names every attempted source.
//
//   - DST:
//     Days have 92, 96 or 100 quarter-hour intervals; repeated wall-clock
//     labels on fall-back days carry a "*" suffix.
//
// Example Usage
//
//	client := server.NewPriceClient(conn)
//	resp, err := client.GetPrices(ctx, &server.GetPricesRequest{
//	    Area:  "SE3",
//	    Force: false,
//	})
//
// For more information about specific packages, see their respective
// documentation.
package spotprice
