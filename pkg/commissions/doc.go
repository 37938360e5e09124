// Package commissions provides types, interfaces, and helpers for working with
// the incentive compensation REST API.
//
// # Overview
//
// Resources are described by a Schema registered in a Registry. The built-in
// catalogue covers participants, positions, titles, plans, credits, sales
// transactions, calendars, periods, unit types, pipelines and more. A
// Resource holds typed values keyed by local (snake_case) field names; the
// Codec converts between resources and wire objects (camelCase), dropping
// unknown wire fields with a warning.
//
// A concrete client is provided by the sapclient package. Most consumers
// construct a client there and use the ResourcesClient and PipelinesClient
// interfaces defined here.
//
// # Filters
//
// List filters are built from comparisons combined with And and Or:
//
//	filter := commissions.And(
//	  commissions.Equals("calendar", "2001"),
//	  commissions.GreaterOrEqual("startDate", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
//	)
//	// (calendar eq '2001' and startDate ge 2024/01/01)
//
// # Errors
//
// Every failure surfaced by a client is an *Error with a closed ErrorKind.
// Match kinds with errors.Is against the kind sentinels, or switch on
// KindOf:
//
//	_, err := cli.Resources().Create(ctx, unitType)
//	switch commissions.KindOf(err) {
//	case commissions.KindAlreadyExists:
//	case commissions.KindMissingField:
//	}
//
// # Pipelines
//
// Jobs (StageJob, ImportJob, PurgeJob, CancelJob) are validated before any
// request is sent. Submitting a job returns the created Run, which can be
// polled with AwaitCompletion.
//
// # Caching
//
// Resolve and ResolveAll consult an optional Cache. MemoryCache keeps entries
// in process; NATSKVCache shares them through a JetStream key-value bucket.
package commissions
