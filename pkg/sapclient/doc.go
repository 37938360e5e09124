// Package sapclient provides the primary entry point for constructing a
// client for the incentive compensation REST API that implements the
// commissions.Client interface.
//
// It layers configuration and HTTP transport on top of the resource model,
// filter builder and client interfaces defined in the commissions package.
//
// Quick start
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/sapcommissions/pkg/commissions"
//	  "github.com/fivetwenty-io/sapcommissions/pkg/sapclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//
//	  cli, err := sapclient.NewWithPassword(ctx, "tenant.example.com", "user", "pass")
//	  if err != nil { log.Fatal(err) }
//
//	  participants := commissions.MustSchema(commissions.TypeParticipant)
//	  it, err := cli.Resources().List(ctx, participants, &commissions.ListOptions{
//	    Filter: commissions.Equals("payeeId", "P-*"),
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  for participant, err := range it.All(ctx) {
//	    if err != nil { log.Fatal(err) }
//	    _ = participant
//	  }
//	}
//
// # Pipelines
//
// Calculation and import jobs are submitted through Pipelines(). Submission
// returns the created run; AwaitCompletion polls it until the server reports
// it done:
//
//	run, err := cli.Pipelines().Submit(ctx, &commissions.StageJob{
//	  Stage:    commissions.StageClassify,
//	  Calendar: "2251799813685249",
//	  Period:   "2533274790395905",
//	})
//	run, err = cli.Pipelines().AwaitCompletion(ctx, run, 0)
//
// # Caching
//
// Set Config.Cache to a commissions.Cache, for example a memory cache in
// front of a shared NATS key-value bucket, to reuse resolved references
// across calls.
package sapclient
