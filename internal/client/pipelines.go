package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/fivetwenty-io/sapcommissions/internal/constants"
	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
)

// PipelinesClient implements commissions.PipelinesClient.
type PipelinesClient struct {
	resources    *ResourcesClient
	pollInterval time.Duration
}

// NewPipelinesClient creates a new pipelines client.
func NewPipelinesClient(resources *ResourcesClient, pollInterval time.Duration) *PipelinesClient {
	if pollInterval <= 0 {
		pollInterval = constants.DefaultPollInterval
	}

	return &PipelinesClient{
		resources:    resources,
		pollInterval: pollInterval,
	}
}

func (c *PipelinesClient) schema() (*commissions.Schema, error) {
	schema, err := c.resources.codec.Registry().Lookup(commissions.TypePipeline)
	if err != nil {
		return nil, fmt.Errorf("pipeline resource type: %w", err)
	}

	return schema, nil
}

// Submit implements commissions.PipelinesClient.Submit.
func (c *PipelinesClient) Submit(ctx context.Context, job commissions.Job) (*commissions.Run, error) {
	err := job.Validate()
	if err != nil {
		return nil, err
	}

	if cancel, ok := job.(*commissions.CancelJob); ok {
		return nil, c.cancel(ctx, cancel)
	}

	op := "submit " + job.Command()

	resp, err := c.resources.httpClient.Post(ctx, constants.PipelinesEndpoint, job.Payload())
	if err != nil {
		return nil, translateSubmitError(op, err)
	}

	seq, ok := submittedSeq(resp.Object)
	if !ok {
		return nil, &commissions.Error{
			Kind:       commissions.KindResponse,
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
		}
	}

	c.resources.logger.Info("Pipeline job submitted", map[string]interface{}{
		"command":          job.Command(),
		"pipeline_run_seq": seq,
	})

	return c.Get(ctx, seq)
}

// cancel deletes a run. A run the server already removed counts as
// canceled.
func (c *PipelinesClient) cancel(ctx context.Context, job *commissions.CancelJob) error {
	op := "cancel pipeline " + job.Run

	_, err := c.resources.httpClient.Delete(ctx, constants.PipelinesEndpoint+"/"+url.PathEscape(job.Run))
	if err == nil {
		return nil
	}

	var apiErr *commissions.Error
	if errors.As(err, &apiErr) && apiErr.Kind == commissions.KindBadRequest {
		if apiErr.HasCode(constants.VendorCodeRunRemoved) {
			c.resources.logger.Debug("Pipeline run already removed", map[string]interface{}{
				"pipeline_run_seq": job.Run,
			})

			return nil
		}

		return retag(apiErr, commissions.KindResponse, op)
	}

	return err
}

// translateSubmitError surfaces vendor submission errors, keyed by the
// ordinal "0", as response errors.
func translateSubmitError(op string, err error) error {
	var apiErr *commissions.Error
	if errors.As(err, &apiErr) && apiErr.Kind == commissions.KindBadRequest {
		return retag(apiErr, commissions.KindResponse, op)
	}

	return err
}

// submittedSeq extracts the created run identifier from a submission
// response. The ordinal entry is either the identifier, a list holding it,
// or a run object.
func submittedSeq(object map[string]any) (string, bool) {
	results, ok := object[constants.PipelinesCollection].(map[string]any)
	if !ok {
		return "", false
	}

	return seqOf(results[constants.PipelineOrdinalKey])
}

func seqOf(v any) (string, bool) {
	switch typed := v.(type) {
	case string:
		return typed, typed != ""
	case json.Number:
		return typed.String(), true
	case []any:
		if len(typed) == 0 {
			return "", false
		}

		return seqOf(typed[0])
	case map[string]any:
		return seqOf(typed["pipelineRunSeq"])
	default:
		return "", false
	}
}

// Get implements commissions.PipelinesClient.Get.
func (c *PipelinesClient) Get(ctx context.Context, seq string) (*commissions.Run, error) {
	schema, err := c.schema()
	if err != nil {
		return nil, err
	}

	resource, err := c.resources.Get(ctx, schema, seq)
	if err != nil {
		return nil, err
	}

	return commissions.NewRun(resource), nil
}

// AwaitCompletion implements commissions.PipelinesClient.AwaitCompletion.
// It imposes no timeout of its own; cancelling ctx stops the wait and
// returns the last observed run without touching the server-side job.
func (c *PipelinesClient) AwaitCompletion(ctx context.Context, run *commissions.Run, interval time.Duration) (*commissions.Run, error) {
	if interval <= 0 {
		interval = c.pollInterval
	}

	seq := run.Seq()
	if seq == "" {
		return run, commissions.NewValidationError("await pipeline", "pipeline_run_seq", commissions.ErrIdentifierRequired)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !run.Done() {
		select {
		case <-ctx.Done():
			return run, fmt.Errorf("waiting for pipeline %s: %w", seq, ctx.Err())
		case <-ticker.C:
			next, err := c.Get(ctx, seq)
			if err != nil {
				return run, fmt.Errorf("polling pipeline %s: %w", seq, err)
			}

			run = next

			c.resources.logger.Debug("Pipeline run polled", map[string]interface{}{
				"pipeline_run_seq": seq,
				"state":            run.State(),
				"status":           run.Status(),
			})
		}
	}

	return run, nil
}

// Cancel implements commissions.PipelinesClient.Cancel.
func (c *PipelinesClient) Cancel(ctx context.Context, run *commissions.Run) error {
	_, err := c.Submit(ctx, &commissions.CancelJob{Run: run.Seq()})

	return err
}
