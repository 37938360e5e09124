package client

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/url"

	"github.com/fivetwenty-io/sapcommissions/internal/constants"
	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
)

// listIterator walks a cursor-paginated list. It has two states: a cursor
// remains, or the list is exhausted. The first request uses the endpoint
// with the list query; later requests follow "next" verbatim.
type listIterator struct {
	client *ResourcesClient
	schema *commissions.Schema

	cursor string
	query  url.Values
	page   []*commissions.Resource
	pos    int

	total    int
	hasTotal bool
	err      error
}

func newListIterator(client *ResourcesClient, schema *commissions.Schema, query url.Values) *listIterator {
	return &listIterator{
		client: client,
		schema: schema,
		cursor: schema.Endpoint,
		query:  query,
	}
}

// Next implements commissions.Iterator.Next. After the first error every
// call returns that error again.
func (it *listIterator) Next(ctx context.Context) (*commissions.Resource, error) {
	for {
		if it.err != nil {
			return nil, it.err
		}

		if it.pos < len(it.page) {
			resource := it.page[it.pos]
			it.page[it.pos] = nil
			it.pos++

			return resource, nil
		}

		if it.cursor == "" {
			return nil, commissions.ErrNoMoreItems
		}

		it.err = it.fetch(ctx)
	}
}

func (it *listIterator) fetch(ctx context.Context) error {
	op := "list " + it.schema.Name

	resp, err := it.client.httpClient.Get(ctx, it.cursor, it.query)
	if err != nil {
		return translateReadError(op, err)
	}

	it.query = nil
	it.cursor, _ = resp.Object[constants.NextKey].(string)

	if total, ok := resp.Object[constants.TotalKey].(json.Number); ok {
		if n, convErr := total.Int64(); convErr == nil {
			it.total = int(n)
			it.hasTotal = true
		}
	}

	raw, present := resp.Object[it.schema.Collection]
	if !present || raw == nil {
		it.page, it.pos = nil, 0

		return nil
	}

	items, ok := raw.([]any)
	if !ok {
		return &commissions.Error{Kind: commissions.KindResponse, Op: op, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	page := make([]*commissions.Resource, 0, len(items))

	for _, item := range items {
		object, ok := item.(map[string]any)
		if !ok {
			return &commissions.Error{Kind: commissions.KindResponse, Op: op, StatusCode: resp.StatusCode, Body: string(resp.Body)}
		}

		resource, err := it.client.codec.Decode(it.schema, object)
		if err != nil {
			it.client.logDecodeFailure(it.schema, err)

			return err
		}

		page = append(page, resource)
	}

	it.page, it.pos = page, 0

	return nil
}

// Total implements commissions.Iterator.Total.
func (it *listIterator) Total() (int, bool) {
	return it.total, it.hasTotal
}

// All implements commissions.Iterator.All.
func (it *listIterator) All(ctx context.Context) iter.Seq2[*commissions.Resource, error] {
	return func(yield func(*commissions.Resource, error) bool) {
		for {
			resource, err := it.Next(ctx)
			if errors.Is(err, commissions.ErrNoMoreItems) {
				return
			}

			if !yield(resource, err) || err != nil {
				return
			}
		}
	}
}
