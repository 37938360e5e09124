package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/fivetwenty-io/sapcommissions/internal/constants"
	"github.com/fivetwenty-io/sapcommissions/internal/http"
	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
)

// ResourcesClient implements commissions.ResourcesClient.
type ResourcesClient struct {
	httpClient *http.Client
	codec      *commissions.Codec
	logger     commissions.Logger
	settings   settings
}

// NewResourcesClient creates a new resources client.
func NewResourcesClient(httpClient *http.Client, codec *commissions.Codec, logger commissions.Logger, s settings) *ResourcesClient {
	return &ResourcesClient{
		httpClient: httpClient,
		codec:      codec,
		logger:     logger,
		settings:   s,
	}
}

// Create implements commissions.ResourcesClient.Create.
func (c *ResourcesClient) Create(ctx context.Context, resource *commissions.Resource) (*commissions.Resource, error) {
	schema := resource.Schema()
	op := "create " + schema.Name

	body := []any{c.codec.Encode(resource, true)}

	resp, err := c.httpClient.Post(ctx, schema.Endpoint, body)
	if err != nil {
		return nil, translateWriteError(op, err)
	}

	return c.decodeFirst(op, schema, resp)
}

// Update implements commissions.ResourcesClient.Update.
func (c *ResourcesClient) Update(ctx context.Context, resource *commissions.Resource) (*commissions.Resource, error) {
	schema := resource.Schema()
	op := "update " + schema.Name

	if resource.Seq() == "" {
		return nil, commissions.NewValidationError(op, schema.Seq, commissions.ErrIdentifierRequired)
	}

	body := []any{c.codec.Encode(resource, false)}

	resp, err := c.httpClient.Put(ctx, schema.Endpoint, body)
	if err != nil {
		if commissions.IsNotModified(err) {
			return resource, nil
		}

		return nil, translateWriteError(op, err)
	}

	return c.decodeFirst(op, schema, resp)
}

// Delete implements commissions.ResourcesClient.Delete.
func (c *ResourcesClient) Delete(ctx context.Context, resource *commissions.Resource) error {
	schema := resource.Schema()
	op := "delete " + schema.Name
	seq := resource.Seq()

	if seq == "" {
		return commissions.NewValidationError(op, schema.Seq, commissions.ErrIdentifierRequired)
	}

	resp, err := c.httpClient.Delete(ctx, schema.Endpoint+"/"+url.PathEscape(seq))
	if err != nil {
		var apiErr *commissions.Error
		if errors.As(err, &apiErr) && apiErr.Kind == commissions.KindBadRequest {
			if _, ok := collectionObject(apiErr.Payload, schema.Collection)[seq]; !ok {
				return retag(apiErr, commissions.KindResponse, op)
			}

			return retag(apiErr, commissions.KindBadRequest, op)
		}

		return err
	}

	if _, ok := collectionObject(resp.Object, schema.Collection)[seq]; !ok {
		return &commissions.Error{
			Kind:       commissions.KindResponse,
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
		}
	}

	return nil
}

// Get implements commissions.ResourcesClient.Get.
func (c *ResourcesClient) Get(ctx context.Context, schema *commissions.Schema, seq string) (*commissions.Resource, error) {
	op := "get " + schema.Name

	if seq == "" {
		return nil, commissions.NewValidationError(op, schema.Seq, commissions.ErrIdentifierRequired)
	}

	query := url.Values{}
	if expand := schema.Expand(); len(expand) > 0 {
		query.Set(constants.QueryExpand, strings.Join(expand, ","))
	}

	resp, err := c.httpClient.Get(ctx, schema.Endpoint+"/"+url.PathEscape(seq), query)
	if err != nil {
		return nil, translateReadError(op, err)
	}

	if resp.Object == nil {
		return nil, &commissions.Error{Kind: commissions.KindResponse, Op: op, StatusCode: resp.StatusCode}
	}

	resource, err := c.codec.Decode(schema, resp.Object)
	if err != nil {
		c.logDecodeFailure(schema, err)

		return nil, err
	}

	return resource, nil
}

// First implements commissions.ResourcesClient.First.
func (c *ResourcesClient) First(ctx context.Context, schema *commissions.Schema, opts *commissions.ListOptions) (*commissions.Resource, error) {
	firstOpts := commissions.ListOptions{PageSize: 1}
	if opts != nil {
		firstOpts.Filter = opts.Filter
		firstOpts.OrderBy = opts.OrderBy
	}

	it, err := c.List(ctx, schema, &firstOpts)
	if err != nil {
		return nil, err
	}

	resource, err := it.Next(ctx)
	if errors.Is(err, commissions.ErrNoMoreItems) {
		return nil, &commissions.Error{Kind: commissions.KindNotFound, Op: "first " + schema.Name, Body: filterText(opts)}
	}

	return resource, err
}

// List implements commissions.ResourcesClient.List. The request is deferred
// until the first call to Next.
func (c *ResourcesClient) List(ctx context.Context, schema *commissions.Schema, opts *commissions.ListOptions) (commissions.Iterator, error) {
	query, err := c.listQuery(schema, opts)
	if err != nil {
		return nil, err
	}

	return newListIterator(c, schema, query), nil
}

func (c *ResourcesClient) listQuery(schema *commissions.Schema, opts *commissions.ListOptions) (url.Values, error) {
	if opts == nil {
		opts = &commissions.ListOptions{}
	}

	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = c.settings.pageSize
	}

	if pageSize < constants.MinPageSize || pageSize > constants.MaxPageSize {
		return nil, commissions.NewValidationError("list "+schema.Name, "page_size",
			fmt.Errorf("%w: %d not in [%d, %d]", commissions.ErrInvalidPageSize,
				pageSize, constants.MinPageSize, constants.MaxPageSize))
	}

	query := url.Values{}
	query.Set(constants.QueryTop, strconv.Itoa(pageSize))

	if opts.Filter != nil {
		query.Set(constants.QueryFilter, opts.Filter.String())
	}

	if len(opts.OrderBy) > 0 {
		query.Set(constants.QueryOrderBy, strings.Join(opts.OrderBy, ","))
	}

	if expand := schema.Expand(); len(expand) > 0 {
		query.Set(constants.QueryExpand, strings.Join(expand, ","))
	}

	if opts.InlineCount {
		query.Set(constants.QueryInlineCount, "true")
	}

	return query, nil
}

func (c *ResourcesClient) decodeFirst(op string, schema *commissions.Schema, resp *http.Response) (*commissions.Resource, error) {
	items, ok := resp.Object[schema.Collection].([]any)
	if !ok || len(items) == 0 {
		return nil, &commissions.Error{Kind: commissions.KindResponse, Op: op, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	object, ok := items[0].(map[string]any)
	if !ok {
		return nil, &commissions.Error{Kind: commissions.KindResponse, Op: op, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	resource, err := c.codec.Decode(schema, object)
	if err != nil {
		c.logDecodeFailure(schema, err)

		return nil, err
	}

	return resource, nil
}

func (c *ResourcesClient) logDecodeFailure(schema *commissions.Schema, err error) {
	fields := map[string]interface{}{
		"resource": schema.Name,
		"error":    err.Error(),
	}

	var apiErr *commissions.Error
	if errors.As(err, &apiErr) {
		fields["field"] = apiErr.Field
		fields["value"] = apiErr.Value
	}

	c.logger.Error("Failed to decode resource", fields)
}

// translateWriteError maps vendor codes of a bad request onto the closed
// error kinds. Unrecognized bad requests surface as response errors.
func translateWriteError(op string, err error) error {
	var apiErr *commissions.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != commissions.KindBadRequest {
		return err
	}

	switch {
	case apiErr.HasCode(constants.VendorCodeAlreadyExists):
		return retag(apiErr, commissions.KindAlreadyExists, op)
	case apiErr.HasCode(constants.VendorCodeMissingField):
		return retag(apiErr, commissions.KindMissingField, op)
	default:
		return retag(apiErr, commissions.KindResponse, op)
	}
}

func translateReadError(op string, err error) error {
	var apiErr *commissions.Error
	if errors.As(err, &apiErr) && apiErr.Kind == commissions.KindBadRequest && apiErr.StatusCode == 404 {
		return retag(apiErr, commissions.KindNotFound, op)
	}

	return err
}

// retag copies a transport error under a new kind and operation name.
func retag(apiErr *commissions.Error, kind commissions.ErrorKind, op string) *commissions.Error {
	out := *apiErr
	out.Kind = kind
	out.Op = op

	return &out
}

// collectionObject returns payload[collection] when it is an object.
func collectionObject(payload map[string]any, collection string) map[string]any {
	object, _ := payload[collection].(map[string]any)

	return object
}

func filterText(opts *commissions.ListOptions) string {
	if opts == nil || opts.Filter == nil {
		return ""
	}

	return opts.Filter.String()
}

// decodeCacheEntry restores a resource from a cached snapshot.
func (c *ResourcesClient) decodeCacheEntry(schema *commissions.Schema, entry *commissions.CacheEntry) (*commissions.Resource, error) {
	object, err := commissions.DecodeJSONObject(entry.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", commissions.ErrInvalidEntry, err)
	}

	return c.codec.Decode(schema, object)
}

func (c *ResourcesClient) encodeCacheEntry(resource *commissions.Resource) (*commissions.CacheEntry, error) {
	data, err := json.Marshal(c.codec.Snapshot(resource))
	if err != nil {
		return nil, fmt.Errorf("encoding cache entry: %w", err)
	}

	return commissions.NewEntry(data, c.settings.cacheTTL), nil
}
