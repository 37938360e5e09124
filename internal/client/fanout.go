package client

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
)

// Resolve implements commissions.ResourcesClient.Resolve.
func (c *ResourcesClient) Resolve(ctx context.Context, ref commissions.Reference) (*commissions.Resource, error) {
	schema, err := c.codec.Registry().Lookup(ref.Target)
	if err != nil {
		return nil, commissions.NewValidationError("resolve reference", "target", err)
	}

	return c.getCached(ctx, schema, ref.Seq)
}

// ResolveAll implements commissions.ResourcesClient.ResolveAll. At most
// the configured number of requests are in flight, each in its own
// goroutine; the first failure cancels the rest and stops new requests.
func (c *ResourcesClient) ResolveAll(ctx context.Context, schema *commissions.Schema, seqs []string) ([]*commissions.Resource, error) {
	unique := make(map[string]*commissions.Resource, len(seqs))
	order := make([]string, 0, len(seqs))

	for _, seq := range seqs {
		if _, seen := unique[seq]; !seen {
			unique[seq] = nil
			order = append(order, seq)
		}
	}

	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.settings.concurrency)

	for _, seq := range order {
		if groupCtx.Err() != nil {
			break
		}

		group.Go(func() error {
			err := groupCtx.Err()
			if err != nil {
				return err
			}

			resource, err := c.getCached(groupCtx, schema, seq)
			if err != nil {
				return err
			}

			mu.Lock()
			unique[seq] = resource
			mu.Unlock()

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	out := make([]*commissions.Resource, len(seqs))
	for i, seq := range seqs {
		out[i] = unique[seq]
	}

	return out, nil
}

func (c *ResourcesClient) getCached(ctx context.Context, schema *commissions.Schema, seq string) (*commissions.Resource, error) {
	cache := c.settings.cache
	if cache == nil {
		return c.Get(ctx, schema, seq)
	}

	key := commissions.CacheKey(schema.Name, seq)

	entry, err := cache.Get(ctx, key)
	if err == nil {
		resource, decodeErr := c.decodeCacheEntry(schema, entry)
		if decodeErr == nil {
			return resource, nil
		}

		c.logger.Warn("Discarding unreadable cache entry", map[string]interface{}{
			"key":   key,
			"error": decodeErr.Error(),
		})
	}

	resource, err := c.Get(ctx, schema, seq)
	if err != nil {
		return nil, err
	}

	entry, err = c.encodeCacheEntry(resource)
	if err == nil {
		err = cache.Set(ctx, key, entry)
	}

	if err != nil {
		c.logger.Warn("Failed to cache resource", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}

	return resource, nil
}

// CreateOrUpdate implements commissions.ResourcesClient.CreateOrUpdate. When
// the resource already exists, the stored instance is found by the logical
// keys of its type and the writable values are copied onto it.
func (c *ResourcesClient) CreateOrUpdate(ctx context.Context, resource *commissions.Resource) (*commissions.Resource, error) {
	created, err := c.Create(ctx, resource)
	if err == nil || !commissions.IsAlreadyExists(err) {
		return created, err
	}

	schema := resource.Schema()
	op := "update existing " + schema.Name

	filter, err := logicalKeyFilter(op, resource)
	if err != nil {
		return nil, err
	}

	existing, err := c.First(ctx, schema, &commissions.ListOptions{Filter: filter})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	merged := existing.Clone()

	for name, value := range resource.Fields() {
		field, _ := schema.Field(name)
		if name == schema.Seq || field.ReadOnly {
			continue
		}

		err = merged.Set(name, value)
		if err != nil {
			return nil, err
		}
	}

	return c.Update(ctx, merged)
}

func logicalKeyFilter(op string, resource *commissions.Resource) (commissions.Expression, error) {
	schema := resource.Schema()
	if len(schema.Keys) == 0 {
		return nil, commissions.NewValidationError(op, "", commissions.ErrNoLogicalKeys)
	}

	comparisons := make([]commissions.Expression, 0, len(schema.Keys))

	for _, key := range schema.Keys {
		value, ok := resource.Get(key)
		if !ok {
			return nil, commissions.NewValidationError(op, key, commissions.ErrMissingLogicalKey)
		}

		field, _ := schema.Field(key)
		comparisons = append(comparisons, commissions.Equals(field.Wire, value))
	}

	return commissions.And(comparisons[0], comparisons[1:]...), nil
}

// Apply implements commissions.ResourcesClient.Apply. Every resource is
// attempted; failures are reported per item.
func (c *ResourcesClient) Apply(ctx context.Context, resources []*commissions.Resource) []commissions.ApplyResult {
	results := make([]commissions.ApplyResult, len(resources))
	sem := semaphore.NewWeighted(int64(c.settings.concurrency))

	var waitGroup sync.WaitGroup

	for index, resource := range resources {
		results[index].Index = index

		err := sem.Acquire(ctx, 1)
		if err != nil {
			results[index].Err = fmt.Errorf("waiting for request slot: %w", err)

			continue
		}

		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()
			defer sem.Release(1)

			applied, err := c.CreateOrUpdate(ctx, resource)
			results[index].Resource = applied
			results[index].Err = err

			if err != nil {
				c.logger.Error("Failed to apply resource", map[string]interface{}{
					"resource": resource.Type(),
					"index":    index,
					"error":    err.Error(),
				})
			}
		}()
	}

	waitGroup.Wait()

	return results
}
