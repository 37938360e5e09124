package client

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
)

// concurrencyTracker records the peak number of requests served at once.
type concurrencyTracker struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	requests map[string]int
}

func (p *concurrencyTracker) enter(seq string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inFlight++
	p.peak = max(p.peak, p.inFlight)

	if p.requests == nil {
		p.requests = map[string]int{}
	}

	p.requests[seq]++
}

func (p *concurrencyTracker) leave() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inFlight--
}

func (p *concurrencyTracker) snapshot() (int, map[string]int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	requests := make(map[string]int, len(p.requests))
	for seq, count := range p.requests {
		requests[seq] = count
	}

	return p.peak, requests
}

func trackingHandler(t *testing.T, tracker *concurrencyTracker) http.HandlerFunc {
	t.Helper()

	return func(writer http.ResponseWriter, request *http.Request) {
		seq := strings.TrimPrefix(request.URL.Path, "/api/v2/unitTypes/")

		tracker.enter(seq)
		defer tracker.leave()

		if seq == "missing" {
			writeJSON(t, writer, http.StatusNotFound, map[string]any{"_ERROR_": "TCMP_1000:E: not found"})

			return
		}

		time.Sleep(20 * time.Millisecond)
		writeJSON(t, writer, http.StatusOK, map[string]any{"unitTypeSeq": seq, "name": "UT" + seq})
	}
}

func TestResolveAll_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	tracker := &concurrencyTracker{}
	server := newServer(t, trackingHandler(t, tracker))

	client, _ := NewTestClient(t, server.URL, func(config *commissions.Config) {
		config.Concurrency = 2
	})

	seqs := []string{"1", "2", "3", "2", "4", "5", "1"}

	resources, err := client.Resources().ResolveAll(context.Background(), unitTypeSchema(), seqs)
	require.NoError(t, err)
	require.Len(t, resources, len(seqs))

	for i, seq := range seqs {
		assert.Equal(t, seq, resources[i].Seq())
	}

	peak, requests := tracker.snapshot()
	assert.LessOrEqual(t, peak, 2)
	assert.Len(t, requests, 5)

	for seq, count := range requests {
		assert.Equal(t, 1, count, "identifier %s fetched more than once", seq)
	}
}

func TestResolveAll_FailsOnFirstError(t *testing.T) {
	t.Parallel()

	tracker := &concurrencyTracker{}
	server := newServer(t, trackingHandler(t, tracker))

	client, _ := NewTestClient(t, server.URL)

	resources, err := client.Resources().ResolveAll(context.Background(), unitTypeSchema(), []string{"1", "missing", "2"})
	require.Error(t, err)
	assert.Nil(t, resources)
	assert.True(t, commissions.IsNotFound(err))
}

func TestResolveAll_StopsStartingRequestsAfterFailure(t *testing.T) {
	t.Parallel()

	tracker := &concurrencyTracker{}
	server := newServer(t, trackingHandler(t, tracker))

	client, _ := NewTestClient(t, server.URL, func(config *commissions.Config) {
		config.Concurrency = 1
	})

	_, err := client.Resources().ResolveAll(context.Background(), unitTypeSchema(), []string{"missing", "1", "2", "3"})
	require.Error(t, err)

	peak, requests := tracker.snapshot()
	assert.Equal(t, 1, peak)
	assert.Equal(t, map[string]int{"missing": 1}, requests)
}

func TestResolve_UsesCache(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		hits.Add(1)
		writeJSON(t, writer, http.StatusOK, map[string]any{
			"unitTypeSeq": "1001",
			"name":        "USD",
			"symbol":      "$",
		})
	})

	cache := commissions.NewMemoryCache(10)

	client, _ := NewTestClient(t, server.URL, func(config *commissions.Config) {
		config.Cache = cache
		config.CacheTTL = time.Minute
	})

	ref := commissions.Reference{Seq: "1001", Target: commissions.TypeUnitType}

	first, err := client.Resources().Resolve(context.Background(), ref)
	require.NoError(t, err)

	second, err := client.Resources().Resolve(context.Background(), ref)
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, first.Fields(), second.Fields())
	assert.NotSame(t, first, second)

	assert.True(t, cache.Has(context.Background(), commissions.CacheKey(commissions.TypeUnitType, "1001")))
}

func TestResolve_UnreadableCacheEntryFallsBack(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		hits.Add(1)
		writeJSON(t, writer, http.StatusOK, map[string]any{"unitTypeSeq": "1001", "name": "USD"})
	})

	cache := commissions.NewMemoryCache(10)
	key := commissions.CacheKey(commissions.TypeUnitType, "1001")
	require.NoError(t, cache.Set(context.Background(), key, commissions.NewEntry([]byte("{broken"), time.Minute)))

	client, logger := NewTestClient(t, server.URL, func(config *commissions.Config) {
		config.Cache = cache
	})

	resource, err := client.Resources().Resolve(context.Background(), commissions.Reference{Seq: "1001", Target: commissions.TypeUnitType})
	require.NoError(t, err)
	assert.Equal(t, "USD", resource.String("name"))
	assert.Equal(t, int32(1), hits.Load())
	assert.Contains(t, logger.Messages("warn"), "Discarding unreadable cache entry")
}

func TestResolve_UnknownTarget(t *testing.T) {
	t.Parallel()

	client, _ := NewTestClient(t, "http://127.0.0.1:1")

	_, err := client.Resources().Resolve(context.Background(), commissions.Reference{Seq: "1", Target: "nope"})
	require.ErrorIs(t, err, commissions.ErrUnknownResourceType)
	assert.Equal(t, commissions.KindValidation, commissions.KindOf(err))
}

func TestApply_ReportsPerItem(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		body, ok := decodeBody(t, request).([]any)
		require.True(t, ok)

		object, ok := body[0].(map[string]any)
		require.True(t, ok)

		if object["name"] == "BAD" {
			writeJSON(t, writer, http.StatusBadRequest, map[string]any{"unitTypes": []any{
				map[string]any{"_ERROR_": "TCMP_09999:E: rejected"},
			}})

			return
		}

		object["unitTypeSeq"] = "seq-" + object["name"].(string)
		writeJSON(t, writer, http.StatusCreated, map[string]any{"unitTypes": []any{object}})
	})

	client, logger := NewTestClient(t, server.URL, func(config *commissions.Config) {
		config.Concurrency = 2
	})

	resources := []*commissions.Resource{
		newUnitType(t, "USD"),
		newUnitType(t, "BAD"),
		newUnitType(t, "EUR"),
	}

	results := client.Resources().Apply(context.Background(), resources)
	require.Len(t, results, 3)

	for i, result := range results {
		assert.Equal(t, i, result.Index)
	}

	require.NoError(t, results[0].Err)
	assert.Equal(t, "seq-USD", results[0].Resource.Seq())

	require.Error(t, results[1].Err)
	assert.Nil(t, results[1].Resource)
	assert.Equal(t, commissions.KindResponse, commissions.KindOf(results[1].Err))

	require.NoError(t, results[2].Err)
	assert.Equal(t, "seq-EUR", results[2].Resource.Seq())

	assert.Equal(t, []string{"Failed to apply resource"}, logger.Messages("error"))
}

func TestCreateOrUpdate_RequiresLogicalKeys(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(t, writer, http.StatusBadRequest, map[string]any{"unitTypes": []any{
			map[string]any{"_ERROR_": "TCMP_35004:E: already exists"},
		}})
	})

	client, _ := NewTestClient(t, server.URL)

	resource := unitTypeSchema().New()
	require.NoError(t, resource.Set("symbol", "$"))

	_, err := client.Resources().CreateOrUpdate(context.Background(), resource)
	require.ErrorIs(t, err, commissions.ErrMissingLogicalKey)
	assert.Equal(t, commissions.KindValidation, commissions.KindOf(err))
}
