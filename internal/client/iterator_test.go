package client

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
)

// pagedHandler serves five unit types two per page. The next links are
// absolute and carry an opaque token that only the server understands.
func pagedHandler(t *testing.T, fetches *atomic.Int32, drop func(page string) bool) http.HandlerFunc {
	t.Helper()

	pages := map[string][]any{
		"":   {unitTypeObject(1), unitTypeObject(2)},
		"p2": {unitTypeObject(3), unitTypeObject(4)},
		"p3": {unitTypeObject(5)},
	}
	next := map[string]string{"": "p2", "p2": "p3"}

	return func(writer http.ResponseWriter, request *http.Request) {
		fetches.Add(1)

		page := request.URL.Query().Get("cursor")
		if page == "" {
			assert.Equal(t, "2", request.URL.Query().Get("top"))
			assert.Equal(t, "name asc", request.URL.Query().Get("orderBy"))
		} else {
			assert.Empty(t, request.URL.Query().Get("top"))
		}

		if drop != nil && drop(page) {
			dropConnection(t, writer)

			return
		}

		body := map[string]any{"unitTypes": pages[page], "total": 5}
		if token, ok := next[page]; ok {
			body["next"] = "http://" + request.Host + "/api/v2/unitTypes?cursor=" + token
		}

		writeJSON(t, writer, http.StatusOK, body)
	}
}

func unitTypeObject(n int) map[string]any {
	return map[string]any{
		"unitTypeSeq": fmt.Sprintf("100%d", n),
		"name":        fmt.Sprintf("UT%d", n),
	}
}

func TestList_FollowsCursor(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32

	server := newServer(t, pagedHandler(t, &fetches, nil))
	client, _ := NewTestClient(t, server.URL)

	it, err := client.Resources().List(context.Background(), unitTypeSchema(), &commissions.ListOptions{
		PageSize:    2,
		OrderBy:     []string{"name asc"},
		InlineCount: true,
	})
	require.NoError(t, err)
	assert.Zero(t, fetches.Load(), "listing is lazy")

	var names []string

	for resource, err := range it.All(context.Background()) {
		require.NoError(t, err)

		names = append(names, resource.String("name"))
	}

	assert.Equal(t, []string{"UT1", "UT2", "UT3", "UT4", "UT5"}, names)
	assert.Equal(t, int32(3), fetches.Load())

	total, ok := it.Total()
	assert.True(t, ok)
	assert.Equal(t, 5, total)

	_, err = it.Next(context.Background())
	require.ErrorIs(t, err, commissions.ErrNoMoreItems)
	assert.Equal(t, int32(3), fetches.Load())
}

func TestList_RetriesDroppedConnection(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32

	server := newServer(t, pagedHandler(t, &fetches, func(page string) bool { return page == "p2" }))
	client, logger := NewTestClient(t, server.URL)

	it, err := client.Resources().List(context.Background(), unitTypeSchema(), &commissions.ListOptions{
		PageSize: 2,
		OrderBy:  []string{"name asc"},
	})
	require.NoError(t, err)

	for range 2 {
		_, err = it.Next(context.Background())
		require.NoError(t, err)
	}

	start := time.Now()

	_, err = it.Next(context.Background())
	require.Error(t, err)
	assert.True(t, commissions.IsConnection(err))
	assert.GreaterOrEqual(t, time.Since(start), 3*testRetryWait)

	// One request for the first page, then four attempts at the second.
	assert.Equal(t, int32(5), fetches.Load())
	assert.Equal(t, 3, countMessages(logger.Messages("warn"), "Retrying after connection error"))

	_, again := it.Next(context.Background())
	assert.Equal(t, err, again)
	assert.Equal(t, int32(5), fetches.Load())
}

func TestList_RetryDisabled(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		fetches.Add(1)
		dropConnection(t, writer)
	})
	client, _ := NewTestClient(t, server.URL, func(config *commissions.Config) {
		config.RetryMax = -1
	})

	_, err := client.Resources().First(context.Background(), unitTypeSchema(), nil)
	require.Error(t, err)
	assert.True(t, commissions.IsConnection(err))
	assert.Equal(t, int32(1), fetches.Load())
}

func TestList_InvalidPageSize(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32

	server := newServer(t, pagedHandler(t, &fetches, nil))
	client, _ := NewTestClient(t, server.URL)

	for _, size := range []int{-1, 101} {
		_, err := client.Resources().List(context.Background(), unitTypeSchema(), &commissions.ListOptions{PageSize: size})
		require.ErrorIs(t, err, commissions.ErrInvalidPageSize)
		assert.Equal(t, commissions.KindValidation, commissions.KindOf(err))
	}

	assert.Zero(t, fetches.Load())
}

func TestList_DecodeFailureIsLogged(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(t, writer, http.StatusOK, map[string]any{"participants": []any{
			map[string]any{"payeeSeq": "4001", "salary": map[string]any{"value": true}},
		}})
	})

	client, logger := NewTestClient(t, server.URL)

	it, err := client.Resources().List(context.Background(), commissions.MustSchema(commissions.TypeParticipant), nil)
	require.NoError(t, err)

	_, err = it.Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, commissions.KindDecode, commissions.KindOf(err))
	assert.Contains(t, logger.Messages("error"), "Failed to decode resource")
}

func TestList_EmptyCollection(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(t, writer, http.StatusOK, map[string]any{})
	})

	client, _ := NewTestClient(t, server.URL)

	it, err := client.Resources().List(context.Background(), unitTypeSchema(), nil)
	require.NoError(t, err)

	_, err = it.Next(context.Background())
	require.ErrorIs(t, err, commissions.ErrNoMoreItems)

	_, ok := it.Total()
	assert.False(t, ok)
}

func TestList_UnexpectedCollectionShape(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(t, writer, http.StatusOK, map[string]any{"unitTypes": "not a list"})
	})

	client, _ := NewTestClient(t, server.URL)

	it, err := client.Resources().List(context.Background(), unitTypeSchema(), nil)
	require.NoError(t, err)

	_, err = it.Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, commissions.KindResponse, commissions.KindOf(err))
}

func countMessages(messages []string, msg string) int {
	count := 0

	for _, message := range messages {
		if message == msg {
			count++
		}
	}

	return count
}
