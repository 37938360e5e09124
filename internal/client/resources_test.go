package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
)

func newUnitType(t *testing.T, name string) *commissions.Resource {
	t.Helper()

	resource := unitTypeSchema().New()
	require.NoError(t, resource.Set("name", name))
	require.NoError(t, resource.Set("symbol", "$"))

	return resource
}

func TestResourcesClient_Create(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "/api/v2/unitTypes", request.URL.Path)
		assert.Equal(t, http.MethodPost, request.Method)

		user, pass, ok := request.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user", user)
		assert.Equal(t, "secret", pass)

		body, ok := decodeBody(t, request).([]any)
		require.True(t, ok)
		require.Len(t, body, 1)
		assert.Equal(t, map[string]any{"name": "USD", "symbol": "$"}, body[0])

		writeJSON(t, writer, http.StatusCreated, map[string]any{
			"unitTypes": []any{map[string]any{"unitTypeSeq": "1001", "name": "USD", "symbol": "$"}},
		})
	})

	client, _ := NewTestClient(t, server.URL)

	created, err := client.Resources().Create(context.Background(), newUnitType(t, "USD"))
	require.NoError(t, err)
	assert.Equal(t, "1001", created.Seq())
	assert.Equal(t, "USD", created.String("name"))
}

func TestResourcesClient_CreateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload map[string]any
		kind    commissions.ErrorKind
	}{
		{
			name: "already exists",
			payload: map[string]any{"unitTypes": []any{map[string]any{
				"_ERROR_": "TCMP_35004:E: An object with this key already exists",
			}}},
			kind: commissions.KindAlreadyExists,
		},
		{
			name: "missing field",
			payload: map[string]any{"unitTypes": []any{map[string]any{
				"_ERROR_": []any{"TCMP_1002:E: A value is required for field name"},
			}}},
			kind: commissions.KindMissingField,
		},
		{
			name: "other vendor error",
			payload: map[string]any{"unitTypes": []any{map[string]any{
				"_ERROR_": "TCMP_09999:E: Something else",
			}}},
			kind: commissions.KindResponse,
		},
		{
			name: "code sharing a prefix",
			payload: map[string]any{"unitTypes": []any{map[string]any{
				"_ERROR_": "TCMP_10021:E: Some unrelated error",
			}}},
			kind: commissions.KindResponse,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
				writeJSON(t, writer, http.StatusBadRequest, testCase.payload)
			})

			client, _ := NewTestClient(t, server.URL)

			created, err := client.Resources().Create(context.Background(), newUnitType(t, "USD"))
			require.Error(t, err)
			assert.Nil(t, created)
			assert.Equal(t, testCase.kind, commissions.KindOf(err))

			var apiErr *commissions.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
			assert.NotEmpty(t, apiErr.Messages)
		})
	}
}

func TestResourcesClient_CreateUnexpectedContent(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/html")
		writer.WriteHeader(http.StatusBadGateway)
		_, _ = writer.Write([]byte("<html>bad gateway</html>"))
	})

	client, _ := NewTestClient(t, server.URL)

	_, err := client.Resources().Create(context.Background(), newUnitType(t, "USD"))
	require.Error(t, err)
	assert.Equal(t, commissions.KindResponse, commissions.KindOf(err))
	assert.Contains(t, err.Error(), "bad gateway")
}

func TestResourcesClient_UpdateNotModified(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodPut, request.Method)

		body, ok := decodeBody(t, request).([]any)
		require.True(t, ok)
		assert.Equal(t, "1001", body[0].(map[string]any)["unitTypeSeq"])

		writer.WriteHeader(http.StatusNotModified)
	})

	client, _ := NewTestClient(t, server.URL)

	existing, err := client.Codec().Decode(unitTypeSchema(), map[string]any{"unitTypeSeq": "1001", "name": "USD"})
	require.NoError(t, err)

	updated, err := client.Resources().Update(context.Background(), existing)
	require.NoError(t, err)
	assert.Same(t, existing, updated)
}

func TestResourcesClient_UpdateRequiresSeq(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		hits.Add(1)
	})

	client, _ := NewTestClient(t, server.URL)

	_, err := client.Resources().Update(context.Background(), newUnitType(t, "USD"))
	require.ErrorIs(t, err, commissions.ErrIdentifierRequired)
	assert.Equal(t, commissions.KindValidation, commissions.KindOf(err))
	assert.Zero(t, hits.Load())
}

func TestResourcesClient_Delete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   map[string]any
		kind   commissions.ErrorKind
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   map[string]any{"unitTypes": map[string]any{"1001": "Deleted"}},
			kind:   commissions.KindUnknown,
		},
		{
			name:   "success without identifier",
			status: http.StatusOK,
			body:   map[string]any{"unitTypes": map[string]any{"9999": "Deleted"}},
			kind:   commissions.KindResponse,
		},
		{
			name:   "failure keyed by identifier",
			status: http.StatusBadRequest,
			body:   map[string]any{"unitTypes": map[string]any{"1001": map[string]any{"_ERROR_": "TCMP_09007:E: in use"}}},
			kind:   commissions.KindBadRequest,
		},
		{
			name:   "failure without identifier",
			status: http.StatusBadRequest,
			body:   map[string]any{"message": "unexpected"},
			kind:   commissions.KindResponse,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
				assert.Equal(t, http.MethodDelete, request.Method)
				assert.Equal(t, "/api/v2/unitTypes/1001", request.URL.Path)
				writeJSON(t, writer, testCase.status, testCase.body)
			})

			client, _ := NewTestClient(t, server.URL)

			existing, err := client.Codec().Decode(unitTypeSchema(), map[string]any{"unitTypeSeq": "1001"})
			require.NoError(t, err)

			err = client.Resources().Delete(context.Background(), existing)
			if testCase.kind == commissions.KindUnknown {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Equal(t, testCase.kind, commissions.KindOf(err))
		})
	}
}

func TestResourcesClient_Get(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "/api/v2/participants/4001", request.URL.Path)
		assert.Equal(t, "eventCalendar", request.URL.Query().Get("expand"))

		writeJSON(t, writer, http.StatusOK, map[string]any{
			"payeeSeq": "4001",
			"payeeId":  "P-1",
			"salary":   map[string]any{"value": 1000.5, "unitType": map[string]any{"name": "USD", "unitTypeSeq": "1001"}},
			"eventCalendar": map[string]any{
				"key":         "2001",
				"displayName": "Main Monthly Calendar",
				"objectType":  "Calendar",
				"logicalKeys": map[string]any{"name": "Main Monthly Calendar"},
			},
			"newServerField": "ignored",
		})
	})

	client, logger := NewTestClient(t, server.URL)

	participant, err := client.Resources().Get(context.Background(), commissions.MustSchema(commissions.TypeParticipant), "4001")
	require.NoError(t, err)
	assert.Equal(t, "4001", participant.Seq())
	assert.Equal(t, "P-1", participant.String("payee_id"))

	salary, ok := participant.Value("salary")
	require.True(t, ok)
	assert.Equal(t, "1000.5", salary.Amount.String())
	assert.Equal(t, "USD", salary.UnitType.Name)

	calendar, ok := participant.Reference("event_calendar")
	require.True(t, ok)
	assert.Equal(t, "2001", calendar.Seq)
	assert.Equal(t, "Main Monthly Calendar", calendar.DisplayName)
	assert.Equal(t, commissions.TypeCalendar, calendar.Target)

	assert.Contains(t, logger.Messages("warn"), "Dropping unknown field")
}

func TestResourcesClient_GetNotFound(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(t, writer, http.StatusNotFound, map[string]any{"_ERROR_": "TCMP_1000:E: not found"})
	})

	client, _ := NewTestClient(t, server.URL)

	_, err := client.Resources().Get(context.Background(), unitTypeSchema(), "404")
	require.Error(t, err)
	assert.True(t, commissions.IsNotFound(err))
	assert.ErrorIs(t, err, commissions.ErrNotFound)
}

func TestResourcesClient_First(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		query := request.URL.Query()
		assert.Equal(t, "1", query.Get("top"))
		assert.Equal(t, "name eq 'US*'", query.Get("$filter"))
		assert.Equal(t, "name desc", query.Get("orderBy"))
		assert.Contains(t, request.URL.RawQuery, "name%20eq")

		writeJSON(t, writer, http.StatusOK, map[string]any{
			"unitTypes": []any{map[string]any{"unitTypeSeq": "1001", "name": "USD"}},
			"next":      "/api/v2/unitTypes?skip=1&top=1",
		})
	})

	client, _ := NewTestClient(t, server.URL)

	first, err := client.Resources().First(context.Background(), unitTypeSchema(), &commissions.ListOptions{
		Filter:  commissions.Equals("name", "US*"),
		OrderBy: []string{"name desc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1001", first.Seq())
}

func TestResourcesClient_FirstNotFound(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(t, writer, http.StatusOK, map[string]any{"unitTypes": []any{}})
	})

	client, _ := NewTestClient(t, server.URL)

	_, err := client.Resources().First(context.Background(), unitTypeSchema(), &commissions.ListOptions{
		Filter: commissions.Equals("name", "EUR"),
	})
	require.Error(t, err)
	assert.True(t, commissions.IsNotFound(err))
	assert.Contains(t, err.Error(), "name eq 'EUR'")
}

func TestResourcesClient_CreateOrUpdate(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		methods []string
	)

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		mu.Lock()
		methods = append(methods, request.Method)
		mu.Unlock()

		switch request.Method {
		case http.MethodPost:
			writeJSON(t, writer, http.StatusBadRequest, map[string]any{"unitTypes": []any{
				map[string]any{"_ERROR_": "TCMP_35004:E: already exists"},
			}})
		case http.MethodGet:
			assert.Equal(t, "name eq 'USD'", request.URL.Query().Get("$filter"))
			writeJSON(t, writer, http.StatusOK, map[string]any{"unitTypes": []any{
				map[string]any{"unitTypeSeq": "1001", "name": "USD", "symbol": "US$"},
			}})
		case http.MethodPut:
			body, ok := decodeBody(t, request).([]any)
			require.True(t, ok)
			assert.Equal(t, map[string]any{"unitTypeSeq": "1001", "name": "USD", "symbol": "$"}, body[0])

			writeJSON(t, writer, http.StatusOK, map[string]any{"unitTypes": body})
		}
	})

	client, _ := NewTestClient(t, server.URL)

	applied, err := client.Resources().CreateOrUpdate(context.Background(), newUnitType(t, "USD"))
	require.NoError(t, err)
	assert.Equal(t, "1001", applied.Seq())
	assert.Equal(t, "$", applied.String("symbol"))
	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{http.MethodPost, http.MethodGet, http.MethodPut}, methods)
}

func TestResourcesClient_CreateOrUpdatePassesOtherErrors(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodPost, request.Method)
		writeJSON(t, writer, http.StatusBadRequest, map[string]any{"unitTypes": []any{
			map[string]any{"_ERROR_": "TCMP_1002:E: name is required"},
		}})
	})

	client, _ := NewTestClient(t, server.URL)

	_, err := client.Resources().CreateOrUpdate(context.Background(), newUnitType(t, "USD"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, commissions.ErrMissingField))
}
