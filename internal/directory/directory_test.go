package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticReturnsStableOrder(t *testing.T) {
	svc := NewStatic(map[string][]Member{
		"l1": {{ID: "zoe"}, {ID: "alice"}, {ID: "mike"}},
	})

	members, err := svc.RoleMembers(context.Background(), "l1")
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "alice", members[0].ID)
	assert.Equal(t, "mike", members[1].ID)
	assert.Equal(t, "zoe", members[2].ID)

	empty, err := svc.RoleMembers(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHTTPClientFetchesAndSortsMembers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/roles/l1-support/members", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"bob","email":"bob@example.com"},{"id":"alice","email":"alice@example.com"}]`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 2*time.Second)
	members, err := client.RoleMembers(context.Background(), "l1-support")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].ID)
	assert.Equal(t, "bob", members[1].ID)
}

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"id":"carol","email":"carol@example.com"}]`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 2*time.Second)
	members, err := client.RoleMembers(context.Background(), "l2")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "carol", members[0].ID)
	assert.EqualValues(t, 3, calls.Load())
}

func TestHTTPClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 2*time.Second)
	_, err := client.RoleMembers(context.Background(), "ghost")
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}
