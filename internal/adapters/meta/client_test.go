package meta

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcastano/reunion/internal/domain"
)

func TestFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/sessions/abc", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"creator_id":"u1","status":"active"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "tok")
	m, err := c.Fetch(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "u1", m.CreatorID)
	assert.Equal(t, domain.SessionActive, m.Status)
}

func TestFetchBadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, "tok").Fetch(context.Background(), "missing")
	assert.Error(t, err)
}

func TestEnd(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/sessions/abc/end", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	require.NoError(t, NewClient(ts.URL, "tok").End(context.Background(), "abc"))
	assert.True(t, called)
}
