//go:build !integration

package integration_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekly-snippets/internal/infra/adapters/integration"
)

func TestHTTPSource(t *testing.T) {
	from := time.Date(2025, 7, 21, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 7, 25, 0, 0, 0, 0, time.UTC)

	t.Run("should fetch and map activity items", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/github/activity", r.URL.Path)
			assert.Equal(t, "2025-07-21T00:00:00Z", r.URL.Query().Get("from"))
			assert.Equal(t, "2025-07-25T00:00:00Z", r.URL.Query().Get("to"))
			assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, `{"items":[
				{"title":"merged PR #42","url":"https://example.test/pr/42","occurredAt":"2025-07-22T10:00:00Z"},
				{"title":"  "}
			]}`)
		}))
		defer srv.Close()

		s, err := integration.NewHTTPSource(srv.URL+"/", time.Second)
		require.NoError(t, err)

		items, err := s.Fetch(context.Background(), "github", "gh-token", from, to)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "github", items[0].Source)
		assert.Equal(t, "merged PR #42", items[0].Title)
		assert.Equal(t, time.Date(2025, 7, 22, 10, 0, 0, 0, time.UTC), items[0].OccurredAt.UTC())
	})

	t.Run("should fail on error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "token revoked", http.StatusUnauthorized)
		}))
		defer srv.Close()

		s, err := integration.NewHTTPSource(srv.URL, time.Second)
		require.NoError(t, err)
		_, err = s.Fetch(context.Background(), "jira", "t", from, to)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jira http 401: token revoked")
	})

	t.Run("should respect context cancellation", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer srv.Close()

		s, err := integration.NewHTTPSource(srv.URL, 5*time.Second)
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err = s.Fetch(ctx, "github", "t", from, to)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("should reject a relative base url", func(t *testing.T) {
		_, err := integration.NewHTTPSource("/activity", time.Second)
		assert.Error(t, err)
	})
}
