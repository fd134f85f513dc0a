package pagination_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/Sternrassler/canvas-progress/pkg/client"
	"github.com/Sternrassler/canvas-progress/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAll_WithCanvasClient(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == 0 {
			page = 1
		}
		if page < 3 {
			w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/courses/5/users?page=%d&per_page=%s>; rel="next"`,
				server.URL, page+1, r.URL.Query().Get("per_page")))
		}
		fmt.Fprintf(w, `[{"id":%d}]`, page)
	}))
	defer server.Close()

	c, err := client.New(client.DefaultConfig(server.URL, "token"))
	require.NoError(t, err)
	f := pagination.NewFetcher(c, c.BaseURL(), pagination.DefaultConfig())

	type user struct {
		ID int `json:"id"`
	}
	got, err := pagination.FetchAll[user](context.Background(), f, "/courses/5/users", nil)
	require.NoError(t, err)
	assert.Equal(t, []user{{1}, {2}, {3}}, got)
}

func TestFetchAll_HTTPErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c, err := client.New(client.DefaultConfig(server.URL, "token"))
	require.NoError(t, err)
	f := pagination.NewFetcher(c, c.BaseURL(), pagination.DefaultConfig())

	_, err = pagination.FetchAll[map[string]any](context.Background(), f, "/courses/5/users", nil)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
