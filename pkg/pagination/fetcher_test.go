package pagination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "https://canvas.test/api/v1"

type fakePage struct {
	body string
	link string
	err  error
}

type call struct {
	path  string
	query url.Values
}

type fakeGetter struct {
	pages map[string]fakePage
	calls []call
}

func (g *fakeGetter) Get(_ context.Context, path string, query url.Values) (*http.Response, error) {
	g.calls = append(g.calls, call{path: path, query: query})
	p, ok := g.pages[path]
	if !ok {
		return nil, fmt.Errorf("no fake page for %s", path)
	}
	if p.err != nil {
		return nil, p.err
	}
	h := http.Header{}
	if p.link != "" {
		h.Set("Link", p.link)
	}
	return &http.Response{StatusCode: 200, Header: h, Body: io.NopCloser(strings.NewReader(p.body))}, nil
}

func next(rel string) string {
	return fmt.Sprintf(`<%s%s>; rel="current",<%s%s>; rel="next",<%s/x?page=1>; rel="first"`, testBase, "/x?page=0", testBase, rel, testBase)
}

type item struct {
	ID int `json:"id"`
}

func TestParseNextLink(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"empty", "", ""},
		{"no next", `<https://a/api/v1/x?page=1>; rel="first", <https://a/api/v1/x?page=3>; rel="last"`, ""},
		{"canvas style", `<https://a/api/v1/x?page=1>; rel="current",<https://a/api/v1/x?page=2>; rel="next",<https://a/api/v1/x?page=1>; rel="first"`, "https://a/api/v1/x?page=2"},
		{"unquoted rel", `<https://a/api/v1/x?page=2>; rel=next`, "https://a/api/v1/x?page=2"},
		{"multi valued rel", `<https://a/api/v1/x?page=2>; rel="next last"`, "https://a/api/v1/x?page=2"},
		{"extra params", `<https://a/api/v1/x?page=5>; type="application/json"; rel="next"`, "https://a/api/v1/x?page=5"},
		{"malformed entries skipped", `garbage, <https://a/api/v1/x?page=4>; rel="next"`, "https://a/api/v1/x?page=4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseNextLink(tt.header))
		})
	}
}

func TestFetchAll_SinglePageAddsPerPage(t *testing.T) {
	g := &fakeGetter{pages: map[string]fakePage{
		"/courses/1/enrollments": {body: `[{"id":1},{"id":2}]`},
	}}
	f := NewFetcher(g, testBase, DefaultConfig())

	got, err := FetchAll[item](context.Background(), f, "/courses/1/enrollments", url.Values{"type[]": {"StudentEnrollment"}})
	require.NoError(t, err)
	assert.Equal(t, []item{{1}, {2}}, got)

	require.Len(t, g.calls, 1)
	assert.Equal(t, "100", g.calls[0].query.Get("per_page"))
	assert.Equal(t, "StudentEnrollment", g.calls[0].query.Get("type[]"))
}

func TestFetchAll_FollowsNextLinksInOrder(t *testing.T) {
	g := &fakeGetter{pages: map[string]fakePage{
		"/x":                     {body: `[{"id":1}]`, link: next("/x?page=2&per_page=100")},
		"/x?page=2&per_page=100": {body: `[{"id":2},{"id":3}]`, link: next("/x?page=3&per_page=100")},
		"/x?page=3&per_page=100": {body: `[{"id":4}]`},
	}}
	f := NewFetcher(g, testBase+"/", DefaultConfig())

	got, err := FetchAll[item](context.Background(), f, "/x", nil)
	require.NoError(t, err)
	assert.Equal(t, []item{{1}, {2}, {3}, {4}}, got)

	require.Len(t, g.calls, 3)
	assert.Equal(t, "/x?page=2&per_page=100", g.calls[1].path)
	assert.Nil(t, g.calls[1].query, "continuation requests must not resend the first query")
}

func TestFetchAll_CallerPerPageWins(t *testing.T) {
	g := &fakeGetter{pages: map[string]fakePage{"/x": {body: `[]`}}}
	f := NewFetcher(g, testBase, Config{PerPage: 100})

	got, err := FetchAll[item](context.Background(), f, "/x", url.Values{"per_page": {"10"}})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
	assert.Equal(t, "10", g.calls[0].query.Get("per_page"))
}

func TestFetchAll_ErrorAbortsWalk(t *testing.T) {
	boom := errors.New("connection reset")
	g := &fakeGetter{pages: map[string]fakePage{
		"/x":        {body: `[{"id":1}]`, link: next("/x?page=2")},
		"/x?page=2": {err: boom},
		"/x?page=3": {body: `[{"id":3}]`},
	}}
	f := NewFetcher(g, testBase, DefaultConfig())

	got, err := FetchAll[item](context.Background(), f, "/x", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got, "no partial result on failure")
	assert.Len(t, g.calls, 2)
}

func TestFetchAll_DecodeError(t *testing.T) {
	g := &fakeGetter{pages: map[string]fakePage{"/x": {body: `{"errors":"nope"}`}}}
	f := NewFetcher(g, testBase, DefaultConfig())

	_, err := FetchAll[item](context.Background(), f, "/x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode page 1 of /x")
}

func TestFetchAll_LoopDetected(t *testing.T) {
	g := &fakeGetter{pages: map[string]fakePage{
		"/x":        {body: `[]`, link: next("/x?page=2")},
		"/x?page=2": {body: `[]`, link: next("/x?page=2")},
	}}
	f := NewFetcher(g, testBase, DefaultConfig())

	_, err := FetchAll[item](context.Background(), f, "/x", nil)
	assert.ErrorIs(t, err, ErrPaginationLoop)
}

func TestFetchAll_ForeignNextLinkKeptAbsolute(t *testing.T) {
	g := &fakeGetter{pages: map[string]fakePage{
		"/x": {body: `[]`, link: `<https://other.test/api/v1/x?page=2>; rel="next"`},
	}}
	f := NewFetcher(g, testBase, DefaultConfig())

	_, err := FetchAll[item](context.Background(), f, "/x", nil)
	require.Error(t, err)
	assert.Equal(t, "https://other.test/api/v1/x?page=2", g.calls[1].path)
}
