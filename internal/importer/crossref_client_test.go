package importer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"litgraph/internal/alias/resolver"
)

// fakeCrossref answers works queries for every DOI except poison ones.
type fakeCrossref struct {
	mu      sync.Mutex
	queries []string
	agents  []string
	poison  string
}

func (f *fakeCrossref) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.agents = append(f.agents, r.UserAgent())
	f.mu.Unlock()

	work := func(doi string) string {
		return fmt.Sprintf(`{"DOI": %q, "title": ["Title of %s"]}`, doi, doi)
	}

	if single := strings.TrimPrefix(r.URL.Path, "/works/"); single != r.URL.Path {
		f.mu.Lock()
		f.queries = append(f.queries, "single:"+single)
		f.mu.Unlock()
		fmt.Fprintf(w, `{"status": "ok", "message-type": "work", "message": %s}`, work(single))
		return
	}

	filter := r.URL.Query().Get("filter")
	f.mu.Lock()
	f.queries = append(f.queries, filter)
	f.mu.Unlock()
	var items []string
	for _, part := range strings.Split(filter, ",") {
		d := strings.TrimPrefix(part, "doi:")
		if d == f.poison {
			http.Error(w, "bad filter", http.StatusBadRequest)
			return
		}
		items = append(items, work(d))
	}
	fmt.Fprintf(w, `{"status": "ok", "message-type": "work-list", "message": {"total-results": %d, "items": [%s]}}`,
		len(items), strings.Join(items, ","))
}

func newTestClient(t *testing.T, fake *fakeCrossref) *CrossrefClient {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewCrossrefClient(resolver.New(nil, nil, nil),
		WithBaseURL(srv.URL+"/works"),
		WithHTTPClient(srv.Client()),
		WithRate(time.Microsecond, 100),
		WithMailto("ops@example.org"),
	)
}

func TestCrossrefClientFetch(t *testing.T) {
	fake := &fakeCrossref{}
	c := newTestClient(t, fake)

	records, err := c.Fetch(context.Background(), []string{"10.1000/a", "10.1000/b", "10.1000/c,d"})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "10.1000/a", records[0].ID)
	assert.Equal(t, "10.1000/c,d", records[2].ID)
	assert.Equal(t, []string{"doi:10.1000/a,doi:10.1000/b", "single:10.1000/c,d"}, fake.queries)
	assert.Contains(t, fake.agents[0], "mailto:ops@example.org")
}

func TestCrossrefClientBisectsFailingQueries(t *testing.T) {
	fake := &fakeCrossref{poison: "10.1000/c"}
	c := newTestClient(t, fake)

	records, err := c.Fetch(context.Background(), []string{"10.1000/a", "10.1000/b", "10.1000/c", "10.1000/d"})
	require.NoError(t, err)
	var ids []string
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"10.1000/a", "10.1000/b", "10.1000/d"}, ids)
	assert.Equal(t, []string{
		"doi:10.1000/a,doi:10.1000/b,doi:10.1000/c,doi:10.1000/d",
		"doi:10.1000/a,doi:10.1000/b",
		"doi:10.1000/c,doi:10.1000/d",
		"doi:10.1000/c",
		"doi:10.1000/d",
	}, fake.queries)
}

func TestFitQuery(t *testing.T) {
	short := make([]string, 200)
	for n := range short {
		short[n] = fmt.Sprintf("10.1000/%d", n)
	}
	assert.Equal(t, crossrefBatchSize, fitQuery(short))

	long := []string{"10.1000/" + strings.Repeat("x", 2000), "10.1000/" + strings.Repeat("y", 2000)}
	assert.Equal(t, 1, fitQuery(long))

	huge := []string{"10.1000/" + strings.Repeat("z", 5000)}
	assert.Equal(t, 1, fitQuery(huge), "a single oversized DOI is still attempted")
}
