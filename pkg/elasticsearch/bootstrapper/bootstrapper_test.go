package bootstrapper

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBootstrapper_BootstrapElasticsearch(t *testing.T) {
	t.Run("Creates the span index when it is missing", func(t *testing.T) {
		cluster := &fakeCluster{}
		bs := getNewBootstrapper(t, cluster)

		require.Nil(t, bs.BootstrapElasticsearch())

		assert.Equal(t, []string{"GET /", "HEAD /span_index", "PUT /span_index"}, cluster.requests())
	})

	t.Run("Keeps an existing span index", func(t *testing.T) {
		cluster := &fakeCluster{indexExists: true}
		bs := getNewBootstrapper(t, cluster)

		require.Nil(t, bs.BootstrapElasticsearch())

		assert.Equal(t, []string{"GET /", "HEAD /span_index"}, cluster.requests())
	})

	t.Run("Gives up when the cluster never becomes available", func(t *testing.T) {
		cluster := &fakeCluster{unavailable: true}
		bs := getNewBootstrapper(t, cluster)

		assert.NotNil(t, bs.BootstrapElasticsearch())
		assert.Len(t, cluster.requests(), 2)
	})
}

type fakeCluster struct {
	mu          sync.Mutex
	seen        []string
	indexExists bool
	unavailable bool
}

func (c *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.seen = append(c.seen, r.Method+" "+r.URL.Path)
	c.mu.Unlock()
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case c.unavailable:
		w.WriteHeader(http.StatusServiceUnavailable)
	case r.Method == http.MethodHead && !c.indexExists:
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodGet:
		_, _ = w.Write([]byte(`{"name":"node","cluster_name":"test","version":{"number":"8.15.0"},"tagline":"You Know, for Search"}`))
	default:
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	}
}

func (c *fakeCluster) requests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seen...)
}

func getNewBootstrapper(t *testing.T, cluster *fakeCluster) *Bootstrapper {
	server := httptest.NewServer(cluster)
	t.Cleanup(server.Close)
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{server.URL},
		DisableRetry: true,
	})
	require.Nil(t, err)
	return NewBootstrapper(es, 2, time.Millisecond, zap.NewNop())
}
