package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/krptodr/ravendb/client"
	"github.com/krptodr/ravendb/topology"
)

func writeTopology(t *testing.T, w http.ResponseWriter, view *topology.View) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(EncodeView(view))
	require.NoError(t, err)
}

func TestTopologyFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/databases/Northwind/replication/topology" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		_, _ = io.WriteString(w, `{
			"ClusterCommitIndex": 42,
			"ClusterInformation": {"IsInCluster": true, "IsLeader": false},
			"Destinations": [
				{"Url": "http://b:8080", "Database": "Northwind",
				 "ClusterInformation": {"IsInCluster": true, "IsLeader": true}},
				{"Url": "http://c:8080", "ClientVisibleUrl": "http://public-c", "Disabled": true},
				{"Url": "", "IgnoredClient": true}
			]
		}`)
	}))
	defer srv.Close()

	fetcher := NewTopologyFetcher(&TopologyFetcherOptions{
		Logger:      zaptest.NewLogger(t),
		ClientTrace: true,
	})

	node := &topology.Node{
		URL:         topology.DatabaseURL(srv.URL, "Northwind"),
		Database:    "Northwind",
		Credentials: &BasicCredentials{Username: "admin", Password: "secret"},
	}

	view, err := fetcher.FetchTopology(context.Background(), node)
	require.NoError(t, err)

	assert.Same(t, node, view.Source)
	assert.Equal(t, int64(42), view.ClusterCommitIndex)
	assert.Equal(t, &topology.ClusterInfo{IsInCluster: true}, view.ClusterInfo)
	require.Len(t, view.Destinations, 3)
	assert.Equal(t, "http://b:8080", view.Destinations[0].URL)
	assert.Equal(t, "Northwind", view.Destinations[0].Database)
	assert.True(t, view.Destinations[0].ClusterInfo.IsLeader)
	assert.Equal(t, "http://public-c", view.Destinations[1].ClientVisibleURL)
	assert.True(t, view.Destinations[1].Disabled)
	assert.True(t, view.Destinations[2].IgnoredClient)

	t.Run("WrongCredentials", func(t *testing.T) {
		_, err := fetcher.FetchTopology(context.Background(), &topology.Node{
			URL: node.URL,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})
}

func TestTopologyFetcher_Snappy(t *testing.T) {
	view := &topology.View{
		ClusterCommitIndex: 7,
		ClusterInfo:        &topology.ClusterInfo{IsInCluster: true, IsLeader: true},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "snappy", r.Header.Get("Accept-Encoding"))

		data, err := json.Marshal(EncodeView(view))
		require.NoError(t, err)

		w.Header().Set("Content-Encoding", "snappy")
		_, _ = w.Write(snappy.Encode(nil, data))
	}))
	defer srv.Close()

	fetcher := NewTopologyFetcher(&TopologyFetcherOptions{
		TopologyPath: "/topology",
		AcceptSnappy: true,
	})

	fetched, err := fetcher.FetchTopology(context.Background(), &topology.Node{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, int64(7), fetched.ClusterCommitIndex)
	assert.True(t, fetched.ClusterInfo.IsLeader)
	assert.Empty(t, fetched.Destinations)
}

func TestReadBody_SnappyDecodedSizeLimit(t *testing.T) {
	snappyResponse := func(body []byte) *http.Response {
		return &http.Response{
			Header: http.Header{"Content-Encoding": []string{"snappy"}},
			Body:   io.NopCloser(bytes.NewReader(body)),
		}
	}

	t.Run("ClaimedLength", func(t *testing.T) {
		// a length header of almost 4GiB with no payload behind it
		_, err := readBody(snappyResponse([]byte{0xf0, 0xff, 0xff, 0xff, 0x0f}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds")
	})

	t.Run("Expands", func(t *testing.T) {
		compressed := snappy.Encode(nil, make([]byte, maxResponseSize+1))
		require.Less(t, len(compressed), maxResponseSize)

		_, err := readBody(snappyResponse(compressed))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds")
	})

	t.Run("WithinLimit", func(t *testing.T) {
		body, err := readBody(snappyResponse(snappy.Encode(nil, []byte(`{"ok":true}`))))
		require.NoError(t, err)
		assert.Equal(t, `{"ok":true}`, string(body))
	})
}

func TestTopologyFetcher_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ClusterCommitIndex": "not a number"`)
	}))
	defer srv.Close()

	_, err := NewTopologyFetcher(nil).FetchTopology(context.Background(), &topology.Node{URL: srv.URL})
	require.Error(t, err)
}

func TestInvoker(t *testing.T) {
	var otherHits atomic.Int32
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		otherHits.Add(1)
	}))
	defer other.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/ok":
			require.Equal(t, "key-1", r.Header.Get(APIKeyHeader))
			if r.Method == http.MethodPut {
				body, _ := io.ReadAll(r.Body)
				require.JSONEq(t, `{"Name":"test"}`, string(body))
			}
			_, _ = io.WriteString(w, `{"Id":"docs/1","ChangeVector":"A:1"}`)
		case "/docs/moved":
			http.Redirect(w, r, other.URL+"/docs/moved", http.StatusTemporaryRedirect)
		case "/docs/stale":
			w.WriteHeader(http.StatusPreconditionFailed)
			_, _ = io.WriteString(w, "not the leader")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	invoker := NewInvoker(&InvokerOptions{Logger: zaptest.NewLogger(t)})
	node := &topology.Node{
		URL:         srv.URL,
		Credentials: &APIKeyCredentials{Key: "key-1"},
	}

	t.Run("DecodesBody", func(t *testing.T) {
		var out struct {
			Id           string
			ChangeVector string
		}
		err := invoker.Do(context.Background(), node, http.MethodPut, "/docs/ok", []byte(`{"Name":"test"}`), &out)
		require.NoError(t, err)
		assert.Equal(t, "docs/1", out.Id)
		assert.Equal(t, "A:1", out.ChangeVector)
	})

	t.Run("RedirectIsRetryable", func(t *testing.T) {
		err := invoker.Do(context.Background(), node, http.MethodGet, "docs/moved", nil, nil)
		require.True(t, client.IsRetryable(err))
		assert.Contains(t, err.Error(), "location")
		assert.Equal(t, int32(0), otherHits.Load(), "redirect was followed")
	})

	t.Run("PreconditionFailedIsRetryable", func(t *testing.T) {
		err := invoker.Operation(http.MethodGet, "/docs/stale", nil, nil)(context.Background(), node)
		require.True(t, client.IsRetryable(err))

		var remoteErr *client.RemoteError
		require.ErrorAs(t, err, &remoteErr)
		assert.Equal(t, http.StatusPreconditionFailed, remoteErr.StatusCode)
		assert.Same(t, node, remoteErr.Node)
		assert.Contains(t, err.Error(), "not the leader")
	})

	t.Run("NotFoundIsOpaque", func(t *testing.T) {
		err := invoker.Do(context.Background(), node, http.MethodGet, "/docs/missing", nil, nil)
		require.Error(t, err)
		require.False(t, client.IsRetryable(err))
	})
}

func TestExecutorOverHTTP(t *testing.T) {
	var leaderURL string
	var followerHits, leaderHits atomic.Int32

	leader := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case DefaultTopologyPath:
			writeTopology(t, w, &topology.View{
				ClusterCommitIndex: 10,
				ClusterInfo:        &topology.ClusterInfo{IsInCluster: true, IsLeader: true},
			})
		default:
			leaderHits.Add(1)
			_, _ = io.WriteString(w, `{"Result":"stored"}`)
		}
	}))
	defer leader.Close()
	leaderURL = leader.URL

	follower := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case DefaultTopologyPath:
			writeTopology(t, w, &topology.View{
				ClusterCommitIndex: 10,
				ClusterInfo:        &topology.ClusterInfo{IsInCluster: true},
				Destinations: []topology.Destination{
					{
						URL:         leaderURL,
						ClusterInfo: &topology.ClusterInfo{IsInCluster: true, IsLeader: true},
					},
				},
			})
		default:
			followerHits.Add(1)
			w.WriteHeader(http.StatusPreconditionFailed)
		}
	}))
	defer follower.Close()

	logger := zaptest.NewLogger(t)
	e, err := client.NewClusterExecutor(&client.ClusterExecutorOptions{
		Logger:     logger,
		Fetcher:    NewTopologyFetcher(&TopologyFetcherOptions{Logger: logger}),
		PrimaryURL: follower.URL,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	invoker := NewInvoker(&InvokerOptions{Logger: logger})

	var out struct{ Result string }
	err = e.Execute(context.Background(), invoker.Operation(http.MethodPost, "/docs", []byte(`{}`), &out))
	require.NoError(t, err)
	assert.Equal(t, "stored", out.Result)
	assert.Equal(t, int32(1), leaderHits.Load())
	assert.Equal(t, int32(0), followerHits.Load())

	nodes := e.CurrentNodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, leader.URL, nodes[0].URL)
	assert.Equal(t, follower.URL, nodes[1].URL)
}
