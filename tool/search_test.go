package tool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBraveSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "quantum computing news", r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("count"))
		assert.Equal(t, "pw", r.URL.Query().Get("freshness"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"web":{"results":[
			{"title":"Qubits","url":"https://example.com/qubits","description":"New <strong>qubit</strong> record"},
			{"title":"No URL","url":"","description":"dropped"},
			{"title":"Error correction","url":"https://example.com/qec","description":"Logical qubits"}
		]}}`))
	}))
	defer server.Close()

	b, err := NewBraveSearch("test-key", WithBraveBaseURL(server.URL))
	require.NoError(t, err)

	results, err := b.Search(context.Background(), "quantum computing news", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://example.com/qubits", results[0].URL)
	assert.Equal(t, "New qubit record", results[0].Snippet)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestBraveSearch_Errors(t *testing.T) {
	t.Setenv("BRAVE_API_KEY", "")
	_, err := NewBraveSearch("")
	assert.Error(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	b, err := NewBraveSearch("k", WithBraveBaseURL(server.URL))
	require.NoError(t, err)
	_, err = b.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.True(t, IsTemporary(err))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "brave", se.Service)
	assert.Equal(t, "slow down", se.Body)
}

func TestBraveSearch_EmptyResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	b, err := NewBraveSearch("k", WithBraveBaseURL(server.URL))
	require.NoError(t, err)
	results, err := b.Search(context.Background(), "nothing", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClampCount(t *testing.T) {
	assert.Equal(t, 1, clampCount(-3))
	assert.Equal(t, 7, clampCount(7))
	assert.Equal(t, 20, clampCount(50))
}

func TestTavilySearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tv-key", r.Header.Get("Authorization"))

		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ai news", req.Query)
		assert.Equal(t, 2, req.MaxResults)
		assert.Equal(t, "basic", req.SearchDepth)

		w.Write([]byte(`{"results":[
			{"title":"low","url":"https://example.com/low","content":"c","score":0.2},
			{"title":"high","url":"https://example.com/high","content":"c","score":0.9},
			{"title":"mid","url":"https://example.com/mid","content":"c","score":0.5}
		]}`))
	}))
	defer server.Close()

	tv, err := NewTavilySearch("tv-key", WithTavilyBaseURL(server.URL), WithTavilyDepth("basic"))
	require.NoError(t, err)

	results, err := tv.Search(context.Background(), "ai news", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "high", results[0].Title)
	assert.Equal(t, "mid", results[1].Title)
}

func TestTavilySearch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tv, err := NewTavilySearch("k", WithTavilyBaseURL(server.URL))
	require.NoError(t, err)
	_, err = tv.Search(context.Background(), "q", 1)
	require.Error(t, err)
	assert.False(t, IsTemporary(err))
}
