package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docassist/docassist/internal/config"
	"github.com/docassist/docassist/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingServer struct {
	*httptest.Server
	calls   atomic.Int32
	lastReq atomic.Value // map[string]interface{}
}

// newEmbeddingServer answers /embeddings with a vector of length dim, or with status when non-200.
func newEmbeddingServer(t *testing.T, dim int, status int) *embeddingServer {
	t.Helper()
	s := &embeddingServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.lastReq.Store(body)

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"detail":"upstream exploded","error":{"message":"upstream exploded"}}`))
			return
		}
		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = float32(i + 1)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": vec, "index": 0}},
		})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *embeddingServer) lastInput() string {
	body, _ := s.lastReq.Load().(map[string]interface{})
	input, _ := body["input"].([]interface{})
	if len(input) == 0 {
		return ""
	}
	text, _ := input[0].(string)
	return text
}

func remoteConfig(provider, baseURL string, dim int) *config.EmbeddingConfig {
	return &config.EmbeddingConfig{
		Provider:      provider,
		Model:         "test-model",
		APIKey:        "test-key",
		BaseURL:       baseURL,
		Dimensions:    dim,
		Timeout:       2 * time.Second,
		MaxInputRunes: 16,
	}
}

func TestJinaProviderLifecycle(t *testing.T) {
	srv := newEmbeddingServer(t, 4, http.StatusOK)
	p, err := NewEmbeddingProvider(remoteConfig("jina", srv.URL, 4))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Embed(ctx, "before init")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.False(t, p.Ready())

	require.NoError(t, p.Initialize(ctx))
	assert.True(t, p.Ready())
	assert.EqualValues(t, 1, srv.calls.Load(), "initialize probes once")

	require.NoError(t, p.Initialize(ctx))
	assert.EqualValues(t, 1, srv.calls.Load(), "initialize is idempotent")

	vec, err := p.Embed(ctx, "chest pain")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, vec)

	body := srv.lastReq.Load().(map[string]interface{})
	assert.Equal(t, "retrieval.passage", body["task"])
	assert.Equal(t, "test-model", body["model"])

	_, err = p.EmbedQuery(ctx, "chest pain")
	require.NoError(t, err)
	body = srv.lastReq.Load().(map[string]interface{})
	assert.Equal(t, "retrieval.query", body["task"])

	require.NoError(t, p.Close())
	assert.False(t, p.Ready())
}

func TestRemoteProviderEmptyInputSkipsNetwork(t *testing.T) {
	srv := newEmbeddingServer(t, 3, http.StatusOK)
	p, err := NewEmbeddingProvider(remoteConfig("jina", srv.URL, 3))
	require.NoError(t, err)
	require.NoError(t, p.Initialize(context.Background()))
	before := srv.calls.Load()

	vec, err := p.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, vec)
	assert.Equal(t, before, srv.calls.Load())
}

func TestRemoteProviderTruncatesInput(t *testing.T) {
	srv := newEmbeddingServer(t, 2, http.StatusOK)
	p, err := NewEmbeddingProvider(remoteConfig("openai-compatible", srv.URL, 2))
	require.NoError(t, err)
	require.NoError(t, p.Initialize(context.Background()))

	_, err = p.Embed(context.Background(), "abcdefghijklmnopqrstuvwxyz")
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijklmnop", srv.lastInput())
}

func TestRemoteProviderDimensionMismatch(t *testing.T) {
	srv := newEmbeddingServer(t, 5, http.StatusOK)
	p, err := NewEmbeddingProvider(remoteConfig("jina", srv.URL, 4))
	require.NoError(t, err)

	err = p.Initialize(context.Background())
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.False(t, p.Ready())
}

func TestRemoteProviderUpstreamError(t *testing.T) {
	for _, provider := range []string{"jina", "openai-compatible"} {
		t.Run(provider, func(t *testing.T) {
			srv := newEmbeddingServer(t, 4, http.StatusInternalServerError)
			p, err := NewEmbeddingProvider(remoteConfig(provider, srv.URL, 4))
			require.NoError(t, err)

			err = p.Initialize(context.Background())
			assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
			assert.Contains(t, err.Error(), "upstream exploded")
		})
	}
}

func TestRemoteProviderRequiresAPIKey(t *testing.T) {
	cfg := remoteConfig("jina", "http://127.0.0.1:1", 4)
	cfg.APIKey = ""
	p, err := NewEmbeddingProvider(cfg)
	require.NoError(t, err)

	err = p.Initialize(context.Background())
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestRemoteProviderTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	cfg := remoteConfig("jina", srv.URL, 4)
	cfg.Timeout = 50 * time.Millisecond
	p, err := NewEmbeddingProvider(cfg)
	require.NoError(t, err)

	start := time.Now()
	err = p.Initialize(context.Background())
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewEmbeddingProviderRejectsUnknown(t *testing.T) {
	_, err := NewEmbeddingProvider(&config.EmbeddingConfig{Provider: "word2vec", Model: "m", Dimensions: 4})
	assert.Error(t, err)
}

func TestLocalProvider(t *testing.T) {
	p, err := NewEmbeddingProvider(&config.EmbeddingConfig{Provider: "local", Model: "local-hash", Dimensions: 64})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Embed(ctx, "fever")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)

	require.NoError(t, p.Initialize(ctx))

	a, err := p.Embed(ctx, "Chest pain and fatigue")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "chest PAIN, and fatigue")
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.Equal(t, a, b, "tokenization ignores case and punctuation")

	var norm float64
	for _, x := range a {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	empty, err := p.Embed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 64), empty)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.Embed(canceled, "fever")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}
