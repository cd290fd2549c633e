package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbedBatch_Authorization(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		resp := map[string]any{"data": []map[string]any{{"embedding": []float32{0.1, 0.2}}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer ts.Close()

	t.Setenv("EMBEDDING_BASE_URL", ts.URL)
	t.Setenv("EMBEDDING_API_KEY", "secret")
	t.Setenv("EMBEDDING_MODEL_ID", "m")
	t.Setenv("EMBEDDING_CONCURRENCY", "5")

	c := NewClient()
	vecs, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{0.1, 0.2}}, vecs)
}

func TestEmbedBatch_RejectsEmptyInput(t *testing.T) {
	t.Setenv("EMBEDDING_CONCURRENCY", "5")
	c := NewClient()

	_, err := c.EmbedBatch(context.Background(), nil)
	require.Error(t, err)

	_, err = c.EmbedBatch(context.Background(), []string{""})
	require.Error(t, err)
}

func TestEmbedBatch_CountMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"data": []map[string]any{{"embedding": []float32{0.1}}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer ts.Close()

	t.Setenv("EMBEDDING_BASE_URL", ts.URL)
	t.Setenv("EMBEDDING_CONCURRENCY", "5")
	c := NewClient()

	_, err := c.EmbedBatch(context.Background(), []string{"x", "y"})
	require.ErrorContains(t, err, "got 1 vectors, want 2")
}
