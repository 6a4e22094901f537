package category

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAIClientSuggest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req chatRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || !assert.Len(t, req.Messages, 2) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "test-model", req.Model)
		assert.Contains(t, req.Messages[1].Content, "Healthcare")

		content := `{"corrected_name":"Chiropractic","suggested_parent":"Healthcare","confidence":80}`
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	defer srv.Close()

	client := NewAIClient(AIConfig{APIKey: "key", BaseURL: srv.URL + "/v1/", Model: "test-model"})
	got, err := client.Suggest(context.Background(), "chiropractc", []string{"Healthcare"})
	require.NoError(t, err)
	assert.Equal(t, "Chiropractic", got.CorrectedName)
	assert.Equal(t, "Healthcare", got.SuggestedParent)
	assert.Equal(t, 80, got.Confidence)
}

func TestAIClientBreakerOpens(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewAIClient(AIConfig{APIKey: "key", BaseURL: srv.URL})
	for i := 0; i < 5; i++ {
		_, err := client.Suggest(context.Background(), "x", nil)
		require.Error(t, err)
	}

	_, err := client.Suggest(context.Background(), "x", nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 5, calls)
}
