package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qhttp "github.com/fyrsmithlabs/quorum/internal/http"
)

func TestNewStatusClient(t *testing.T) {
	client := NewStatusClient("http://127.0.0.1:9191/")
	assert.Equal(t, "http://127.0.0.1:9191", client.baseURL)
	assert.NotNil(t, client.client)
}

func TestStatusClient_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/status", r.URL.Path)
		_ = json.NewEncoder(w).Encode(qhttp.StatusResponse{RunID: "run-1", Phase: "REVIEW", Percentage: 66})
	}))
	defer server.Close()

	st, err := NewStatusClient(server.URL).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", st.RunID)
	assert.Equal(t, 66, st.Percentage)
}

func TestStatusClient_NoPipeline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"no pipeline has been started"}`, http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewStatusClient(server.URL).Status(context.Background())
	assert.ErrorIs(t, err, ErrNoPipeline)
}

func TestStatusClient_Errors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := NewStatusClient(server.URL).Status(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status code 500")
	})

	t.Run("invalid json", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}))
		defer server.Close()

		_, err := NewStatusClient(server.URL).Status(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode")
	})

	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := NewStatusClient(server.URL).Status(ctx)
		assert.Error(t, err)
	})
}

func TestStatusClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(qhttp.HealthResponse{Status: "ok"})
	}))
	defer server.Close()

	assert.NoError(t, NewStatusClient(server.URL).Health(context.Background()))
}
