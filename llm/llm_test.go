package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockClassifierUsesEnvPriority(t *testing.T) {
	t.Setenv("MOCK_LLM_PRIORITY", "high")

	result, err := MockClassifier{}.Classify(context.Background(), "scan.pdf", nil)
	require.NoError(t, err)
	require.Equal(t, PriorityHigh, result.Priority)
	require.Equal(t, "MOCK", result.Raw)
}

func TestMockClassifierFallsBackToMediumForInvalidValue(t *testing.T) {
	t.Setenv("MOCK_LLM_PRIORITY", "URGENT")

	result, err := MockClassifier{}.Classify(context.Background(), "scan.pdf", nil)
	require.NoError(t, err)
	require.Equal(t, PriorityMedium, result.Priority)
}

func TestMockClassifierUsesCustomEnvVar(t *testing.T) {
	t.Setenv("CUSTOM_PRIORITY", "low")

	result, err := (MockClassifier{EnvVar: "CUSTOM_PRIORITY"}).Classify(context.Background(), "x", nil)
	require.NoError(t, err)
	require.Equal(t, PriorityLow, result.Priority)
}

func TestHTTPClassifierMapsScoreToPriority(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"score": 3, "notes": "severe"}`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, nil)
	result, err := c.Classify(context.Background(), "scan.pdf", []byte("data"))
	require.NoError(t, err)
	require.Equal(t, PriorityHigh, result.Priority)
}

func TestHTTPClassifierStripsMarkdownFence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("```json\n{\"score\": 2}\n```"))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, nil)
	result, err := c.Classify(context.Background(), "scan.pdf", []byte("data"))
	require.NoError(t, err)
	require.Equal(t, PriorityMedium, result.Priority)
}

func TestHTTPClassifierFallsBackToSeriousness(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"seriousness": "critical"}`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, nil)
	result, err := c.Classify(context.Background(), "scan.pdf", []byte("data"))
	require.NoError(t, err)
	require.Equal(t, PriorityHigh, result.Priority)
}

func TestHTTPClassifierExtractsEmbeddedObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("here is the result: {\"score\": 1} thanks"))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, nil)
	result, err := c.Classify(context.Background(), "scan.pdf", []byte("data"))
	require.NoError(t, err)
	require.Equal(t, PriorityLow, result.Priority)
}

func TestHTTPClassifierUnparseableBodyDefaultsToLow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, nil)
	result, err := c.Classify(context.Background(), "scan.pdf", []byte("data"))
	require.NoError(t, err)
	require.Equal(t, PriorityLow, result.Priority)
	require.Equal(t, "not json at all", result.Parsed["raw_output"])
}

func TestHTTPClassifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, nil)
	_, err := c.Classify(context.Background(), "scan.pdf", []byte("data"))
	require.Error(t, err)
}
