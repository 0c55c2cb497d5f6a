package llm

import (
	"context"
	"os"
	"strings"
)

// MockClassifier always returns the priority named by the MOCK_LLM_PRIORITY
// environment variable, matching llm_adapter.py's classify_from_file mock
// branch exactly: the value is upper-cased and any value outside
// HIGH/MEDIUM/LOW silently falls back to MEDIUM.
type MockClassifier struct {
	// EnvVar defaults to "MOCK_LLM_PRIORITY" when empty; overridable so a
	// test can read its own environment variable instead of that one.
	EnvVar string
}

// Classify implements Classifier.
func (m MockClassifier) Classify(_ context.Context, filename string, _ []byte) (Result, error) {
	envVar := m.EnvVar
	if envVar == "" {
		envVar = "MOCK_LLM_PRIORITY"
	}
	raw := strings.ToUpper(strings.TrimSpace(os.Getenv(envVar)))
	if !validPriority(raw) {
		raw = string(PriorityMedium)
	}
	return Result{
		Priority: Priority(raw),
		Raw:      "MOCK",
		Parsed:   map[string]any{"mock": true, "filename": filename},
	}, nil
}
