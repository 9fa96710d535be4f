package extract

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"velos/internal/llm"
)

type stubLLM struct {
	reply string
	err   error
}

func (s stubLLM) Complete(context.Context, llm.Request) (llm.Response, error) {
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return llm.Response{Text: s.reply}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestExtractParsesWellFormedReply(t *testing.T) {
	e := New(stubLLM{reply: `{"experience_years": 5, "claims": [
		{"kind": "project", "text": "built a RAG pipeline", "salience": 0.9},
		{"kind": "skill", "text": "Go in production", "salience": 0.6}
	]}`}, testLogger())

	result, err := e.Extract(context.Background(), "redacted resume text")
	require.NoError(t, err)
	assert.Equal(t, 5.0, result.ExperienceYears)
	require.Len(t, result.Claims, 2)
	assert.Equal(t, "claim-1", result.Claims[0].ID)
	assert.Equal(t, "project", result.Claims[0].Kind)
}

func TestExtractToleratesProseAroundJSON(t *testing.T) {
	e := New(stubLLM{reply: "Sure! Here is the extraction:\n{\"experience_years\": 3, \"claims\": []}\nHope that helps."}, testLogger())

	result, err := e.Extract(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, 3.0, result.ExperienceYears)
}

func TestExtractRejectsGarbageReply(t *testing.T) {
	e := New(stubLLM{reply: "I cannot do that."}, testLogger())

	_, err := e.Extract(context.Background(), "text")
	require.Error(t, err)
}

func TestExtractRejectsEmptyInput(t *testing.T) {
	e := New(stubLLM{reply: "{}"}, testLogger())

	_, err := e.Extract(context.Background(), "   ")
	require.Error(t, err)
}

func TestExtractClampsNegativeYears(t *testing.T) {
	e := New(stubLLM{reply: `{"experience_years": -2, "claims": []}`}, testLogger())

	result, err := e.Extract(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.ExperienceYears)
}
