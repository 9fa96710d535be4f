// Package extract turns redacted resume text into structured experience and
// claims using the LLM collaborator. This is the only stage-1 suspension
// point; retry policy lives in the llm client, not here.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"velos/internal/llm"
)

// Claim is one verifiable assertion extracted from the resume.
type Claim struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"` // project, skill, experience
	Text     string  `json:"text"`
	Salience float64 `json:"salience"` // 0-1, how central the claim is
}

// Result is the structured extraction output.
type Result struct {
	ExperienceYears float64 `json:"experience_years"`
	Claims          []Claim `json:"claims"`
}

// Extractor drives the extraction prompt and parses the model's JSON reply.
type Extractor struct {
	client llm.Client
	logger *slog.Logger
}

func New(client llm.Client, logger *slog.Logger) *Extractor {
	return &Extractor{client: client, logger: logger}
}

const extractionPrompt = `Analyze this resume text and extract:
1. experience_years: total years of professional experience (number, 0 if unclear)
2. claims: the candidate's concrete claims about projects, skills, and roles

Return ONLY valid JSON, no other text:
{
  "experience_years": 5,
  "claims": [
    {"kind": "project", "text": "built a real-time fraud detection pipeline", "salience": 0.9},
    {"kind": "skill", "text": "Go and Kubernetes in production", "salience": 0.7}
  ]
}

Resume text:
%s`

// Extract runs one extraction over redacted text. The caller must pass text
// that has already been through the redactor; this package never sees PII.
func (e *Extractor) Extract(ctx context.Context, redactedText string) (Result, error) {
	if strings.TrimSpace(redactedText) == "" {
		return Result{}, fmt.Errorf("empty resume text")
	}

	resp, err := e.client.Complete(ctx, llm.Request{
		Prompt:      fmt.Sprintf(extractionPrompt, clip(redactedText, 6000)),
		Temperature: 0,
	})
	if err != nil {
		return Result{}, fmt.Errorf("extraction call: %w", err)
	}

	result, err := parseResult(resp.Text)
	if err != nil {
		return Result{}, fmt.Errorf("extraction parse: %w", err)
	}

	for i := range result.Claims {
		if result.Claims[i].ID == "" {
			result.Claims[i].ID = fmt.Sprintf("claim-%d", i+1)
		}
	}
	e.logger.DebugContext(ctx, "extraction complete",
		"experience_years", result.ExperienceYears,
		"claims", len(result.Claims),
	)
	return result, nil
}

// parseResult tolerates models that wrap the JSON in prose by slicing from
// the first '{' to the last '}'.
func parseResult(text string) (Result, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Result{}, fmt.Errorf("no JSON object in model output")
	}

	var result Result
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return Result{}, err
	}
	if result.ExperienceYears < 0 {
		result.ExperienceYears = 0
	}
	return result, nil
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
