package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"velos/internal/audit"
	"velos/internal/candidate"
	"velos/internal/extract"
	"velos/internal/llm"
	"velos/internal/packet"
	"velos/internal/pipeline"
	"velos/internal/platform/config"
	"velos/internal/redact"
	"velos/internal/registry"
	httptransport "velos/internal/transport/http"
	"velos/internal/vector"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			w := &world{}
			ctx.Step(`^a running screening service$`, w.startService)
			ctx.Step(`^I submit a resume with (\d+) years of matching experience$`, w.submitMatching)
			ctx.Step(`^I submit a resume with (\d+) years of unrelated experience$`, w.submitUnrelated)
			ctx.Step(`^I answer every interrogation question convincingly$`, w.answerAllQuestions)
			ctx.Step(`^I never answer the interrogation questions$`, w.neverAnswer)
			ctx.Step(`^the candidate reaches state "([^"]*)"$`, w.candidateReachesState)
			ctx.Step(`^the trust packet is sealed$`, w.packetIsSealed)
			ctx.Step(`^the trust packet verifies as (valid|invalid)$`, w.packetVerifies)
			ctx.Step(`^the sealed packet verifies by candidate id as (valid|invalid)$`, w.sealedPacketVerifiesByID)
			ctx.Step(`^the candidate holds (\d+) credentials$`, w.candidateHoldsCredentials)
			ctx.Step(`^I revoke the candidate's first credential$`, w.revokeFirstCredential)
			ctx.After(func(c context.Context, _ *godog.Scenario, err error) (context.Context, error) {
				if w.server != nil {
					w.server.Close()
				}
				if w.service != nil {
					w.service.Shutdown()
				}
				return c, err
			})
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature suite failed")
	}
}

// scriptedLLM mirrors the production prompt shapes deterministically.
type scriptedLLM struct {
	years float64
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	switch {
	case strings.Contains(req.Prompt, "experience_years"):
		return llm.Response{Text: fmt.Sprintf(`{"experience_years": %.1f, "claims": [
			{"kind": "project", "text": "built a fraud detection pipeline", "salience": 0.9},
			{"kind": "skill", "text": "Go and PostgreSQL in production", "salience": 0.7},
			{"kind": "experience", "text": "led a platform team", "salience": 0.5}
		]}`, s.years)}, nil
	case strings.Contains(req.Prompt, "Write a single specific question"):
		lines := strings.Split(req.Prompt, "\n")
		return llm.Response{Text: "Give specifics for " + lines[1]}, nil
	case strings.Contains(req.Prompt, "Score 0-10"):
		score := 3.0
		if strings.Contains(req.Prompt, "Answer: We hit") {
			score = 9.0
		}
		return llm.Response{Text: fmt.Sprintf(`{"score": %.1f}`, score)}, nil
	default:
		return llm.Response{}, errors.New("unexpected prompt")
	}
}

// world holds per-scenario state.
type world struct {
	server      *httptest.Server
	service     *pipeline.Service
	llm         *scriptedLLM
	candidateID string
	subject     registry.DID
	reg         *registry.Registry
	packet      packet.Packet
}

func (w *world) startService() error {
	logger := slog.New(slog.DiscardHandler)
	cfg := config.Pipeline{
		MinYears:           2,
		SkillPassThreshold: 60,
		TrustPassThreshold: 70,
		EvidenceTopK:       3,
		MaxQuestions:       3,
		AnswerIdleTimeout:  300 * time.Millisecond,
	}

	w.llm = &scriptedLLM{}
	w.reg = registry.New("e2e-secret", registry.NewInMemoryCredentialStore(), registry.NewInMemoryRevocationStore(), nil, logger)
	issuer, err := w.reg.CreateDID(context.Background(), registry.DIDKindAgent, "screening-agent", nil)
	if err != nil {
		return err
	}

	store := candidate.NewInMemoryStore()
	auditLog := audit.NewLog(audit.NewInMemoryStore(), logger)
	gk := pipeline.NewGatekeeper(redact.New(logger), extract.New(w.llm, logger), w.reg, issuer.DID, cfg, logger)
	sm := pipeline.NewSkillMatcher(vector.NewHashingEmbedder(), w.reg, issuer.DID, cfg, logger)
	in := pipeline.NewInterrogator(w.llm, w.reg, issuer.DID, cfg, logger)
	assembler := packet.NewAssembler(w.reg, "e2e-secret", packet.NewInMemoryStore(), nil, logger)
	runner := pipeline.NewRunner(store, gk, sm, in, assembler, auditLog, nil, logger)
	w.service = pipeline.NewService(store, runner, w.reg, assembler, auditLog, nil, logger)

	w.server = httptest.NewServer(httptransport.NewRouter(httptransport.NewHandler(w.service, logger), logger))
	return nil
}

const matchingResume = `Senior engineer
built a fraud detection pipeline processing millions of events
Go and PostgreSQL in production for five years
led a platform team of six engineers`

const matchingJD = `Go and PostgreSQL in production
built a fraud detection pipeline processing millions of events`

func (w *world) submit(resume, jd string, years int) error {
	w.llm.years = float64(years)

	var status pipeline.Status
	if err := w.post("/candidates", pipeline.SubmitRequest{ResumeText: resume, JobDescription: jd}, &status); err != nil {
		return err
	}
	if status.CandidateID == "" {
		return errors.New("no candidate id in submit response")
	}
	w.candidateID = status.CandidateID
	w.subject = status.Subject
	return nil
}

func (w *world) submitMatching(years int) error {
	return w.submit(matchingResume, matchingJD, years)
}

func (w *world) submitUnrelated(years int) error {
	return w.submit(matchingResume, "embedded avionics firmware in Rust\nbare metal realtime kernels", years)
}

func (w *world) answerAllQuestions() error {
	prev := ""
	for i := 0; i < 3; i++ {
		question, err := w.waitForQuestion(prev)
		if err != nil {
			return err
		}
		prev = question
		err = w.post(fmt.Sprintf("/candidates/%s/answers", w.candidateID),
			map[string]string{"answer": "We hit index bloat at 40M rows and fixed p99 with partial indexes."}, nil)
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *world) neverAnswer() error {
	_, err := w.waitForQuestion("")
	return err
}

func (w *world) waitForQuestion(prev string) (string, error) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var status pipeline.Status
		if err := w.get("/candidates/"+w.candidateID, &status); err != nil {
			return "", err
		}
		if status.PendingQuestion != "" && status.PendingQuestion != prev {
			return status.PendingQuestion, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return "", errors.New("no new interrogation question appeared")
}

func (w *world) candidateReachesState(want string) error {
	deadline := time.Now().Add(5 * time.Second)
	var last string
	for time.Now().Before(deadline) {
		var status pipeline.Status
		if err := w.get("/candidates/"+w.candidateID, &status); err != nil {
			return err
		}
		last = string(status.State)
		if last == want {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("candidate stuck in %s, wanted %s", last, want)
}

func (w *world) packetIsSealed() error {
	if err := w.get(fmt.Sprintf("/candidates/%s/packet", w.candidateID), &w.packet); err != nil {
		return err
	}
	if !w.packet.Complete() {
		return errors.New("trust packet has no signature")
	}
	return nil
}

func (w *world) packetVerifies(expected string) error {
	if err := w.get(fmt.Sprintf("/candidates/%s/packet", w.candidateID), &w.packet); err != nil {
		return err
	}
	var report packet.VerificationReport
	if err := w.post("/packets/verify", w.packet, &report); err != nil {
		return err
	}
	if report.Valid != (expected == "valid") {
		return fmt.Errorf("packet verification was %v, reasons: %v", report.Valid, report.Reasons)
	}
	return nil
}

func (w *world) sealedPacketVerifiesByID(expected string) error {
	var report packet.VerificationReport
	if err := w.post(fmt.Sprintf("/candidates/%s/packet/verify", w.candidateID), nil, &report); err != nil {
		return err
	}
	if report.Valid != (expected == "valid") {
		return fmt.Errorf("stored packet verification was %v, reasons: %v", report.Valid, report.Reasons)
	}
	return nil
}

func (w *world) candidateHoldsCredentials(count int) error {
	creds, err := w.reg.CredentialsForSubject(context.Background(), w.subject)
	if err != nil {
		return err
	}
	if len(creds) != count {
		return fmt.Errorf("candidate holds %d credentials, wanted %d", len(creds), count)
	}
	return nil
}

func (w *world) revokeFirstCredential() error {
	creds, err := w.reg.CredentialsForSubject(context.Background(), w.subject)
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		return errors.New("no credentials to revoke")
	}
	return w.post(fmt.Sprintf("/credentials/%s/revoke", creds[0].ID),
		map[string]string{"reason": "e2e revocation"}, nil)
}

func (w *world) post(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(w.server.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("POST %s returned %d", path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (w *world) get(path string, out any) error {
	resp, err := http.Get(w.server.URL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("GET %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
