package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/anomaly"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/breaker"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/enrichment"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/logging"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/messaging"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/persistence"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/risk"
)

type stubTextScorer struct {
	frag model.Fragment
	err  error
}

func (s *stubTextScorer) ScoreText(_ context.Context, _, _ string) (model.Fragment, error) {
	return s.frag, s.err
}

type stubURLScorer struct {
	frag model.Fragment
	err  error
}

func (s *stubURLScorer) ScoreURLs(_ context.Context, _ []string) (model.Fragment, error) {
	return s.frag, s.err
}

type stubScanner struct {
	result enrichment.ScanResult
	err    error
}

func (s *stubScanner) Scan(_ context.Context, _ []model.Attachment) (enrichment.ScanResult, error) {
	return s.result, s.err
}

type savedVerdict struct {
	msg     *model.Message
	verdict *model.Verdict
	anom    *anomaly.Score
}

type memRepo struct {
	mu      sync.Mutex
	saved   []savedVerdict
	saveErr error
}

func (r *memRepo) SaveVerdict(_ context.Context, msg *model.Message, verdict *model.Verdict, anom *anomaly.Score) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, savedVerdict{msg: msg, verdict: verdict, anom: anom})
	return nil
}

func (r *memRepo) GetDecision(_ context.Context, _ string) (*model.Verdict, error) {
	return nil, persistence.ErrDecisionNotFound
}

func (r *memRepo) ListAlerts(_ context.Context, _ string, _ int) ([]*persistence.Alert, error) {
	return nil, nil
}

func (r *memRepo) Close() {}

type recordingDispatcher struct {
	mu       sync.Mutex
	verdicts []*model.Verdict
	err      error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, verdict *model.Verdict) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.verdicts = append(d.verdicts, verdict)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []struct {
		subject string
		data    []byte
	}
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, struct {
		subject string
		data    []byte
	}{subject, data})
	return nil
}

func (p *fakePublisher) PublishJSON(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Publish(ctx, subject, data)
}

func (p *fakePublisher) Close() error { return nil }

type fixture struct {
	pipeline   *Pipeline
	repo       *memRepo
	dispatcher *recordingDispatcher
	events     *fakePublisher
	text       *stubTextScorer
	urls       *stubURLScorer
	scanner    *stubScanner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.New(slog.LevelError, "text")
	f := &fixture{
		repo:       &memRepo{},
		dispatcher: &recordingDispatcher{},
		events:     &fakePublisher{},
		text: &stubTextScorer{frag: model.Fragment{
			Kind: model.FragmentTextML, Score: 0.2, ModelVersion: "text-ml-v3", Available: true,
		}},
		urls: &stubURLScorer{frag: model.Fragment{
			Kind: model.FragmentURLML, Score: 0.1, ModelVersion: "url-ml-v2", Available: true,
		}},
		scanner: &stubScanner{result: enrichment.ScanResult{Available: true}},
	}
	f.pipeline = New(Config{
		Caller:     enrichment.NewCaller(breaker.NewRegistry(), breaker.DefaultConfig(), time.Second, log),
		TextScorer: f.text,
		URLScorer:  f.urls,
		Scanner:    f.scanner,
		Engine:     risk.NewEngine(risk.DefaultWeights()),
		Policies:   risk.NewPolicyStore(),
		Detector:   anomaly.NewEngine(anomaly.DefaultConfig()),
		Repository: f.repo,
		Dispatcher: f.dispatcher,
		Events:     f.events,
		Logger:     log,
	})
	return f
}

func testMessage() *model.Message {
	return model.NewMessage("tenant-1",
		"Quarterly report", "alice@partner.example", "bob@corp.example",
		"Please find the report attached.", nil, nil, model.PriorityNormal)
}

func TestPipeline_ProcessHappyPath(t *testing.T) {
	f := newFixture(t)
	msg := testMessage()

	verdict, err := f.pipeline.Process(context.Background(), msg)
	require.NoError(t, err)
	require.NotNil(t, verdict)

	assert.Equal(t, msg.ID, verdict.MessageID)
	assert.Equal(t, msg.TenantID, verdict.TenantID)
	// 0.35*0.2*100 + 0.35*0.1*100 = 10.5, truncated to 10.
	assert.Equal(t, 10, verdict.Score)
	assert.Equal(t, model.CategoryCold, verdict.Category)
	assert.Equal(t, model.DecisionAllow, verdict.Decision)
	assert.False(t, verdict.Degraded)

	require.Len(t, f.repo.saved, 1)
	assert.Same(t, verdict, f.repo.saved[0].verdict)
	require.Len(t, f.dispatcher.verdicts, 1)
	assert.Same(t, verdict, f.dispatcher.verdicts[0])
}

func TestPipeline_DegradedWhenCollaboratorFails(t *testing.T) {
	f := newFixture(t)
	f.text.err = errors.New("model unavailable")
	msg := testMessage()

	verdict, err := f.pipeline.Process(context.Background(), msg)
	require.NoError(t, err)

	assert.True(t, verdict.Degraded)
	assert.Contains(t, verdict.Explanations, "text_ml analysis unavailable, confidence reduced")
	// The URL fragment still contributes: 0.35*0.1*100 = 3.5 -> 3.
	assert.Equal(t, 3, verdict.Score)
}

func TestPipeline_UnscannedAttachmentsNoted(t *testing.T) {
	f := newFixture(t)
	f.scanner.result = enrichment.ScanResult{Available: false}
	msg := testMessage()
	msg.Attachments = []model.Attachment{{Filename: "invoice.pdf", Content: []byte("%PDF")}}

	verdict, err := f.pipeline.Process(context.Background(), msg)
	require.NoError(t, err)

	assert.Contains(t, verdict.Explanations, "attachments not scanned")
}

func TestPipeline_MalwareOverridesScore(t *testing.T) {
	f := newFixture(t)
	f.scanner.result = enrichment.ScanResult{
		Infected:  true,
		Available: true,
		Hits: []model.MalwareHit{
			{Attachment: "payload.exe", Engine: "clamav", Signature: "Win.Trojan.Agent"},
		},
	}
	msg := testMessage()
	msg.Attachments = []model.Attachment{{Filename: "payload.exe", Content: []byte("MZ")}}

	verdict, err := f.pipeline.Process(context.Background(), msg)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, verdict.Score, 90)
	assert.Equal(t, model.CategoryHot, verdict.Category)
	assert.Equal(t, model.DecisionReject, verdict.Decision)
	assert.Contains(t, verdict.Explanations, "malware detected in payload.exe: Win.Trojan.Agent")
}

func TestPipeline_PersistFailureStopsRun(t *testing.T) {
	f := newFixture(t)
	f.repo.saveErr = errors.New("connection reset")
	msg := testMessage()

	verdict, err := f.pipeline.Process(context.Background(), msg)
	require.Error(t, err)
	assert.Nil(t, verdict)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePersist, stageErr.Stage)
	assert.Empty(t, f.dispatcher.verdicts, "enforcement must not run after a persist failure")
}

func TestPipeline_EnforceFailureReturned(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("broker unavailable")
	msg := testMessage()

	_, err := f.pipeline.Process(context.Background(), msg)
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageEnforce, stageErr.Stage)
	assert.Len(t, f.repo.saved, 1, "verdict is persisted before enforcement")
}

func TestPipeline_AnomalyEscalationPublished(t *testing.T) {
	f := newFixture(t)
	// Push the ensemble past the extreme-risk pattern threshold.
	f.text.frag.Score = 1.0
	f.urls.frag.Score = 1.0
	f.scanner.result = enrichment.ScanResult{
		Infected:  true,
		Available: true,
		Hits:      []model.MalwareHit{{Attachment: "a.exe", Signature: "Eicar-Test"}},
	}
	msg := testMessage()
	msg.Attachments = []model.Attachment{{Filename: "a.exe", Content: []byte("X5O")}}

	verdict, err := f.pipeline.Process(context.Background(), msg)
	require.NoError(t, err)
	assert.Greater(t, verdict.Score, 85)

	require.Len(t, f.events.published, 1)
	assert.Equal(t, messaging.SubjectAnomaliesEscalated, f.events.published[0].subject)

	var event struct {
		MessageID string         `json:"message_id"`
		TenantID  string         `json:"tenant_id"`
		Anomaly   *anomaly.Score `json:"anomaly"`
	}
	require.NoError(t, json.Unmarshal(f.events.published[0].data, &event))
	assert.Equal(t, msg.ID, event.MessageID)
	assert.Equal(t, anomaly.TypeExtremeRisk, event.Anomaly.Type)

	require.Len(t, f.repo.saved, 1)
	assert.NotNil(t, f.repo.saved[0].anom, "escalated anomaly rides along to persistence")
}

func TestPipeline_TerminalVerdict(t *testing.T) {
	f := newFixture(t)
	msg := testMessage()

	verdict := f.pipeline.TerminalVerdict(msg)
	assert.Equal(t, msg.ID, verdict.MessageID)
	assert.Equal(t, 0, verdict.Score)
	assert.Equal(t, model.DecisionAllow, verdict.Decision)
	assert.Equal(t, model.CategoryCold, verdict.Category)
	assert.True(t, verdict.Degraded)
	assert.Equal(t, []string{"processing failed, default decision applied"}, verdict.Explanations)
}

func TestPipeline_TerminalVerdictQuarantine(t *testing.T) {
	f := newFixture(t)
	f.pipeline.terminalDecision = model.DecisionQuarantine
	msg := testMessage()

	verdict := f.pipeline.TerminalVerdict(msg)
	assert.Equal(t, model.DecisionQuarantine, verdict.Decision)
	assert.Equal(t, model.CategoryWarm, verdict.Category)
}

func TestPipeline_RecordTerminalPersists(t *testing.T) {
	f := newFixture(t)
	msg := testMessage()

	verdict := f.pipeline.RecordTerminal(context.Background(), msg)
	require.NotNil(t, verdict)
	require.Len(t, f.repo.saved, 1)
	assert.Same(t, verdict, f.repo.saved[0].verdict)
}
