package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/mock"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/store"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/pkg/anthropic"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/pkg/jina"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/pkg/perplexity"
)

// memStore is an in-memory store.Store with the same write guards as the
// real drivers, plus fault injection.
type memStore struct {
	mu       sync.Mutex
	jobs     map[string]*model.Job
	analyses []model.AnalysisRecord
	progress map[string][]int

	createErrs []error // popped per CreateJob call
	updateErrs []error // popped per UpdateJob call
	getErr     error
	dropCreate bool // CreateJob reports success without storing
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     make(map[string]*model.Job),
		progress: make(map[string][]int),
	}
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (m *memStore) CreateJob(_ context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := pop(&m.createErrs); err != nil {
		return err
	}
	if m.dropCreate {
		m.dropCreate = false
		return nil
	}
	if _, ok := m.jobs[job.ID]; ok {
		return eris.Wrapf(store.ErrJobExists, "mem: job %s", job.ID)
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) guarded(id string) (*model.Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrJobNotFound, "mem: job %s", id)
	}
	if j.Status.IsTerminal() {
		return nil, eris.Wrapf(store.ErrJobFinalized, "mem: job %s", id)
	}
	return j, nil
}

func (m *memStore) UpdateJob(_ context.Context, id string, u model.JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := pop(&m.updateErrs); err != nil {
		return err
	}
	j, err := m.guarded(id)
	if err != nil {
		return err
	}
	if u.Progress < j.Progress {
		return eris.Wrapf(store.ErrProgressRegressed, "mem: job %s", id)
	}
	j.Apply(u, time.Now())
	m.progress[id] = append(m.progress[id], u.Progress)
	return nil
}

func (m *memStore) CompleteJob(_ context.Context, id string, a *model.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.guarded(id)
	if err != nil {
		return err
	}
	j.Complete(a, time.Now())
	m.progress[id] = append(m.progress[id], 100)
	return nil
}

func (m *memStore) FailJob(_ context.Context, id string, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.guarded(id)
	if err != nil {
		return err
	}
	j.Fail(msg, time.Now())
	m.progress[id] = append(m.progress[id], 0)
	return nil
}

func (m *memStore) GetJob(_ context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrJobNotFound, "mem: job %s", id)
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) ListJobs(_ context.Context, _ store.JobFilter) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (m *memStore) SaveAnalysis(_ context.Context, rec model.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses = append(m.analyses, rec)
	return nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

func (m *memStore) job(id string) *model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

func (m *memStore) progressOf(id string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.progress[id]...)
}

func (m *memStore) savedAnalyses() []model.AnalysisRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AnalysisRecord(nil), m.analyses...)
}

// mockPerplexity implements perplexity.Client.
type mockPerplexity struct{ mock.Mock }

func (m *mockPerplexity) ChatCompletion(ctx context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*perplexity.ChatCompletionResponse), args.Error(1)
}

// mockJina implements jina.Client.
type mockJina struct{ mock.Mock }

func (m *mockJina) Search(ctx context.Context, query string, opts ...jina.SearchOption) (*jina.SearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.SearchResponse), args.Error(1)
}

// mockAnthropic implements anthropic.Client.
type mockAnthropic struct{ mock.Mock }

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:      "msg_1",
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

// sampleBundle returns research with three seller and two target sources.
func sampleBundle() *model.EvidenceBundle {
	return &model.EvidenceBundle{
		Seller: model.RoleEvidence{
			Company: "Acme Corp",
			Sources: []model.Source{
				{URL: "https://a.example/1", Title: "Acme 10-K", Type: model.SourceTypeFinancial},
				{URL: "https://a.example/2", Type: model.SourceTypeMarket},
				{URL: "https://a.example/3", Title: "Acme launch", Type: model.SourceTypeNews},
			},
			News:       []model.NewsItem{{Source: "https://a.example/3", Title: "Acme launch"}},
			Financials: map[string]any{"revenue": "$2B"},
		},
		Target: model.RoleEvidence{
			Company: "Globex Inc",
			Sources: []model.Source{
				{URL: "https://g.example/1", Title: "Globex profile", Type: model.SourceTypeResearch},
				{URL: "https://g.example/2", Title: "Globex stack", Type: model.SourceTypeTechnical},
			},
			MarketPosition: map[string]any{},
		},
	}
}
