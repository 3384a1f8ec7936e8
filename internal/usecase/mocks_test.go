// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"multimodal-agent/internal/domain"
	"multimodal-agent/internal/domain/model"
	"multimodal-agent/internal/domain/ports/adapter"
	"multimodal-agent/internal/domain/ports/repository"
)

// memJobRepo is a small in-memory implementation used by unit tests. It
// honors the same claim semantics as the real store: stage work only lands
// when the caller still holds the lease.
type memJobRepo struct {
	mu    sync.Mutex
	store map[string]*model.Job

	leaseToken map[string]string
	leaseUntil map[string]time.Time
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{
		store:      make(map[string]*model.Job),
		leaseToken: make(map[string]string),
		leaseUntil: make(map[string]time.Time),
	}
}

func (m *memJobRepo) Create(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := cloneJob(job)
	m.store[job.ID] = cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *memJobRepo) ClaimStage(ctx context.Context, id string, expected model.JobStatus, token string, lease time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status != expected {
		return domain.ErrClaimLost
	}
	if cur, held := m.leaseToken[id]; held && cur != "" && time.Now().Before(m.leaseUntil[id]) {
		return domain.ErrClaimLost
	}
	m.leaseToken[id] = token
	m.leaseUntil[id] = time.Now().Add(lease)
	return nil
}

func (m *memJobRepo) FinishStage(ctx context.Context, id string, token string, fin repository.StageFinish) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.leaseToken[id] != token {
		return domain.ErrClaimLost
	}
	j.Status = fin.Next
	j.StageHistory = append(j.StageHistory, fin.Record)
	if j.Artifacts == nil {
		j.Artifacts = map[string]string{}
	}
	for k, v := range fin.Artifacts {
		if _, exists := j.Artifacts[k]; exists {
			return fmt.Errorf("artifact key %q overwritten", k)
		}
		j.Artifacts[k] = v
	}
	if fin.CodegenAttempts >= 0 {
		j.CodegenAttempts = fin.CodegenAttempts
	}
	j.Error = fin.Error
	j.UpdatedAt = time.Now()
	delete(m.leaseToken, id)
	delete(m.leaseUntil, id)
	return nil
}

func (m *memJobRepo) ReleaseClaim(ctx context.Context, id string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leaseToken[id] != token {
		return domain.ErrClaimLost
	}
	delete(m.leaseToken, id)
	delete(m.leaseUntil, id)
	return nil
}

func (m *memJobRepo) RequestCancel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !j.IsTerminal() {
		j.CancelRequested = true
	}
	return nil
}

func cloneJob(j *model.Job) *model.Job {
	cp := *j
	cp.StageHistory = append([]model.StageRecord(nil), j.StageHistory...)
	cp.Artifacts = map[string]string{}
	for k, v := range j.Artifacts {
		cp.Artifacts[k] = v
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	return &cp
}

// memArtifacts mirrors the write-once contract of the real store.
type memArtifacts struct {
	mu      sync.Mutex
	written map[string]string
	blobs   map[string][]byte
	seq     int
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{written: map[string]string{}, blobs: map[string][]byte{}}
}

func (m *memArtifacts) Put(ctx context.Context, jobID, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pair := jobID + "/" + key
	if _, ok := m.written[pair]; ok {
		return "", domain.ErrConflict
	}
	m.seq++
	ref := fmt.Sprintf("ref-%d-%s", m.seq, key)
	m.written[pair] = ref
	m.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (m *memArtifacts) Resolve(ctx context.Context, jobID, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.written[jobID+"/"+key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return ref, nil
}

func (m *memArtifacts) Get(ctx context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

// scriptedAI returns canned responses per role, in order. A response that is
// an error plays as that error.
type scriptedAI struct {
	mu      sync.Mutex
	scripts map[adapter.Role][]any // string or error
	calls   map[adapter.Role]int
	prompts map[adapter.Role][]string
}

func newScriptedAI() *scriptedAI {
	return &scriptedAI{
		scripts: map[adapter.Role][]any{},
		calls:   map[adapter.Role]int{},
		prompts: map[adapter.Role][]string{},
	}
}

func (s *scriptedAI) on(role adapter.Role, responses ...any) {
	s.scripts[role] = append(s.scripts[role], responses...)
}

func (s *scriptedAI) Infer(ctx context.Context, role adapter.Role, req adapter.InferRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[role]++
	s.prompts[role] = append(s.prompts[role], req.Prompt)
	script := s.scripts[role]
	if len(script) == 0 {
		return "", fmt.Errorf("unscripted call for role %s", role)
	}
	next := script[0]
	if len(script) > 1 {
		s.scripts[role] = script[1:]
	}
	if err, ok := next.(error); ok {
		return "", err
	}
	return next.(string), nil
}

func (s *scriptedAI) callCount(role adapter.Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[role]
}

func (s *scriptedAI) promptAt(role adapter.Role, i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.prompts[role]) {
		return ""
	}
	return s.prompts[role][i]
}

// okSyntax accepts everything; badSyntax rejects the given sources.
type okSyntax struct{}

func (okSyntax) Check(ctx context.Context, source string) error { return nil }

type fakeCritic struct {
	// failOn marks substrings whose presence yields a blocking security
	// finding, mimicking the real critic's verdict shape.
	failOn []string
}

func (f *fakeCritic) Validate(ctx context.Context, source string) (model.ValidationResult, error) {
	var findings []model.Finding
	for _, bad := range f.failOn {
		if strings.Contains(source, bad) {
			findings = append(findings, model.Finding{
				Tool:     model.FindingToolSecurity,
				Severity: model.SeverityError,
				Message:  "dangerous call: " + bad,
				Location: "1",
			})
		}
	}
	return model.ValidationResult{Passed: len(findings) == 0, Findings: findings}, nil
}

type fakeSandbox struct {
	mu     sync.Mutex
	result model.ExecutionResult
	runs   int
}

func (f *fakeSandbox) Execute(ctx context.Context, source string, limits model.ExecLimits) (model.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return f.result, nil
}

func (f *fakeSandbox) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

type memQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *memQueue) Enqueue(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, jobID)
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return "", context.DeadlineExceeded
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, nil
}

func (q *memQueue) Ack(ctx context.Context, jobID string) error { return nil }

func (q *memQueue) RequeueStale(ctx context.Context) (int, error) { return 0, nil }

func (q *memQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}
