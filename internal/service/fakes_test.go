package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/docassist/docassist/internal/domain"
)

// memVisitStore is an in-memory VisitStore with the same write-once rules as the repository.
type memVisitStore struct {
	mu       sync.Mutex
	visits   map[string]*domain.Visit
	patients map[string]*domain.Patient
	createFn func(v *domain.Visit) error
	listErr  error
}

func newMemVisitStore() *memVisitStore {
	return &memVisitStore{visits: map[string]*domain.Visit{}, patients: map[string]*domain.Patient{}}
}

func (s *memVisitStore) Create(_ context.Context, v *domain.Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createFn != nil {
		if err := s.createFn(v); err != nil {
			return err
		}
	}
	cp := *v
	s.visits[v.ID] = &cp
	return nil
}

func (s *memVisitStore) GetByID(_ context.Context, id string) (*domain.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *v
	cp.Patient = s.patients[v.PatientID]
	return &cp, nil
}

func (s *memVisitStore) ExistsBySourceRef(_ context.Context, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.visits {
		if v.SourceRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (s *memVisitStore) ListByDoctor(_ context.Context, doctorID string, skip, limit int) ([]domain.Visit, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Visit
	for _, v := range s.visits {
		if v.DoctorID == doctorID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	total := int64(len(out))
	if skip >= len(out) {
		return []domain.Visit{}, total, nil
	}
	out = out[skip:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (s *memVisitStore) ListByEmbeddingStatus(_ context.Context, statuses []domain.EmbeddingStatus, limit int) ([]domain.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[domain.EmbeddingStatus]bool{}
	for _, st := range statuses {
		want[st] = true
	}
	var out []domain.Visit
	for _, v := range s.visits {
		if want[v.EmbeddingStatus] {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memVisitStore) CountByEmbeddingStatus(_ context.Context) (map[domain.EmbeddingStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[domain.EmbeddingStatus]int64{}
	for _, v := range s.visits {
		counts[v.EmbeddingStatus]++
	}
	return counts, nil
}

func (s *memVisitStore) PatchEmbedding(_ context.Context, id string, vector []float32, model string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(vector) != dim {
		return domain.ErrDimensionMismatch
	}
	v, ok := s.visits[id]
	if !ok {
		return domain.ErrNotFound
	}
	if v.Embedding != nil {
		return domain.ErrEmbeddingAlreadySet
	}
	now := time.Now()
	v.Embedding = vector
	v.EmbeddingModel = model
	v.EmbeddingDim = dim
	v.EmbeddingStatus = domain.EmbeddingPresent
	v.EmbeddingError = ""
	v.EmbeddedAt = &now
	return nil
}

func (s *memVisitStore) MarkEmbeddingStatus(_ context.Context, id string, status domain.EmbeddingStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[id]
	if !ok || v.Embedding != nil {
		return nil
	}
	v.EmbeddingStatus = status
	v.EmbeddingError = reason
	return nil
}

func (s *memVisitStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visits[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.visits, id)
	return nil
}

func (s *memVisitStore) ListWithEmbedding(_ context.Context, filter domain.CorpusFilter) ([]domain.CorpusItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var items []domain.CorpusItem
	for _, v := range s.visits {
		if v.Embedding == nil || v.EmbeddingModel != filter.Model || v.EmbeddingDim != filter.Dim || v.ID == filter.ExcludeVisitID {
			continue
		}
		cp := *v
		cp.Patient = s.patients[v.PatientID]
		items = append(items, domain.CorpusFromVisit(&cp))
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.Before(items[j].Date)
		}
		return items[i].VisitID < items[j].VisitID
	})
	return items, nil
}

func (s *memVisitStore) get(id string) domain.Visit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.visits[id]
}

// memPatientStore shares its patients with a memVisitStore so GetByID can preload them.
type memPatientStore struct {
	visits *memVisitStore
}

func (p *memPatientStore) FindOrCreateByPhone(_ context.Context, patient *domain.Patient) (*domain.Patient, bool, error) {
	p.visits.mu.Lock()
	defer p.visits.mu.Unlock()
	for _, existing := range p.visits.patients {
		if existing.Phone == patient.Phone {
			return existing, false, nil
		}
	}
	cp := *patient
	p.visits.patients[cp.ID] = &cp
	return &cp, true, nil
}

type memDoctorStore struct {
	mu     sync.Mutex
	counts map[string]int
	byID   map[string]*domain.Doctor
}

func newMemDoctorStore() *memDoctorStore {
	return &memDoctorStore{counts: map[string]int{}, byID: map[string]*domain.Doctor{}}
}

func (d *memDoctorStore) IncrementTotalPatients(_ context.Context, doctorID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts[doctorID]++
	return nil
}

// Upsert keeps the existing ID on a phone conflict, like the repository.
func (d *memDoctorStore) Upsert(_ context.Context, doc *domain.Doctor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.byID {
		if existing.Phone == doc.Phone {
			existing.Name = doc.Name
			return nil
		}
	}
	cp := *doc
	d.byID[cp.ID] = &cp
	return nil
}

func (d *memDoctorStore) GetByPhone(_ context.Context, phone string) (*domain.Doctor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.byID {
		if existing.Phone == phone {
			cp := *existing
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]domain.IngestJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: map[string]domain.IngestJob{}}
}

func (j *memJobStore) Create(_ context.Context, job *domain.IngestJob) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jobs[job.ID] = *job
	return nil
}

func (j *memJobStore) Update(_ context.Context, job *domain.IngestJob) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jobs[job.ID] = *job
	return nil
}

func (j *memJobStore) get(id string) domain.IngestJob {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jobs[id]
}

// fakeProvider returns vectors from embedFn; nil embedFn fails every call.
type fakeProvider struct {
	mu      sync.Mutex
	dim     int
	model   string
	initErr error
	ready   bool
	calls   int
	inputs  []string
	embedFn func(text string) ([]float32, error)
}

func (p *fakeProvider) Initialize(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initErr != nil {
		return p.initErr
	}
	p.ready = true
	return nil
}

func (p *fakeProvider) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.calls++
	p.inputs = append(p.inputs, text)
	fn := p.embedFn
	p.mu.Unlock()
	if fn == nil {
		return nil, domain.ErrProviderUnavailable
	}
	return fn(text)
}

func (p *fakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.Embed(ctx, text)
}

func (p *fakeProvider) Dimension() int { return p.dim }
func (p *fakeProvider) Model() string  { return p.model }
func (p *fakeProvider) Close() error   { return nil }

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func constantVector(vec []float32) func(string) ([]float32, error) {
	return func(string) ([]float32, error) { return vec, nil }
}

type fakeMirror struct {
	mu      sync.Mutex
	upserts []string
	deletes []string
	err     error
}

func (m *fakeMirror) Upsert(_ context.Context, item domain.CorpusItem, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, item.VisitID)
	return m.err
}

func (m *fakeMirror) Delete(_ context.Context, visitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, visitID)
	return m.err
}
