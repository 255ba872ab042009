package service

import (
	"context"
	"testing"
	"time"

	"github.com/docassist/docassist/internal/config"
	"github.com/docassist/docassist/internal/domain"
	"github.com/docassist/docassist/internal/source"
	"github.com/docassist/docassist/internal/source/samples"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ingestFixture struct {
	*visitFixture
	jobs   *memJobStore
	ingest *IngestService
}

func newIngestFixture(writeMode string) *ingestFixture {
	vf := newVisitFixture(writeMode, 64)
	jobs := newMemJobStore()
	ingest := NewIngestService(vf.svc, vf.visits, vf.doctors, jobs, vf.worker, quietLogger(), &IngestConfig{Workers: 3, BatchSize: 2})
	fixed := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	ingest.now = func() time.Time { return fixed }
	return &ingestFixture{visitFixture: vf, jobs: jobs, ingest: ingest}
}

func TestIngestSamples(t *testing.T) {
	f := newIngestFixture(config.WriteModeSync)
	ctx := context.Background()

	stats, err := f.ingest.IngestFromSource(ctx, samples.NewAdapter(), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, stats.TotalItems)
	assert.EqualValues(t, 5, stats.ProcessedItems)
	assert.EqualValues(t, 0, stats.FailedItems)
	assert.EqualValues(t, 0, stats.SkippedItems)

	counts, err := f.visits.CountByEmbeddingStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, counts[domain.EmbeddingPresent])
	assert.Len(t, f.doctors.byID, 3)

	job := f.jobs.get(stats.JobID)
	assert.Equal(t, domain.JobKindImport, job.Kind)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, "samples", job.SourceID)
	assert.Equal(t, 5, job.ProcessedItems)

	// Re-running the import skips everything already stored.
	again, err := f.ingest.IngestFromSource(ctx, samples.NewAdapter(), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, again.SkippedItems)
	assert.Len(t, f.visits.visits, 5)
}

func TestIngestBackdatesVisits(t *testing.T) {
	f := newIngestFixture(config.WriteModeSync)
	ctx := context.Background()

	src := staticSource{items: []source.VisitItem{{
		SourceID: "one",
		Doctor:   source.DoctorItem{Name: "Dr. Who", Phone: "doc-x"},
		Patient:  source.PatientItem{Name: "Amy", Age: 30, Gender: "Female", Phone: "555-1"},
		DaysAgo:  3,
	}}}
	_, err := f.ingest.IngestFromSource(ctx, src, 0)
	require.NoError(t, err)

	for _, v := range f.visits.visits {
		assert.True(t, v.Date.Equal(time.Date(2025, 6, 7, 12, 0, 0, 0, time.UTC)))
		assert.Equal(t, "static:one", v.SourceRef)
	}
}

func TestIngestRespectsLimit(t *testing.T) {
	f := newIngestFixture(config.WriteModeSync)
	stats, err := f.ingest.IngestFromSource(context.Background(), samples.NewAdapter(), 3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalItems)
	assert.Len(t, f.visits.visits, 3)
}

func TestBackfillRetriesFailedVisits(t *testing.T) {
	f := newIngestFixture(config.WriteModeSync)
	ctx := context.Background()

	f.provider.embedFn = nil
	_, err := f.ingest.IngestFromSource(ctx, samples.NewAdapter(), 0)
	require.NoError(t, err)
	counts, _ := f.visits.CountByEmbeddingStatus(ctx)
	assert.EqualValues(t, 5, counts[domain.EmbeddingFailed])

	f.provider.embedFn = constantVector([]float32{0, 1, 0})
	stats, err := f.ingest.Backfill(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.ProcessedItems)
	assert.EqualValues(t, 0, stats.FailedItems)

	stats, err = f.ingest.Backfill(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalItems)

	counts, _ = f.visits.CountByEmbeddingStatus(ctx)
	assert.EqualValues(t, 5, counts[domain.EmbeddingPresent])
	assert.Equal(t, domain.JobKindBackfill, f.jobs.get(stats.JobID).Kind)
}

func TestBackfillRecordsFailures(t *testing.T) {
	f := newIngestFixture(config.WriteModeAsync)
	ctx := context.Background()
	_, err := f.ingest.IngestFromSource(ctx, samples.NewAdapter(), 2)
	require.NoError(t, err)

	f.provider.embedFn = nil
	stats, err := f.ingest.Backfill(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.FailedItems)

	job := f.jobs.get(stats.JobID)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorLog, "provider_unavailable")
}

type staticSource struct {
	items []source.VisitItem
}

func (s staticSource) GetSourceID() string    { return "static" }
func (s staticSource) GetDisplayName() string { return "Static" }
func (s staticSource) FetchBatch(_ context.Context, cursor string, limit int) ([]source.VisitItem, string, error) {
	return source.Page(s.items, cursor, limit)
}
