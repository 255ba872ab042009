package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/docassist/docassist/internal/domain"
	"github.com/docassist/docassist/internal/logger"
	"github.com/docassist/docassist/internal/storage"
)

// CorpusRecord is one JSONL line of a corpus export.
type CorpusRecord struct {
	VisitID        string        `json:"visit_id"`
	Date           time.Time     `json:"date"`
	EmbeddingModel string        `json:"embedding_model"`
	EmbeddingDim   int           `json:"embedding_dim"`
	Text           string        `json:"text"`
	Vitals         domain.Vitals `json:"vitals"`
	Embedding      []float32     `json:"embedding"`
}

// ExportResult describes a finished export.
type ExportResult struct {
	Records  int    `json:"records"`
	Bytes    int64  `json:"bytes"`
	Location string `json:"location,omitempty"`
}

// ExportService snapshots the ranking corpus for offline evaluation.
type ExportService struct {
	corpus CorpusReader
	store  storage.ObjectStorage
	prefix string
	now    func() time.Time
}

// NewExportService creates an export service. store may be nil, in which case
// only WriteCorpus is usable.
func NewExportService(corpus CorpusReader, store storage.ObjectStorage, prefix string) *ExportService {
	return &ExportService{corpus: corpus, store: store, prefix: prefix, now: time.Now}
}

// WriteCorpus writes every visit embedded with model and dim to w as JSONL,
// in corpus order.
func (s *ExportService) WriteCorpus(ctx context.Context, w io.Writer, model string, dim int) (int, error) {
	items, err := s.corpus.ListWithEmbedding(ctx, domain.CorpusFilter{Model: model, Dim: dim})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	enc := json.NewEncoder(w)
	for _, item := range items {
		visit := &domain.Visit{
			Vitals:        item.Vitals,
			ClinicalTests: item.ClinicalTests,
			DoctorNoticed: item.DoctorNoticed,
		}
		patient := &domain.Patient{Age: item.PatientAge, Gender: item.PatientGender}
		record := CorpusRecord{
			VisitID:        item.VisitID,
			Date:           item.Date,
			EmbeddingModel: model,
			EmbeddingDim:   dim,
			Text:           EmbeddingInput(visit, patient),
			Vitals:         item.Vitals,
			Embedding:      item.Vector,
		}
		if err := enc.Encode(record); err != nil {
			return 0, fmt.Errorf("failed to encode record %s: %w", item.VisitID, err)
		}
	}
	return len(items), nil
}

// ExportCorpus uploads a JSONL snapshot to object storage under
// <prefix>/corpus-<timestamp>.jsonl.
func (s *ExportService) ExportCorpus(ctx context.Context, model string, dim int) (*ExportResult, error) {
	if s.store == nil {
		return nil, fmt.Errorf("object storage is not configured")
	}

	var buf bytes.Buffer
	n, err := s.WriteCorpus(ctx, &buf, model, dim)
	if err != nil {
		return nil, err
	}

	if err := s.store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	key := path.Join(s.prefix, fmt.Sprintf("corpus-%s.jsonl", s.now().UTC().Format("20060102T150405Z")))
	size := int64(buf.Len())
	if err := s.store.Upload(ctx, key, &buf, size, "application/x-ndjson"); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	result := &ExportResult{Records: n, Bytes: size, Location: s.store.Location(key)}
	logger.With(logger.Fields{
		logger.FieldCount: n,
		"location":        result.Location,
	}).Info(ctx, "Corpus exported")
	return result, nil
}

// ReadExport copies a previous export stored under key to w.
// Returns domain.ErrNotFound when no such object exists.
func (s *ExportService) ReadExport(ctx context.Context, key string, w io.Writer) (int64, error) {
	if s.store == nil {
		return 0, fmt.Errorf("object storage is not configured")
	}
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	if !exists {
		return 0, fmt.Errorf("export %s: %w", key, domain.ErrNotFound)
	}

	body, err := s.store.Download(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	defer body.Close()
	return io.Copy(w, body)
}
