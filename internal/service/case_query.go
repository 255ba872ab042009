package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docassist/docassist/internal/domain"
	"github.com/docassist/docassist/internal/logger"
	"github.com/docassist/docassist/internal/similarity"
	"github.com/google/uuid"
)

const (
	outcomeRecovered   = "Recovered"
	outcomeInTreatment = "In Treatment"

	noSimilarCasesMessage = "I couldn't find any similar cases matching your query. " +
		"This might be a unique case that requires careful consideration."
)

// ChatQuery is a doctor's free-text question. Context is echoed back unchanged.
type ChatQuery struct {
	Message string  `json:"message" binding:"required"`
	Context *string `json:"context"`
}

// SimilarCase is one ranked case as shown to the doctor.
type SimilarCase struct {
	CaseNumber            int     `json:"case_number"`
	VisitID               string  `json:"visit_id"`
	SimilarityScore       float64 `json:"similarity_score"`
	PatientAge            int     `json:"patient_age"`
	PatientGender         string  `json:"patient_gender"`
	ClinicalObservations  string  `json:"clinical_observations"`
	PrescribedMedications string  `json:"prescribed_medications"`
	Outcome               string  `json:"outcome"`
}

// ChatResponse answers a ChatQuery.
type ChatResponse struct {
	Response     string        `json:"response"`
	SimilarCases []SimilarCase `json:"similar_cases"`
	Query        string        `json:"query"`
	Context      *string       `json:"context"`
}

// SimilarVisitsResponse lists cases similar to a stored visit.
type SimilarVisitsResponse struct {
	VisitID      string        `json:"visit_id"`
	SimilarCases []SimilarCase `json:"similar_cases"`
}

// CaseQueryConfig tunes ranking.
type CaseQueryConfig struct {
	TopK          int
	ChatTopK      int
	MinSimilarity float64
}

// CaseQueryService answers similarity questions against the embedded visit corpus.
type CaseQueryService struct {
	provider EmbeddingProvider
	corpus   CorpusReader
	visits   VisitStore
	cfg      CaseQueryConfig
	logger   *logger.Logger
}

// NewCaseQueryService creates the query side. corpus is either the visit
// store itself or an external vector index holding the same items.
func NewCaseQueryService(
	provider EmbeddingProvider,
	corpus CorpusReader,
	visits VisitStore,
	cfg CaseQueryConfig,
	log *logger.Logger,
) *CaseQueryService {
	if cfg.TopK <= 0 {
		cfg.TopK = similarity.DefaultTopK
	}
	if cfg.ChatTopK <= 0 {
		cfg.ChatTopK = 3
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &CaseQueryService{
		provider: provider,
		corpus:   corpus,
		visits:   visits,
		cfg:      cfg,
		logger:   log,
	}
}

func (s *CaseQueryService) log(ctx context.Context) *logger.Logger {
	if ctx != nil {
		return logger.FromContext(ctx)
	}
	return s.logger
}

// AnswerQuery ranks the corpus against the raw query text and renders the
// answer. It never fails: provider or store errors produce the same answer
// as an empty result. A nil query gets the empty answer without ranking.
// Parameters:
//   - ctx: request context.
//   - query: the doctor's question.
//   - topK: maximum cases; non-positive uses the configured chat default.
// Returns:
//   - *ChatResponse: narrative plus structured cases.
func (s *CaseQueryService) AnswerQuery(ctx context.Context, query *ChatQuery, topK int) *ChatResponse {
	ctx = logger.SetQueryID(ctx, uuid.New().String())
	if query == nil {
		s.log(ctx).Warn("Similarity query without a message, answering with no cases")
		return &ChatResponse{Response: noSimilarCasesMessage, SimilarCases: []SimilarCase{}}
	}
	if topK <= 0 {
		topK = s.cfg.ChatTopK
	}
	start := time.Now()

	matches, err := s.rankQuery(ctx, query.Message, topK)
	if err != nil {
		s.log(ctx).WithFields(logger.Fields{
			"failure_kind": domain.FailureKind(err),
		}).WithError(err).Error("Similarity query failed, answering with no cases")
		matches = nil
	}

	cases := formatCases(matches)
	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldCount:      len(cases),
	}).Info(ctx, "Similarity query answered")

	return &ChatResponse{
		Response:     renderNarrative(query.Message, cases),
		SimilarCases: cases,
		Query:        query.Message,
		Context:      query.Context,
	}
}

func (s *CaseQueryService) rankQuery(ctx context.Context, text string, topK int) ([]similarity.Match[domain.CorpusItem], error) {
	if err := s.provider.Initialize(ctx); err != nil {
		return nil, err
	}
	vector, err := s.provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.rank(ctx, vector, domain.CorpusFilter{}, topK)
}

func (s *CaseQueryService) rank(ctx context.Context, vector []float32, filter domain.CorpusFilter, topK int) ([]similarity.Match[domain.CorpusItem], error) {
	filter.Model = s.provider.Model()
	filter.Dim = s.provider.Dimension()

	items, err := s.corpus.ListWithEmbedding(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	candidates := make([]similarity.Candidate[domain.CorpusItem], 0, len(items))
	for _, item := range items {
		candidates = append(candidates, similarity.Candidate[domain.CorpusItem]{Item: item, Vector: item.Vector})
	}
	return similarity.Rank(vector, candidates, topK, s.cfg.MinSimilarity), nil
}

// SimilarToVisit ranks the corpus against a stored visit, excluding the visit itself.
// The stored vector is reused when present; otherwise the visit text is embedded on the fly.
// Parameters:
//   - ctx: request context.
//   - visitID: reference visit.
//   - topK: maximum cases; non-positive uses the configured default.
// Returns:
//   - *SimilarVisitsResponse: ranked cases, possibly empty.
//   - error: domain.ErrNotFound for an unknown visit.
func (s *CaseQueryService) SimilarToVisit(ctx context.Context, visitID string, topK int) (*SimilarVisitsResponse, error) {
	ctx = logger.SetVisitID(ctx, visitID)
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	resp := &SimilarVisitsResponse{VisitID: visitID, SimilarCases: []SimilarCase{}}

	vector, err := s.visitVector(ctx, visit)
	if err != nil {
		s.log(ctx).WithError(err).Error("Failed to obtain visit vector, returning no cases")
		return resp, nil
	}

	matches, err := s.rank(ctx, vector, domain.CorpusFilter{ExcludeVisitID: visitID}, topK)
	if err != nil {
		s.log(ctx).WithError(err).Error("Similarity ranking failed, returning no cases")
		return resp, nil
	}
	resp.SimilarCases = formatCases(matches)
	return resp, nil
}

func (s *CaseQueryService) visitVector(ctx context.Context, visit *domain.Visit) ([]float32, error) {
	if visit.HasEmbedding() && visit.EmbeddingModel == s.provider.Model() && visit.EmbeddingDim == s.provider.Dimension() {
		return visit.Embedding, nil
	}
	if err := s.provider.Initialize(ctx); err != nil {
		return nil, err
	}
	return s.provider.Embed(ctx, EmbeddingInput(visit, visit.Patient))
}

func outcome(v domain.Vitals) string {
	if v.Recovered() {
		return outcomeRecovered
	}
	return outcomeInTreatment
}

func formatCases(matches []similarity.Match[domain.CorpusItem]) []SimilarCase {
	cases := make([]SimilarCase, 0, len(matches))
	for i, m := range matches {
		cases = append(cases, SimilarCase{
			CaseNumber:            i + 1,
			VisitID:               m.Item.VisitID,
			SimilarityScore:       similarity.RoundScore(m.Score, 3),
			PatientAge:            m.Item.PatientAge,
			PatientGender:         m.Item.PatientGender,
			ClinicalObservations:  m.Item.DoctorNoticed,
			PrescribedMedications: m.Item.PrescribedMedications,
			Outcome:               outcome(m.Item.Vitals),
		})
	}
	return cases
}

func renderNarrative(query string, cases []SimilarCase) string {
	if len(cases) == 0 {
		return noSimilarCasesMessage
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on your query '%s', I found %d similar cases:\n\n", query, len(cases))
	for _, c := range cases {
		fmt.Fprintf(&b, "Case %d (Similarity: %.3f):\n", c.CaseNumber, c.SimilarityScore)
		fmt.Fprintf(&b, "- Patient: %dyr %s\n", c.PatientAge, c.PatientGender)
		fmt.Fprintf(&b, "- Observations: %s\n", c.ClinicalObservations)
		fmt.Fprintf(&b, "- Treatment: %s\n", c.PrescribedMedications)
		fmt.Fprintf(&b, "- Outcome: %s\n\n", c.Outcome)
	}
	return b.String()
}
