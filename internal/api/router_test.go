package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/docassist/docassist/internal/api/handler"
	"github.com/docassist/docassist/internal/api/middleware"
	"github.com/docassist/docassist/internal/config"
	"github.com/docassist/docassist/internal/domain"
	"github.com/docassist/docassist/internal/logger"
	"github.com/docassist/docassist/internal/repository"
	"github.com/docassist/docassist/internal/service"
	"github.com/docassist/docassist/internal/source"
	"github.com/docassist/docassist/internal/source/samples"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testServer struct {
	router  *gin.Engine
	visits  *repository.VisitRepository
	doctors *repository.DoctorRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repository.Migrate(db))

	log := logger.New(&logger.Config{Level: "error", Format: "text", Output: io.Discard})
	visits := repository.NewVisitRepository(db)
	doctors := repository.NewDoctorRepository(db)
	jobs := repository.NewJobRepository(db)

	provider, err := service.NewEmbeddingProvider(&config.EmbeddingConfig{Provider: "local", Model: "local-hash", Dimensions: 64})
	require.NoError(t, err)
	require.NoError(t, provider.Initialize(context.Background()))

	worker := service.NewEmbeddingWorker(visits, provider, nil, log, &service.EmbeddingWorkerConfig{Workers: 1, QueueSize: 8})
	visitSvc := service.NewVisitService(visits, repository.NewPatientRepository(db), doctors, worker, nil, config.WriteModeSync, log)
	querySvc := service.NewCaseQueryService(provider, visits, visits, service.CaseQueryConfig{TopK: 5, ChatTopK: 3}, log)
	ingest := service.NewIngestService(visitSvc, visits, doctors, jobs, worker, log, &service.IngestConfig{Workers: 1, BatchSize: 2})

	require.NoError(t, doctors.Upsert(context.Background(), &domain.Doctor{ID: "doc-1", Name: "Dr. Test", Phone: "doc-test"}))
	require.NoError(t, doctors.Upsert(context.Background(), &domain.Doctor{ID: "doc-2", Name: "Dr. Other", Phone: "doc-other"}))

	router := SetupRouter(RouterDeps{
		VisitService:  visitSvc,
		QueryService:  querySvc,
		IngestService: ingest,
		Provider:      provider,
		Worker:        worker,
		Doctors:       doctors,
		Jobs:          jobs,
		Sources:       map[string]source.Source{"samples": samples.NewAdapter()},
		ChatTopK:      3,
	}, "test", middleware.AuthConfig{Mode: middleware.AuthModeDevelopment, Doctors: doctors}, middleware.CORSConfig{})

	return &testServer{router: router, visits: visits, doctors: doctors}
}

func (s *testServer) do(t *testing.T, method, path, doctorID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if doctorID != "" {
		req.Header.Set(middleware.HeaderDoctorID, doctorID)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func chestPainVisit(phone string) service.CreateVisitRequest {
	age := 45
	return service.CreateVisitRequest{
		PatientName:           "John Doe",
		PatientAge:            &age,
		PatientGender:         "Male",
		PatientPhone:          phone,
		Vitals:                service.VitalsInput{BloodPressure: "140/90", Oxygen: "97%", Weight: "80kg"},
		ClinicalTests:         "ECG shows minor anomaly",
		DoctorNoticed:         "Patient reports chest pain and fatigue",
		PrescribedMedications: "Aspirin daily",
	}
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","embedding_ready":true}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats handler.StatsResponse
	decode(t, w, &stats)
	assert.Equal(t, "local-hash", stats.EmbeddingModel)
	assert.Equal(t, 64, stats.EmbeddingDim)
	assert.Nil(t, stats.MirroredPoints)
}

func TestVisitRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/visits", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/visits", "doc-unknown", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/v1/chat", "", map[string]string{"message": "x"}).Code)
}

func TestVisitLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/visits", "doc-1", map[string]string{"patient_name": "No Phone"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/visits", "doc-1", map[string]string{
		"patient_name": "No Age", "patient_gender": "Female", "patient_phone": "555-0009",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	newborn := chestPainVisit("555-0010")
	newborn.PatientAge = new(int)
	w = s.do(t, http.MethodPost, "/api/v1/visits", "doc-2", newborn)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/visits", "doc-1", chestPainVisit("555-0001"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var created service.CreateVisitResult
	decode(t, w, &created)
	assert.Equal(t, "Visit created successfully", created.Message)
	require.NotEmpty(t, created.VisitID)

	stored, err := s.visits.GetByID(context.Background(), created.VisitID)
	require.NoError(t, err)
	assert.Equal(t, domain.EmbeddingPresent, stored.EmbeddingStatus)
	assert.Len(t, stored.Embedding, 64)

	w = s.do(t, http.MethodGet, "/api/v1/visits?limit=10", "doc-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list service.VisitList
	decode(t, w, &list)
	assert.EqualValues(t, 1, list.Total)
	assert.Equal(t, 10, list.Limit)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/visits?skip=-1", "doc-1", nil).Code)

	path := "/api/v1/visits/" + created.VisitID
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, path, "doc-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, "doc-2", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, path, "doc-2", nil).Code)

	w = s.do(t, http.MethodDelete, path, "doc-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Visit deleted successfully"}`, w.Body.String())
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, "doc-1", nil).Code)
}

func TestSimilarAndChat(t *testing.T) {
	s := newTestServer(t)

	var first service.CreateVisitResult
	decode(t, s.do(t, http.MethodPost, "/api/v1/visits", "doc-1", chestPainVisit("555-0001")), &first)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/visits", "doc-2", chestPainVisit("555-0002")).Code)

	w := s.do(t, http.MethodGet, "/api/v1/visits/"+first.VisitID+"/similar", "doc-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var similar service.SimilarVisitsResponse
	decode(t, w, &similar)
	assert.Equal(t, first.VisitID, similar.VisitID)
	require.Len(t, similar.SimilarCases, 1)
	assert.NotEqual(t, first.VisitID, similar.SimilarCases[0].VisitID)
	assert.InDelta(t, 1.0, similar.SimilarCases[0].SimilarityScore, 0.001)

	w = s.do(t, http.MethodPost, "/api/v1/chat", "doc-1", map[string]string{"message": "chest pain and fatigue", "context": "triage"})
	require.Equal(t, http.StatusOK, w.Code)
	var chat service.ChatResponse
	decode(t, w, &chat)
	assert.Equal(t, "chest pain and fatigue", chat.Query)
	require.NotNil(t, chat.Context)
	assert.Equal(t, "triage", *chat.Context)
	assert.NotEmpty(t, chat.SimilarCases)
	assert.True(t, strings.HasPrefix(chat.Response, "Based on your query 'chest pain and fatigue', I found"))

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/chat", "doc-1", map[string]string{}).Code)
}

func TestDoctorProfile(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/v1/doctors/me", "doc-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var doc domain.Doctor
	decode(t, w, &doc)
	assert.Equal(t, "Dr. Test", doc.Name)
}

func TestAdminJobs(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/admin/ingest", "doc-1", map[string]interface{}{"source": "nowhere"}).Code)

	w := s.do(t, http.MethodPost, "/api/v1/admin/ingest", "doc-1", map[string]interface{}{"source": "samples", "limit": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp handler.JobResponse
	decode(t, w, &resp)
	require.NotNil(t, resp.Stats)
	assert.EqualValues(t, 2, resp.Stats.ProcessedItems)

	w = s.do(t, http.MethodPost, "/api/v1/admin/backfill", "doc-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/admin/status", "doc-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status handler.JobStatusResponse
	decode(t, w, &status)
	assert.False(t, status.IsRunning)
	assert.Equal(t, "backfill succeeded", status.LastRunStatus)

	w = s.do(t, http.MethodGet, "/api/v1/admin/jobs", "doc-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var jobs struct {
		Jobs []domain.IngestJob `json:"jobs"`
	}
	decode(t, w, &jobs)
	require.Len(t, jobs.Jobs, 2)
	assert.True(t, jobs.Jobs[0].Finished())

	w = s.do(t, http.MethodGet, "/api/v1/admin/jobs?active=true", "doc-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &jobs)
	assert.Empty(t, jobs.Jobs)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/admin/jobs/"+resp.Stats.JobID, "doc-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/admin/jobs/missing", "doc-1", nil).Code)
}
