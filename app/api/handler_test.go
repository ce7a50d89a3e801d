package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taxrag/app/agent"
	"taxrag/ingest"
	"taxrag/search"
	"taxrag/store"
	"taxrag/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0, 0}, nil
}

func (s *stubEmbedder) ModelVersion() string { return "stub-embed-v1" }

type stubGenerator struct {
	output string
	err    error
}

func (s *stubGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.output, nil
}

type testDeps struct {
	store     *store.MemoryStore
	embedder  *stubEmbedder
	generator *stubGenerator
}

func newTestApp(t *testing.T) (*fiber.App, *testDeps) {
	t.Helper()
	deps := &testDeps{
		store:     store.NewMemoryStore(),
		embedder:  &stubEmbedder{},
		generator: &stubGenerator{output: "Resposta fundamentada [1]."},
	}

	cfg := types.Config{ChunkSize: 1200, ChunkOverlap: 200, EmbedWorkers: 2, EmbedAttempts: 1}
	engine := search.NewEngine(deps.store, deps.embedder)
	pipeline := ingest.NewPipeline(deps.store, deps.embedder, cfg)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	queryHandler := NewQueryHandler(engine, agent.New(deps.generator))
	ingestHandler := NewIngestHandler(pipeline, deps.store)
	infoHandler := NewInfoHandler(deps.store)
	checkHandler := NewCheckHandler()

	app.Get("/check/healthy", checkHandler.HandleHealthy)
	apiv1 := app.Group("/api/v1")
	apiv1.Post("/query", queryHandler.HandleQuery)
	apiv1.Post("/documents", ingestHandler.HandleUpload)
	apiv1.Delete("/documents/:id", ingestHandler.HandleDelete)
	apiv1.Get("/databases", infoHandler.HandleDatabases)
	apiv1.Get("/status", infoHandler.HandleStatus)

	return app, deps
}

func seedPassages(t *testing.T, st *store.MemoryStore) uuid.UUID {
	t.Helper()
	docID := uuid.New()
	sim := func(s float64) []float32 {
		return []float32{float32(s), float32(math.Sqrt(1 - s*s)), 0}
	}
	st.SeedDocument(types.Document{
		ID:             docID,
		Title:          "guia portugal",
		Collection:     "guia_portugal",
		EmbeddingModel: "stub-embed-v1",
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}, []types.Chunk{
		{ID: uuid.New(), DocID: docID, DocTitle: "guia portugal", Collection: "guia_portugal",
			Position: 0, Page: 1, Country: "pt", Topic: "residencia_fiscal",
			Content: "Portugal considera residente fiscal quem permanece 183 dias.", Embedding: sim(0.9)},
		{ID: uuid.New(), DocID: docID, DocTitle: "guia portugal", Collection: "guia_portugal",
			Position: 1, Page: 2, Country: "pt", Topic: "tributacao_renda",
			Content: "Os rendimentos mundiais de residentes são tributados em Portugal.", Embedding: sim(0.8)},
	})
	return docID
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestQueryHappyPath(t *testing.T) {
	app, deps := newTestApp(t)
	seedPassages(t, deps.store)

	resp := postJSON(t, app, "/api/v1/query", fiber.Map{
		"question":  "Quando me torno residente fiscal em Portugal?",
		"countries": []string{"pt"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body types.SearchResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "Resposta fundamentada [1].", body.Answer)
	assert.Greater(t, body.ConfidenceScore, 0.7)
	require.Len(t, body.Sources, 2)
	assert.Equal(t, "guia portugal", body.Sources[0].DocumentTitle)
	assert.Equal(t, 2, body.SearchResultsCount)
	assert.GreaterOrEqual(t, body.ProcessingTimeMs, int64(0))
}

func TestQueryInsufficientEvidence(t *testing.T) {
	app, _ := newTestApp(t)

	// Empty knowledge base: still HTTP 200, confidence 0, no sources.
	resp := postJSON(t, app, "/api/v1/query", fiber.Map{
		"question": "Qual a alíquota no Uruguai?",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body types.SearchResponse
	decodeBody(t, resp, &body)
	assert.Contains(t, body.Answer, "Não há informação suficiente")
	assert.Zero(t, body.ConfidenceScore)
	assert.Empty(t, body.Sources)
}

func TestQueryValidation(t *testing.T) {
	app, _ := newTestApp(t)

	resp := postJSON(t, app, "/api/v1/query", fiber.Map{"question": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body ValidationError
	decodeBody(t, resp, &body)
	assert.Contains(t, body.Errors, "Question")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader("{nope"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueryInvalidCountryFilter(t *testing.T) {
	app, deps := newTestApp(t)
	seedPassages(t, deps.store)

	resp := postJSON(t, app, "/api/v1/query", fiber.Map{
		"question":  "pergunta válida",
		"countries": []string{"atlantis"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueryUnknownDatabase(t *testing.T) {
	app, deps := newTestApp(t)
	seedPassages(t, deps.store)

	resp := postJSON(t, app, "/api/v1/query", fiber.Map{
		"question":          "pergunta válida",
		"selectedDatabases": []string{"nao_existe"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueryLanguageModelDown(t *testing.T) {
	app, deps := newTestApp(t)
	seedPassages(t, deps.store)
	deps.generator.err = errors.New("ollama connection refused")

	resp := postJSON(t, app, "/api/v1/query", fiber.Map{
		"question": "Quando me torno residente fiscal em Portugal?",
	})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// The safe message leaks nothing about the backend.
	var body Error
	decodeBody(t, resp, &body)
	assert.NotContains(t, body.Message, "ollama")
}

func TestQueryEmbedderDown(t *testing.T) {
	app, deps := newTestApp(t)
	seedPassages(t, deps.store)
	deps.embedder.err = errors.New("ollama connection refused")

	resp := postJSON(t, app, "/api/v1/query", fiber.Map{
		"question": "pergunta válida",
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func uploadFile(t *testing.T, app *fiber.App, name, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestUploadDocument(t *testing.T) {
	app, _ := newTestApp(t)

	content := "# Guia Fiscal Malta\n\n" +
		strings.Repeat("Malta oferece o regime non-dom para novos residentes. ", 60)
	resp := uploadFile(t, app, "guia_malta.md", content)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body types.IngestResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "guia_malta", body.Collection)
	assert.Greater(t, body.ChunksGenerated, 1)
	assert.Zero(t, body.ChunksFailed)
	assert.Empty(t, body.Warning)
}

func TestUploadUnsupportedType(t *testing.T) {
	app, _ := newTestApp(t)

	resp := uploadFile(t, app, "planilha.xlsx", "dados")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestUploadMissingFile(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteDocument(t *testing.T) {
	app, deps := newTestApp(t)
	docID := seedPassages(t, deps.store)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+docID.String(), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+docID.String(), nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/documents/not-a-uuid", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDatabasesListing(t *testing.T) {
	app, deps := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/databases", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var empty struct {
		Databases []types.Collection `json:"databases"`
	}
	decodeBody(t, resp, &empty)
	assert.NotNil(t, empty.Databases)
	assert.Empty(t, empty.Databases)

	seedPassages(t, deps.store)
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/databases", nil), -1)
	require.NoError(t, err)

	var listed struct {
		Databases []types.Collection `json:"databases"`
	}
	decodeBody(t, resp, &listed)
	require.Len(t, listed.Databases, 1)
	assert.Equal(t, "guia_portugal", listed.Databases[0].Name)
	assert.Equal(t, 2, listed.Databases[0].ChunkCount)
}

func TestStatusEndpoint(t *testing.T) {
	app, deps := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/status", nil), -1)
	require.NoError(t, err)

	var empty map[string]any
	decodeBody(t, resp, &empty)
	assert.Equal(t, "empty", empty["status"])
	assert.Equal(t, false, empty["ready"])

	seedPassages(t, deps.store)
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/status", nil), -1)
	require.NoError(t, err)

	var ready map[string]any
	decodeBody(t, resp, &ready)
	assert.Equal(t, "healthy", ready["status"])
	assert.Equal(t, true, ready["ready"])
	assert.EqualValues(t, 2, ready["total_chunks"])
}

func TestHealthCheck(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/check/healthy", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["result"])
}
