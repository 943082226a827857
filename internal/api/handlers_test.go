package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuquery/docuquery/internal/llm"
	"github.com/docuquery/docuquery/internal/session"
)

// stubCapability answers every completion with a fixed string and embeds
// every text to the same vector, which is enough for routing tests.
type stubCapability struct {
	completeFunc func(prompt string) (string, error)
}

func (s *stubCapability) Complete(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "concise title") {
		return "Document Chat", nil
	}
	if s.completeFunc != nil {
		return s.completeFunc(prompt)
	}
	return "The document describes the payment terms.", nil
}

func (s *stubCapability) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0.5}
	}
	return vectors, nil
}

func newTestServer(t *testing.T, capability *stubCapability) *httptest.Server {
	t.Helper()
	svc := session.NewService(capability, nil, 4, 2)
	server := httptest.NewServer(NewRouter(NewAPIHandler(svc, nil)))
	t.Cleanup(server.Close)
	return server
}

// uploadRequest builds the multipart form the session endpoints accept.
func uploadRequest(t *testing.T, url, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)

	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, url, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

const testDocument = "Invoices are due within thirty days. Late payments accrue interest at two percent per month."

func createSession(t *testing.T, server *httptest.Server) SessionResponse {
	t.Helper()
	req := uploadRequest(t, server.URL+"/api/sessions", "terms.txt", testDocument, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, &stubCapability{})
	resp, err := http.Get(server.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateSession(t *testing.T) {
	server := newTestServer(t, &stubCapability{})
	created := createSession(t, server)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "terms.txt", created.DocumentName)
	assert.Equal(t, session.StateIndexed, created.State)
	assert.Empty(t, created.History)

	// Short document, so automatic chunking picks the smallest tier.
	assert.Equal(t, 500, created.Strategy.ChunkSize)
	assert.Equal(t, 100, created.Strategy.ChunkOverlap)
}

func TestCreateSessionManualStrategy(t *testing.T) {
	server := newTestServer(t, &stubCapability{})
	req := uploadRequest(t, server.URL+"/api/sessions", "terms.txt", testDocument, map[string]string{
		"mode":          "manual",
		"chunk_size":    "40",
		"chunk_overlap": "8",
	})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, 40, created.Strategy.ChunkSize)
	assert.Equal(t, 8, created.Strategy.ChunkOverlap)
}

func TestCreateSessionUnsupportedFormat(t *testing.T) {
	server := newTestServer(t, &stubCapability{})
	req := uploadRequest(t, server.URL+"/api/sessions", "scan.png", "pixels", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestCreateSessionInvalidOverlap(t *testing.T) {
	server := newTestServer(t, &stubCapability{})
	req := uploadRequest(t, server.URL+"/api/sessions", "terms.txt", testDocument, map[string]string{
		"mode":          "manual",
		"chunk_size":    "10",
		"chunk_overlap": "20",
	})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateSessionNonIntegerChunkSize(t *testing.T) {
	server := newTestServer(t, &stubCapability{})
	req := uploadRequest(t, server.URL+"/api/sessions", "terms.txt", testDocument, map[string]string{
		"mode":       "manual",
		"chunk_size": "big",
	})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitMessageFlow(t *testing.T) {
	server := newTestServer(t, &stubCapability{})
	created := createSession(t, server)
	base := server.URL + "/api/sessions/" + created.ID

	resp := postJSON(t, base+"/messages", SubmitMessageRequest{Content: "When are invoices due?"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var answer SubmitMessageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&answer))
	assert.Equal(t, "The document describes the payment terms.", answer.Content)
	assert.NotEmpty(t, answer.Sources)

	// The exchange is visible on the session
	getResp, err := http.Get(base)
	require.NoError(t, err)
	defer getResp.Body.Close()
	var fetched SessionResponse
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&fetched))
	require.Len(t, fetched.History, 2)
	assert.Equal(t, "When are invoices due?", fetched.History[0].Content)

	// And in the plain-text export
	exportResp, err := http.Get(base + "/export")
	require.NoError(t, err)
	defer exportResp.Body.Close()
	assert.Contains(t, exportResp.Header.Get("Content-Type"), "text/plain")
	export, err := io.ReadAll(exportResp.Body)
	require.NoError(t, err)
	assert.Equal(t, "user: When are invoices due?\nassistant: The document describes the payment terms.", string(export))

	// The last turn's grounding is also served on its own
	sourcesResp, err := http.Get(base + "/sources")
	require.NoError(t, err)
	defer sourcesResp.Body.Close()
	require.Equal(t, http.StatusOK, sourcesResp.StatusCode)
}

func TestSubmitMessageEmptyContent(t *testing.T) {
	server := newTestServer(t, &stubCapability{})
	created := createSession(t, server)

	resp := postJSON(t, server.URL+"/api/sessions/"+created.ID+"/messages", SubmitMessageRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitMessageRateLimited(t *testing.T) {
	capability := &stubCapability{}
	server := newTestServer(t, capability)
	created := createSession(t, server)

	capability.completeFunc = func(string) (string, error) {
		return "", fmt.Errorf("provider said no: %w", llm.ErrRateLimit)
	}
	resp := postJSON(t, server.URL+"/api/sessions/"+created.ID+"/messages", SubmitMessageRequest{Content: "hello"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestSessionNotFound(t *testing.T) {
	server := newTestServer(t, &stubCapability{})

	resp, err := http.Get(server.URL + "/api/sessions/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	msgResp := postJSON(t, server.URL+"/api/sessions/missing/messages", SubmitMessageRequest{Content: "hi"})
	defer msgResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, msgResp.StatusCode)
}

func TestClearAndDeleteSession(t *testing.T) {
	server := newTestServer(t, &stubCapability{})
	created := createSession(t, server)
	base := server.URL + "/api/sessions/" + created.ID

	resp := postJSON(t, base+"/messages", SubmitMessageRequest{Content: "When are invoices due?"})
	resp.Body.Close()

	clearResp, err := http.Post(base+"/clear", "application/json", nil)
	require.NoError(t, err)
	defer clearResp.Body.Close()
	require.Equal(t, http.StatusOK, clearResp.StatusCode)

	var cleared SessionResponse
	require.NoError(t, json.NewDecoder(clearResp.Body).Decode(&cleared))
	assert.Empty(t, cleared.History)
	assert.Equal(t, session.StateIndexed, cleared.State)

	req, err := http.NewRequest(http.MethodDelete, base, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	getResp, err := http.Get(base)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestReplaceDocument(t *testing.T) {
	server := newTestServer(t, &stubCapability{})
	created := createSession(t, server)
	base := server.URL + "/api/sessions/" + created.ID

	resp := postJSON(t, base+"/messages", SubmitMessageRequest{Content: "When are invoices due?"})
	resp.Body.Close()

	req := uploadRequest(t, base+"/document", "other.txt", "A different document entirely.", nil)
	replaceResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer replaceResp.Body.Close()
	require.Equal(t, http.StatusOK, replaceResp.StatusCode)

	var replaced SessionResponse
	require.NoError(t, json.NewDecoder(replaceResp.Body).Decode(&replaced))
	assert.Equal(t, "other.txt", replaced.DocumentName)
	assert.Empty(t, replaced.History)
}

func TestFeedbackWithoutArchive(t *testing.T) {
	server := newTestServer(t, &stubCapability{})

	resp := postJSON(t, server.URL+"/api/turns/some-turn/feedback", FeedbackRequest{Negative: true})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}
