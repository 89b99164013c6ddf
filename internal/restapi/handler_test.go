package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtiwari1/pdfhost/internal/blobstore"
	"github.com/mtiwari1/pdfhost/internal/pdf"
	"github.com/mtiwari1/pdfhost/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	repo, err := repository.NewSQLiteRepo(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close(context.Background()) })

	dir := filepath.Join(t.TempDir(), "uploads")
	blobs, err := blobstore.NewDisk(dir)
	require.NoError(t, err)

	svc := pdf.NewService(repo, blobs, testLogger())
	srv := httptest.NewServer(NewHandler(svc, dir, 1<<20, testLogger()).Routes())
	t.Cleanup(srv.Close)
	return srv, dir
}

func multipartBody(t *testing.T, filename, content, metadata string, withMetadata bool) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	if withMetadata {
		require.NoError(t, mw.WriteField("metadata", metadata))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, method, url string, body io.Reader, contentType string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeError(t *testing.T, data []byte) errorBody {
	t.Helper()
	var eb errorBody
	require.NoError(t, json.Unmarshal(data, &eb))
	return eb
}

func createPDF(t *testing.T, baseURL, name, metadata string) string {
	t.Helper()
	body, ct := multipartBody(t, name, "PDF-DATA", metadata, true)
	resp, data := do(t, http.MethodPost, baseURL+"/pdf/create", body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	var out struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	require.True(t, out.Success)
	require.NotEmpty(t, out.ID)
	return out.ID
}

func TestWelcome(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, data := do(t, http.MethodGet, srv.URL+"/", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, welcomeText, string(data))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestCreateFetchDelete(t *testing.T) {
	srv, dir := newTestServer(t)

	id := createPDF(t, srv.URL, "manual.pdf", `{"title":"Manual"}`)

	resp, data := do(t, http.MethodGet, srv.URL+"/pdf/fetch/"+id, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t,
		`{"_id":"`+id+`","content_path":`+mustJSON(t, filepath.Join(dir, "manual.pdf"))+`,"metadata":{"title":"Manual"}}`,
		string(data))

	resp, data = do(t, http.MethodDelete, srv.URL+"/pdf/delete/"+id, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"message":"PDF file deleted successfully"}`, string(data))

	resp, data = do(t, http.MethodGet, srv.URL+"/pdf/fetch/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errorBody{Status: 404, Message: "PDF not found"}, decodeError(t, data))
}

func TestFetchAll(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, data := do(t, http.MethodGet, srv.URL+"/pdf/fetch", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(data))

	a := createPDF(t, srv.URL, "a.pdf", `{"title":"A"}`)
	b := createPDF(t, srv.URL, "b.pdf", `{"title":"B"}`)

	resp, data = do(t, http.MethodGet, srv.URL+"/pdf/fetch", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []repository.Record
	require.NoError(t, json.Unmarshal(data, &records))
	ids := []string{}
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	assert.ElementsMatch(t, []string{a, b}, ids)
}

func TestCreate_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name     string
		filename string
		metadata string
		withMeta bool
		wantMsg  string
	}{
		{"no file", "", `{"title":"x"}`, true, "No file uploaded"},
		{"no metadata", "a.pdf", "", false, "Invalid metadata"},
		{"malformed metadata", "a.pdf", `{"title":`, true, "Invalid metadata"},
		{"array metadata", "a.pdf", `[1,2]`, true, "Invalid metadata"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.filename, "x", tt.metadata, tt.withMeta)
			resp, data := do(t, http.MethodPost, srv.URL+"/pdf/create", body, ct)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, errorBody{Status: 400, Message: tt.wantMsg}, decodeError(t, data))
		})
	}
}

func TestCreate_NotMultipart(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, data := do(t, http.MethodPost, srv.URL+"/pdf/create", strings.NewReader(`{"metadata":"{}"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No file uploaded", decodeError(t, data).Message)
}

func TestCreate_TooLarge(t *testing.T) {
	repo, err := repository.NewSQLiteRepo(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close(context.Background()) })
	blobs, err := blobstore.NewDisk(t.TempDir())
	require.NoError(t, err)
	h := NewHandler(pdf.NewService(repo, blobs, testLogger()), "", 1024, testLogger()).Routes()

	body, ct := multipartBody(t, "big.pdf", strings.Repeat("x", 4096), `{}`, true)
	req := httptest.NewRequest(http.MethodPost, "/pdf/create", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, errorBody{Status: 413, Message: "File too large"}, decodeError(t, rec.Body.Bytes()))
}

func TestDelete_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, data := do(t, http.MethodDelete, srv.URL+"/pdf/delete/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errorBody{Status: 404, Message: "PDF not found"}, decodeError(t, data))
}

func TestEdit_NotImplemented(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createPDF(t, srv.URL, "a.pdf", `{"title":"A"}`)

	resp, data := do(t, http.MethodPatch, srv.URL+"/pdf/edit/"+id, strings.NewReader(`{"title":"B"}`), "application/json")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.Equal(t, errorBody{Status: 501, Message: "Not Implemented"}, decodeError(t, data))

	resp, data = do(t, http.MethodGet, srv.URL+"/pdf/fetch/"+id, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"title":"A"`)
}

func TestUnmatchedRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodPost, "/pdf/fetch"},
		{http.MethodGet, "/pdf/create"},
		{http.MethodPut, "/"},
	} {
		resp, data := do(t, tc.method, srv.URL+tc.path, nil, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "%s %s", tc.method, tc.path)
		assert.Equal(t, errorBody{Status: 404, Message: "Resource Not Found"}, decodeError(t, data))
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/pdf/create", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, data := do(t, http.MethodGet, srv.URL+"/healthz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","database":"connected","disk":"ok"}`, string(data))
}

// stubService fails every call with a fixed error, or panics.
type stubService struct {
	err   error
	panic bool
}

func (s stubService) CreateRecord(context.Context, pdf.Upload, string) (string, error) {
	return "", s.err
}

func (s stubService) FetchRecord(context.Context, string) (*repository.Record, error) {
	if s.panic {
		panic("boom")
	}
	return nil, s.err
}

func (s stubService) FetchAllRecords(context.Context) ([]*repository.Record, error) {
	return nil, s.err
}

func (s stubService) DeleteRecord(context.Context, string) error { return s.err }

func (s stubService) EditRecord(context.Context, string, map[string]interface{}) error {
	return s.err
}

func (s stubService) Ping(context.Context) error { return s.err }

func TestStoreUnavailableIs500(t *testing.T) {
	unavailable := stubService{err: errors.Join(pdf.ErrStoreUnavailable, repository.ErrUnavailable)}
	srv := httptest.NewServer(NewHandler(unavailable, "", 0, testLogger()).Routes())
	defer srv.Close()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/pdf/fetch"},
		{http.MethodGet, "/pdf/fetch/x"},
		{http.MethodDelete, "/pdf/delete/x"},
	} {
		resp, data := do(t, tc.method, srv.URL+tc.path, nil, "")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, tc.path)
		assert.Equal(t, errorBody{Status: 500, Message: "Internal Server Error"}, decodeError(t, data))
	}

	resp, data := do(t, http.MethodGet, srv.URL+"/healthz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(data), `"status":"degraded"`)
}

func TestCreateWriteFailureIs500(t *testing.T) {
	srv := httptest.NewServer(NewHandler(stubService{err: pdf.ErrStoreWrite}, "", 0, testLogger()).Routes())
	defer srv.Close()

	body, ct := multipartBody(t, "a.pdf", "x", `{}`, true)
	resp, data := do(t, http.MethodPost, srv.URL+"/pdf/create", body, ct)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal Server Error", decodeError(t, data).Message)
}

func TestPanicRecovered(t *testing.T) {
	srv := httptest.NewServer(NewHandler(stubService{panic: true}, "", 0, testLogger()).Routes())
	defer srv.Close()

	resp, data := do(t, http.MethodGet, srv.URL+"/pdf/fetch/x", nil, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, errorBody{Status: 500, Message: "Internal Server Error"}, decodeError(t, data))

	// The server keeps serving.
	resp, _ = do(t, http.MethodGet, srv.URL+"/", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
