package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/notes-bin/imgstore/internal/badger"
	"github.com/notes-bin/imgstore/internal/images"
	"github.com/notes-bin/imgstore/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1x1 transparent PNG
const pixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

type testServer struct {
	router http.Handler
	files  *storage.Local
	dir    string
}

func newTestServer(t *testing.T, maxBody int64) *testServer {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewLocal(dir, "http://imgstore.test", []byte("test-secret"))
	require.NoError(t, err)

	records, err := badger.NewStore(badger.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	svc := images.NewService(files, records, images.MaxUploadSize(1024))
	h := NewHandler(svc, files, NewMetrics(), maxBody)
	return &testServer{router: SetupRouter(h), files: files, dir: dir}
}

func (s *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func upload(t *testing.T, s *testServer, user, filename string) map[string]any {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/images", map[string]string{
		"image_data":   pixelPNG,
		"filename":     filename,
		"content_type": "image/png",
		"user_id":      user,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["image"].(map[string]any)
}

func TestImageLifecycle(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(t, http.MethodPost, "/images", map[string]string{
		"image_data":   pixelPNG,
		"filename":     "a.png",
		"content_type": "image/png",
		"user_id":      "u1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Image uploaded successfully", body["message"])
	img := body["image"].(map[string]any)
	id := img["image_id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, "u1", img["user_id"])
	assert.Equal(t, fmt.Sprintf("images/%s/a.png", id), img["storage_key"])
	assert.NotEmpty(t, img["upload_date"])

	raw, _ := base64.StdEncoding.DecodeString(pixelPNG)
	// integer, not a decimal string
	assert.Contains(t, rec.Body.String(), fmt.Sprintf(`"size":%d`, len(raw)))

	rec = s.do(t, http.MethodGet, "/images/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	details := decode(t, rec)
	assert.Equal(t, id, details["image"].(map[string]any)["image_id"])
	assert.True(t, strings.HasPrefix(details["download_url"].(string), "http://imgstore.test/files/"))

	rec = s.do(t, http.MethodDelete, "/images/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"message": "Image deleted successfully", "image_id": id}, decode(t, rec))

	rec = s.do(t, http.MethodGet, "/images/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Image not found: "+id, decode(t, rec)["error"])
}

func TestUploadValidation(t *testing.T) {
	s := newTestServer(t, 0)

	tests := []struct {
		name    string
		body    any
		message string
	}{
		{"malformed json", `{"image_data":`, "Invalid JSON body"},
		{"missing user", map[string]string{"image_data": pixelPNG, "filename": "a.png", "content_type": "image/png"}, "Missing required field: user_id"},
		{"bad base64", map[string]string{"image_data": "***", "filename": "a.png", "content_type": "image/png", "user_id": "u1"}, "Invalid base64 image data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/images", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, decode(t, rec)["error"])
		})
	}
}

func TestUploadCannotOverwriteAnotherImage(t *testing.T) {
	s := newTestServer(t, 0)
	victim := upload(t, s, "alice", "a.png")
	victimID := victim["image_id"].(string)

	for _, filename := range []string{"../" + victimID + "/a.png", "../../../escape.png", ".."} {
		rec := s.do(t, http.MethodPost, "/images", map[string]string{
			"image_data":   "aGFja2Vk",
			"filename":     filename,
			"content_type": "image/png",
			"user_id":      "mallory",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code, filename)
		assert.Equal(t, "Invalid filename", decode(t, rec)["error"])
	}

	rec := s.do(t, http.MethodGet, "/images/"+victimID+"?download=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	raw, _ := base64.StdEncoding.DecodeString(pixelPNG)
	assert.Equal(t, raw, rec.Body.Bytes())
}

func TestUploadBodyLimit(t *testing.T) {
	s := newTestServer(t, 64)
	rec := s.do(t, http.MethodPost, "/images", map[string]string{
		"image_data":   pixelPNG,
		"filename":     "a.png",
		"content_type": "image/png",
		"user_id":      "u1",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Request body too large", decode(t, rec)["error"])
}

func TestUploadWithoutBodyLimit(t *testing.T) {
	s := newTestServer(t, 0)
	rec := s.do(t, http.MethodPost, "/images", map[string]string{
		"image_data":   base64.StdEncoding.EncodeToString(make([]byte, 100<<10)),
		"filename":     "big.png",
		"content_type": "image/png",
		"user_id":      "u1",
	})
	// the body is read in full and the decoded size check answers instead
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Image exceeds maximum size of 1024 bytes", decode(t, rec)["error"])
}

func TestListImages(t *testing.T) {
	s := newTestServer(t, 0)
	for i := 0; i < 3; i++ {
		upload(t, s, "u1", fmt.Sprintf("%d.png", i))
	}
	upload(t, s, "u2", "other.png")

	rec := s.do(t, http.MethodGet, "/images?user_id=u1&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode(t, rec)
	assert.EqualValues(t, 2, first["count"])
	token, ok := first["next_token"].(string)
	require.True(t, ok)

	rec = s.do(t, http.MethodGet, "/images?user_id=u1&limit=2&next_token="+url.QueryEscape(token), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode(t, rec)
	assert.EqualValues(t, 1, second["count"])
	assert.NotContains(t, second, "next_token")

	rec = s.do(t, http.MethodGet, "/images?user_id=nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"images":[],"count":0}`, rec.Body.String())
}

func TestListLimitBoundaries(t *testing.T) {
	s := newTestServer(t, 0)

	tests := []struct {
		query  string
		status int
		error  string
	}{
		{"limit=1", http.StatusOK, ""},
		{"limit=100", http.StatusOK, ""},
		{"limit=0", http.StatusBadRequest, "Limit must be between 1 and 100"},
		{"limit=101", http.StatusBadRequest, "Limit must be between 1 and 100"},
		{"limit=ten", http.StatusBadRequest, "Invalid limit value"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/images?user_id=u1&"+tt.query, nil)
			require.Equal(t, tt.status, rec.Code)
			if tt.error != "" {
				assert.Equal(t, tt.error, decode(t, rec)["error"])
			}
		})
	}

	rec := s.do(t, http.MethodGet, "/images", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required query parameter: user_id", decode(t, rec)["error"])
}

func TestListInvalidTokenIsServerError(t *testing.T) {
	s := newTestServer(t, 0)
	rec := s.do(t, http.MethodGet, "/images?user_id=u1&next_token=not-a-token", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["error"])
}

func TestDownload(t *testing.T) {
	s := newTestServer(t, 0)
	img := upload(t, s, "u1", "pixel one.png")
	id := img["image_id"].(string)

	rec := s.do(t, http.MethodGet, "/images/"+id+"?download=TRUE", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="pixel one.png"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	raw, _ := base64.StdEncoding.DecodeString(pixelPNG)
	assert.Equal(t, raw, rec.Body.Bytes())
}

func TestAttachmentDisposition(t *testing.T) {
	tests := map[string]string{
		"a.png":        `attachment; filename="a.png"`,
		"my photo.jpg": `attachment; filename="my photo.jpg"`,
		`say "hi".png`: `attachment; filename="say \"hi\".png"`,
		"café.png":     `attachment; filename*=utf-8''caf%C3%A9.png`,
	}
	for filename, want := range tests {
		assert.Equal(t, want, attachmentDisposition(filename), filename)
	}
}

func TestDownloadObjectMissing(t *testing.T) {
	s := newTestServer(t, 0)
	img := upload(t, s, "u1", "a.png")
	id := img["image_id"].(string)

	path, err := s.files.GetFilePath(img["storage_key"].(string))
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	rec := s.do(t, http.MethodGet, "/images/"+id+"?download=true", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Image file not found in storage", decode(t, rec)["error"])
}

func TestServeFile(t *testing.T) {
	s := newTestServer(t, 0)
	img := upload(t, s, "u1", "a.png")

	rec := s.do(t, http.MethodGet, "/images/"+img["image_id"].(string), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	link, err := url.Parse(decode(t, rec)["download_url"].(string))
	require.NoError(t, err)

	rec = s.do(t, http.MethodGet, link.Path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	raw, _ := base64.StdEncoding.DecodeString(pixelPNG)
	assert.Equal(t, raw, rec.Body.Bytes())

	rec = s.do(t, http.MethodGet, "/files/forged", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, os.RemoveAll(filepath.Join(s.dir, "images")))
	rec = s.do(t, http.MethodGet, link.Path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreflightAndHeaders(t *testing.T) {
	s := newTestServer(t, 0)

	for _, target := range []string{"/images", "/images/abc"} {
		rec := s.do(t, http.MethodOptions, target, nil)
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
	}

	rec := s.do(t, http.MethodGet, "/images/missing", nil)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, 0)
	upload(t, s, "u1", "a.png")

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `imgstore_http_requests_total{method="POST",route="/images/",status="201"} 1`)
	assert.Contains(t, rec.Body.String(), "imgstore_uploaded_bytes_total")
}

func TestFilesRouteOnlyForLocalStorage(t *testing.T) {
	records, err := badger.NewStore(badger.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	var objects storage.Store = nopObjects{}
	h := NewHandler(images.NewService(objects, records), nil, NewMetrics(), 0)
	rec := httptest.NewRecorder()
	SetupRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/anything", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type nopObjects struct{}

func (nopObjects) Put(context.Context, string, []byte, string) error  { return nil }
func (nopObjects) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (nopObjects) Delete(context.Context, string) error              { return nil }
func (nopObjects) PresignedDownloadURL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}
