package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/notes-bin/imgstore/internal/images"
	"github.com/notes-bin/imgstore/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	images  *images.Service
	files   *storage.Local
	metrics *Metrics
	maxBody int64
}

// NewHandler builds the request handlers. files is nil unless objects are
// kept on the local filesystem, in which case /files serves its links.
func NewHandler(svc *images.Service, files *storage.Local, metrics *Metrics, maxBody int64) *Handler {
	return &Handler{images: svc, files: files, metrics: metrics, maxBody: maxBody}
}

func SetupRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.metrics.Middleware)
	r.Use(Preflight)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", h.metrics.Handler())

	r.Route("/images", func(r chi.Router) {
		r.Post("/", h.UploadImage)
		r.Get("/", h.ListImages)
		r.Get("/{id}", h.GetImage)
		r.Delete("/{id}", h.DeleteImage)
	})

	if h.files != nil {
		r.Get("/files/{token}", h.ServeFile)
	}

	return r
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// attachmentDisposition always quotes the filename. Names outside printable
// ASCII fall back to the RFC 2231 form.
func attachmentDisposition(filename string) string {
	for _, r := range filename {
		if r < 0x20 || r >= utf8.RuneSelf || r == 0x7f {
			return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
		}
	}
	return `attachment; filename="` + quoteEscaper.Replace(filename) + `"`
}

// outcomeFor translates a service error into a response outcome.
func outcomeFor(err error) Outcome {
	var inputErr *images.InputError
	var notFound *images.NotFoundError
	switch {
	case errors.As(err, &inputErr):
		return BadInput(inputErr.Message)
	case errors.As(err, &notFound):
		return NotFound(notFound.Message)
	default:
		return ServerError(err.Error())
	}
}

// Preflight answers every OPTIONS request with the CORS header set,
// whichever route it names.
func Preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			respond(w, Outcome{Status: http.StatusOK})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respond(w, Success(map[string]string{"status": "ok"}))
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	var req images.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond(w, BadInput("Request body too large"))
			return
		}
		respond(w, BadInput("Invalid JSON body"))
		return
	}

	img, err := h.images.Upload(r.Context(), req)
	if err != nil {
		respond(w, outcomeFor(err))
		return
	}
	h.metrics.uploadedBytes.Add(float64(img.Size))

	respond(w, Created(map[string]any{
		"message": "Image uploaded successfully",
		"image":   img,
	}))
}

func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "id")

	if strings.EqualFold(r.URL.Query().Get("download"), "true") {
		img, data, err := h.images.Download(r.Context(), imageID)
		if err != nil {
			respond(w, outcomeFor(err))
			return
		}
		respond(w, Attachment(data, img.ContentType, attachmentDisposition(img.Filename)))
		return
	}

	details, err := h.images.Get(r.Context(), imageID)
	if err != nil {
		respond(w, outcomeFor(err))
		return
	}
	respond(w, Success(details))
}

func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.images.List(r.Context(), images.ListRequest{
		UserID:    q.Get("user_id"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Limit:     q.Get("limit"),
		NextToken: q.Get("next_token"),
	})
	if err != nil {
		respond(w, outcomeFor(err))
		return
	}
	respond(w, Success(res))
}

func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "id")
	if err := h.images.Delete(r.Context(), imageID); err != nil {
		respond(w, outcomeFor(err))
		return
	}
	respond(w, Success(map[string]string{
		"message":  "Image deleted successfully",
		"image_id": imageID,
	}))
}

// ServeFile answers the presigned links of the local object store.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	key, err := h.files.Verify(chi.URLParam(r, "token"))
	if err != nil {
		respond(w, Forbidden(err.Error()))
		return
	}
	data, found, err := h.files.Get(r.Context(), key)
	if err != nil {
		respond(w, ServerError(err.Error()))
		return
	}
	if !found {
		respond(w, NotFound("Image file not found in storage"))
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	http.ServeContent(w, r, path.Base(key), time.Time{}, bytes.NewReader(data))
}
