// Package restapi implements the HTTP surface for PDF uploads and metadata.
package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/mtiwari1/pdfhost/internal/pdf"
	"github.com/mtiwari1/pdfhost/internal/repository"
)

const welcomeText = "Welcome to the CME pdf host server"

// RecordService is the subset of pdf.Service the handlers call.
type RecordService interface {
	CreateRecord(ctx context.Context, up pdf.Upload, rawMetadata string) (string, error)
	FetchRecord(ctx context.Context, id string) (*repository.Record, error)
	FetchAllRecords(ctx context.Context) ([]*repository.Record, error)
	DeleteRecord(ctx context.Context, id string) error
	EditRecord(ctx context.Context, id string, changes map[string]interface{}) error
	Ping(ctx context.Context) error
}

// Handler holds dependencies for REST endpoints.
type Handler struct {
	svc            RecordService
	uploadDir      string
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewHandler creates a new REST handler. uploadDir is checked by the health
// endpoint and may be empty when files do not live on local disk.
func NewHandler(svc RecordService, uploadDir string, maxUploadBytes int64, logger *slog.Logger) *Handler {
	return &Handler{
		svc:            svc,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// RegisterRoutes attaches all REST routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.welcome)
	mux.HandleFunc("POST /pdf/create", h.createPDF)
	mux.HandleFunc("PATCH /pdf/edit/{id}", h.editPDF)
	mux.HandleFunc("DELETE /pdf/delete/{id}", h.deletePDF)
	mux.HandleFunc("GET /pdf/fetch", h.fetchAll)
	mux.HandleFunc("GET /pdf/fetch/{id}", h.fetchOne)
	mux.HandleFunc("GET /healthz", h.healthz)

	// Everything else.
	mux.HandleFunc("/", h.notFound)
}

// Routes returns the full handler chain: routes wrapped in recovery, CORS and
// access logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h.accessLog(h.cors(h.recoverer(mux)))
}

// ---------- GET / ----------

func (h *Handler) welcome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(welcomeText))
}

// ---------- POST /pdf/create ----------

func (h *Handler) createPDF(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.Warn("form file error", slog.String("error", err.Error()))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()
	defer cleanupMultipart(r.MultipartForm)

	id, err := h.svc.CreateRecord(r.Context(), pdf.Upload{
		Name: header.Filename,
		Body: file,
	}, r.FormValue("metadata"))
	if err != nil {
		h.writeServiceError(w, logger, "create pdf", err)
		return
	}

	w.Header().Set("Location", "/pdf/fetch/"+id)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"id":      id,
	})
}

// ---------- PATCH /pdf/edit/{id} ----------

func (h *Handler) editPDF(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	id := r.PathValue("id")

	var changes map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		logger.Debug("edit body ignored", slog.String("error", err.Error()))
	}

	if err := h.svc.EditRecord(r.Context(), id, changes); err != nil {
		h.writeServiceError(w, logger, "edit pdf", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ---------- DELETE /pdf/delete/{id} ----------

func (h *Handler) deletePDF(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	id := r.PathValue("id")

	if err := h.svc.DeleteRecord(r.Context(), id); err != nil {
		h.writeServiceError(w, logger, "delete pdf", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "PDF file deleted successfully",
	})
}

// ---------- GET /pdf/fetch ----------

func (h *Handler) fetchAll(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)

	records, err := h.svc.FetchAllRecords(r.Context())
	if err != nil {
		h.writeServiceError(w, logger, "fetch all pdfs", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// ---------- GET /pdf/fetch/{id} ----------

func (h *Handler) fetchOne(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	id := r.PathValue("id")

	rec, err := h.svc.FetchRecord(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, logger, "fetch pdf", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ---------- GET /healthz ----------

// healthz verifies connectivity to the metadata store and the upload directory.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	result := map[string]string{"status": "ok"}
	httpStatus := http.StatusOK

	if err := h.svc.Ping(ctx); err != nil {
		result["status"] = "degraded"
		result["database"] = "unreachable: " + err.Error()
		httpStatus = http.StatusServiceUnavailable
	} else {
		result["database"] = "connected"
	}

	if h.uploadDir != "" {
		if _, err := os.Stat(h.uploadDir); err != nil {
			result["status"] = "degraded"
			result["disk"] = "upload dir inaccessible: " + err.Error()
			httpStatus = http.StatusServiceUnavailable
		} else {
			result["disk"] = "ok"
		}
	}

	writeJSON(w, httpStatus, result)
}

// ---------- fallback ----------

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Resource Not Found")
}

// errorBody is the uniform error shape.
type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// writeServiceError logs err and maps it to a status code and public message.
func (h *Handler) writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		logger.Error(op, slog.String("error", err.Error()))
	} else {
		logger.Info(op, slog.Int("status", code), slog.String("error", err.Error()))
	}
	writeError(w, code, msg)
}

// statusFor maps service error kinds to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, pdf.ErrNoFile):
		return http.StatusBadRequest, "No file uploaded"
	case errors.Is(err, pdf.ErrInvalidFileName):
		return http.StatusBadRequest, "Invalid file name"
	case errors.Is(err, pdf.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid metadata"
	case errors.Is(err, pdf.ErrNotFound):
		return http.StatusNotFound, "PDF not found"
	case errors.Is(err, pdf.ErrNotImplemented):
		return http.StatusNotImplemented, "Not Implemented"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Status: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func cleanupMultipart(form *multipart.Form) {
	if form != nil {
		_ = form.RemoveAll()
	}
}
