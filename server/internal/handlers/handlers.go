package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/zhaobenny/aobatop/internal/aggregator"
	"github.com/zhaobenny/aobatop/internal/config"
	"github.com/zhaobenny/aobatop/internal/logger"
	"github.com/zhaobenny/aobatop/internal/model"
	"github.com/zhaobenny/aobatop/internal/output"
	"github.com/zhaobenny/aobatop/internal/parser"
	"github.com/zhaobenny/aobatop/server/internal/middleware"
)

// FileField is the multipart field holding the uploaded journal
const FileField = "file"

// Handler holds dependencies for HTTP handlers
type Handler struct {
	cfg       *config.Config
	templates *template.Template
	maxUpload int64
}

// New creates a new Handler. maxUpload bounds the request body in bytes.
func New(cfg *config.Config, templates *template.Template, maxUpload int64) *Handler {
	return &Handler{
		cfg:       cfg,
		templates: templates,
		maxUpload: maxUpload,
	}
}

// requestError is a failure with the status it should be reported as
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, err: fmt.Errorf(format, args...)}
}

// statusFor maps an upload failure onto an HTTP status
func statusFor(err error) int {
	var reqErr *requestError
	var encErr *parser.EncodingError
	var schemaErr *parser.SchemaError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &encErr), errors.As(err, &schemaErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &reqErr):
		return reqErr.status
	default:
		return http.StatusInternalServerError
	}
}

// Index handles the upload page
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.render(w, r, http.StatusOK, h.pageData(nil, ""))
}

// Report handles a form upload and renders the report page
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.buildReport(w, r)
	if err != nil {
		status := statusFor(err)
		h.logFailure(r, status, err)
		h.render(w, r, status, h.pageData(nil, userMessage(status, err)))
		return
	}
	h.render(w, r, http.StatusOK, h.pageData(report, ""))
}

// APIReport handles an upload and returns the report as JSON
func (h *Handler) APIReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.buildReport(w, r)
	if err != nil {
		status := statusFor(err)
		h.logFailure(r, status, err)
		h.jsonError(w, userMessage(status, err), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := output.WriteJSON(w, report); err != nil {
		logger.With("request_id", middleware.GetRequestID(r.Context())).Error("failed to write report", "error", err)
	}
}

// Healthz handles the health check endpoint
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// buildReport reads the uploaded journal and runs one aggregation pass over it
func (h *Handler) buildReport(w http.ResponseWriter, r *http.Request) (*model.Report, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, badRequest("invalid upload: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(FileField)
	if err != nil {
		return nil, badRequest("no journal uploaded in field %q", FileField)
	}
	defer file.Close()

	cfg, err := h.settings(r)
	if err != nil {
		return nil, err
	}
	popts, err := cfg.ParserOptions()
	if err != nil {
		return nil, badRequest("%v", err)
	}
	aopts, err := cfg.AggregatorOptions()
	if err != nil {
		return nil, badRequest("%v", err)
	}

	result, err := parser.Parse(file, popts)
	if err != nil {
		return nil, err
	}

	report := aggregator.FromJournal(result, aopts)
	logger.With("request_id", middleware.GetRequestID(r.Context())).Info("report computed",
		"file", header.Filename,
		"bytes", header.Size,
		"rows", report.TotalRows,
		"billable", report.BillableRows,
		"users", len(report.Users))
	return report, nil
}

// settings applies the optional form fields named by config.FormValues
func (h *Handler) settings(r *http.Request) (*config.Config, error) {
	// Class ids and the delimiter are used verbatim
	o := config.Overrides{
		Cutoff:    strings.TrimSpace(r.FormValue("cutoff")),
		Encoding:  strings.TrimSpace(r.FormValue("encoding")),
		Timezone:  strings.TrimSpace(r.FormValue("timezone")),
		HostID:    r.FormValue("host_id"),
		ClassID:   r.FormValue("class_id"),
		Delimiter: r.FormValue("delimiter"),
		Currency:  strings.TrimSpace(r.FormValue("currency")),
	}
	if v := strings.TrimSpace(r.FormValue("rate")); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil || rate <= 0 {
			return nil, badRequest("invalid rate %q", v)
		}
		o.Rate = rate
	}

	cfg, err := h.cfg.Apply(o)
	if err != nil {
		return nil, badRequest("%v", err)
	}
	return cfg, nil
}

func userMessage(status int, err error) string {
	if status >= http.StatusInternalServerError {
		return "An error occurred"
	}
	if status == http.StatusRequestEntityTooLarge {
		return "Upload is too large"
	}
	return err.Error()
}

func (h *Handler) logFailure(r *http.Request, status int, err error) {
	log := logger.With("request_id", middleware.GetRequestID(r.Context()))
	if status >= http.StatusInternalServerError {
		log.Error("report failed", "status", status, "error", err)
		return
	}
	log.Warn("report rejected", "status", status, "error", err)
}

func (h *Handler) pageData(report *model.Report, errMsg string) map[string]interface{} {
	return map[string]interface{}{
		"Report":   report,
		"Error":    errMsg,
		"Rate":     h.cfg.Rate,
		"Cutoff":   h.cfg.Cutoff,
		"Encoding": h.cfg.Encoding,
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data map[string]interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		logger.With("request_id", middleware.GetRequestID(r.Context())).Error("failed to render page", "error", err)
	}
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
