package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"interaction-dashboard/pkg/correlation"
	"interaction-dashboard/pkg/dashboard"
	"interaction-dashboard/pkg/errors"
	"interaction-dashboard/pkg/export"
	"interaction-dashboard/pkg/interaction"
	"interaction-dashboard/pkg/query"

	"github.com/sirupsen/logrus"
)

const defaultUploadName = "upload.csv"

// APIHandler serves the dashboard REST endpoints
type APIHandler struct {
	logger  *logrus.Logger
	service *dashboard.Service
	options Options
	now     func() time.Time
}

// NewAPIHandler creates the REST handler set
func NewAPIHandler(logger *logrus.Logger, service *dashboard.Service, opts Options) *APIHandler {
	return &APIHandler{
		logger:  logger,
		service: service,
		options: opts,
		now:     time.Now,
	}
}

// RegisterHandlers registers all dashboard handlers with the HTTP server
func (h *APIHandler) RegisterHandlers(server *Server) {
	server.RegisterHandler("/api/interactions", h.handleInteractions)
	server.RegisterHandler("/api/interactions/bulk", h.handleBulkCreate)
	server.RegisterHandler("/api/interactions/date-range", h.handleDateRange)
	server.RegisterHandler("/api/upload", h.handleUpload)
	server.RegisterHandler("/api/uploads", h.handleUploads)
	server.RegisterHandler("/api/dashboard", h.handleDashboard)
	server.RegisterHandler("/api/analysis/", h.handleAnalysis)
	server.RegisterHandler("/api/table", h.handleTable)
	server.RegisterHandler("/api/columns", h.handleColumns)
	server.RegisterHandler("/api/filters", h.handleFilters)
	server.RegisterHandler("/api/export/", h.handleExport)
}

func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := correlation.LoggerFromContext(r.Context(), h.logger).WithError(err)
	if status := errors.HTTPStatusFromError(err); status >= http.StatusInternalServerError {
		log.Error("Request failed")
	} else {
		log.Debug("Request rejected")
	}
	errors.WriteError(w, err)
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func (h *APIHandler) handleInteractions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records, err := h.service.Interactions(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, records)

	case http.MethodPost:
		var candidate interaction.Candidate
		if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
			h.writeError(w, r, errors.NewInvalidInput("invalid interaction body").WithField("reason", err.Error()))
			return
		}
		created, err := h.service.CreateInteraction(r.Context(), candidate)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodDelete:
		if err := h.service.Clear(r.Context()); err != nil {
			h.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (h *APIHandler) handleBulkCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var candidates []interaction.Candidate
	if err := json.NewDecoder(r.Body).Decode(&candidates); err != nil {
		h.writeError(w, r, errors.NewInvalidInput("body must be a JSON array of interactions").WithField("reason", err.Error()))
		return
	}

	created, err := h.service.CreateInteractions(r.Context(), candidates)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"inserted": len(created),
		"items":    created,
	})
}

func (h *APIHandler) handleDateRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	values := r.URL.Query()
	if values.Get("startDate") == "" || values.Get("endDate") == "" {
		h.writeError(w, r, errors.NewInvalidInput("startDate and endDate are required"))
		return
	}
	from, err := parseTimeParam(values, "startDate", false, h.options.Location)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	to, err := parseTimeParam(values, "endDate", true, h.options.Location)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	records, err := h.service.InteractionsBetween(r.Context(), *from, *to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// maxBytesTracker remembers whether the body cap was hit, since the CSV
// reader reports that as a parse failure
type maxBytesTracker struct {
	io.ReadCloser
	exceeded bool
}

func (t *maxBytesTracker) Read(p []byte) (int, error) {
	n, err := t.ReadCloser.Read(p)
	var maxErr *http.MaxBytesError
	if err != nil && errors.As(err, &maxErr) {
		t.exceeded = true
	}
	return n, err
}

func (h *APIHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	mode, err := dashboard.ParseImportMode(r.URL.Query().Get("mode"), "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	tracker := &maxBytesTracker{ReadCloser: r.Body}
	if h.options.MaxUploadBytes > 0 {
		tracker.ReadCloser = http.MaxBytesReader(w, r.Body, h.options.MaxUploadBytes)
	}
	r.Body = tracker

	fileName, body, err := uploadBody(r)
	if err == nil {
		var result *dashboard.ImportResult
		result, err = h.service.Import(r.Context(), fileName, body, mode)
		if err == nil {
			writeJSON(w, http.StatusOK, result)
			return
		}
	}

	if tracker.exceeded {
		err = errors.NewUploadTooLarge(h.options.MaxUploadBytes)
	}
	h.writeError(w, r, err)
}

// uploadBody returns the CSV stream of an upload: the "file" part of a
// multipart form, or the raw body otherwise
func uploadBody(r *http.Request) (string, io.Reader, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		name := r.URL.Query().Get("fileName")
		if name == "" {
			name = defaultUploadName
		}
		return name, r.Body, nil
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return "", nil, errors.NewInvalidInput("invalid multipart upload").WithField("reason", err.Error())
	}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return "", nil, errors.NewInvalidInput("multipart upload has no file part")
		}
		if err != nil {
			return "", nil, errors.NewInvalidInput("invalid multipart upload").WithField("reason", err.Error())
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		name := part.FileName()
		if name == "" {
			name = defaultUploadName
		}
		return name, part, nil
	}
}

func (h *APIHandler) handleUploads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.service.Uploads())

	case http.MethodDelete:
		deleted, err := h.service.DeleteUploads(r.Context(), listParam(r.URL.Query(), "id")...)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})

	default:
		methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

func (h *APIHandler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	values := r.URL.Query()
	filter, err := parseFilter(values, h.options.Location)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	overview, err := h.service.Overview(r.Context(), filter, intParam(values, "topAgents", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *APIHandler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	kind, err := dashboard.ParseAnalysisKind(strings.TrimPrefix(r.URL.Path, "/api/analysis/"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter, err := parseFilter(r.URL.Query(), h.options.Location)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	analysis, err := h.service.Analysis(r.Context(), kind, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (h *APIHandler) handleTable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	values := r.URL.Query()
	filter, err := parseFilter(values, h.options.Location)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.service.Table(r.Context(), parseTableQuery(values, filter, h.options.DefaultPageSize))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) handleColumns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"columns":         interaction.Columns(),
		"visible":         interaction.DefaultLayout().Visible(),
		"filterable":      query.FilterableColumns,
		"pageSizes":       query.PageSizes,
		"defaultPageSize": h.options.DefaultPageSize,
	})
}

func (h *APIHandler) handleFilters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	options, err := h.service.FilterOptions(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, options)
}

func (h *APIHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/export/")
	format, ok := export.ParseFormat(name)
	if !ok {
		h.writeError(w, r, errors.NewNotFound(fmt.Sprintf("unknown export format %q", name)))
		return
	}

	values := r.URL.Query()
	filter, err := parseFilter(values, h.options.Location)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// rendered in full first so a failure can still be reported as JSON
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), format, filter, parseColumns(values), &buf); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.FileName(h.now())))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
