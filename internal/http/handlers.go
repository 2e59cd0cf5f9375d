package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sikdae/internal/core"
	"sikdae/internal/export"
	applog "sikdae/internal/log"
	"sikdae/internal/services"
)

// multipartMemory bounds the in-memory share of a parsed upload; larger
// files spill to temporary files.
const multipartMemory = 4 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady runs every registered dependency check.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := make(map[string]string, len(s.readyChecks)+1)
	if s.analyzer == nil {
		checks["analyzer"] = "not_configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["analyzer"] = "ok"
	}
	for name, check := range s.readyChecks {
		if err := check(ctx); err != nil {
			checks[name] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newPolicyResponse(s.analyzer.Policy()))
}

// handleCreateAnalysis analyzes a multipart upload (field "file", optional
// "label") and returns the stored report.
func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		code := statusForError(err, http.StatusBadRequest)
		if code == http.StatusRequestEntityTooLarge {
			writeError(w, code, fmt.Sprintf("upload exceeds %d bytes", s.maxUpload))
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart/form-data with a file field")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Failed to remove multipart temp files", applog.FieldError, err.Error())
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	name := uploadName(header.Filename)
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing file name")
		return
	}

	rep, err := s.analyzer.AnalyzeUpload(ctx, name, file, services.Meta{Label: sanitizeLabel(r.FormValue("label"))})
	if err != nil {
		writeError(w, statusForError(err, http.StatusBadRequest), err.Error())
		return
	}
	w.Header().Set("Location", "/v1/analyses/"+rep.ID)
	writeJSON(w, http.StatusCreated, newAnalysisResponse(rep))
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"analyses": s.analyzer.List()})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.report(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newAnalysisResponse(rep))
}

// handleDetails lists the high-spender rows of one class, optionally
// narrowed to a single user. An empty user parameter selects the rows with
// a blank identity.
func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.report(w, r)
	if !ok {
		return
	}
	class := core.MealClass(chi.URLParam(r, "class"))
	result, ok := rep.Report.Class(class)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown meal class %q", class))
		return
	}

	resp := detailsResponse{AnalysisID: rep.ID, Class: class.String()}
	if users, present := r.URL.Query()["user"]; present {
		user := sanitizeInput(users[0])
		resp.User = &user
		resp.Rows = newDetailViews(result.DetailsFor(user))
	} else {
		resp.Rows = newDetailViews(result.HighSpenders)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.report(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteZip(&buf, rep.Report, rep.CreatedAt); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Export failed", applog.NewFields().
			WithComponent(applog.ComponentExport).
			WithOperation(applog.OpExport).
			WithAnalysis(rep.ID, rep.Label, rep.Source).
			WithError(err).ToSlice()...)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "sikdae-"+rep.ID+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// report resolves the {id} path parameter, writing a 404 when unknown.
func (s *Server) report(w http.ResponseWriter, r *http.Request) (*services.StoredReport, bool) {
	rep, err := s.analyzer.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusForError(err, http.StatusInternalServerError), "analysis not found")
		return nil, false
	}
	return rep, true
}
