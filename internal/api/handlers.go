package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mediarelay/internal/jobstore"
	"mediarelay/internal/logging"
	"mediarelay/internal/services"
	"mediarelay/internal/submission"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Channel:   s.engine.ChannelName(),
		Timestamp: time.Now().UTC().Format(dateTimeFormat),
	}
	if err := s.engine.Store().Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if stats, err := s.engine.Store().Stats(r.Context()); err == nil {
		resp.Jobs = make(map[string]int, len(stats))
		for status, count := range stats {
			resp.Jobs[string(status)] = count
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// submit accepts a multipart form with a "file" field or a raw body named by
// the X-Filename header (or ?name=). The upload is staged under the asset
// directory and released once the object store confirms it.
func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+1<<20)
	}

	var (
		body io.Reader
		name string
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			if isTooLarge(err) {
				s.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds api.max_upload_mib")
				return
			}
			s.writeError(w, http.StatusBadRequest, "invalid multipart upload")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
			return
		}
		defer file.Close()
		body, name = file, header.Filename
	} else {
		name = r.Header.Get("X-Filename")
		if name == "" {
			name = r.URL.Query().Get("name")
		}
		body = r.Body
	}
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		s.writeError(w, http.StatusBadRequest, "file name is required")
		return
	}

	staged, err := s.stage(body)
	if err != nil {
		if isTooLarge(err) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds api.max_upload_mib")
			return
		}
		s.writeServiceError(w, err)
		return
	}

	result, err := s.engine.SubmitConversion(r.Context(), submission.Asset{
		Path:         staged,
		Name:         name,
		ContentID:    r.URL.Query().Get("content_id"),
		ReleaseLocal: true,
	})
	if err != nil || result.Outcome != submission.OutcomeAccepted {
		_ = os.Remove(staged)
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	status := http.StatusAccepted
	switch result.Outcome {
	case submission.OutcomeAlreadySubmitted:
		status = http.StatusOK
	case submission.OutcomeError:
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, FromSubmission(result))
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func (s *Server) stage(body io.Reader) (string, error) {
	dir := s.engine.Config().Paths.AssetDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "api", "stage upload", "asset directory unavailable", err)
	}
	out, err := os.CreateTemp(dir, "upload-*.part")
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "api", "stage upload", "create staging file", err)
	}
	path := out.Name()
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		os.Remove(path)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close staging file: %w", err)
	}
	return path, nil
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []jobstore.TranscodeStatus
	for _, value := range r.URL.Query()["status"] {
		status, ok := jobstore.ParseTranscodeStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}
	jobs, err := s.engine.ListJobs(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := JobListResponse{Jobs: make([]ConversionJob, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, FromJob(job))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.engine.JobStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FromJob(job))
}

func (s *Server) requestSubtitles(w http.ResponseWriter, r *http.Request) {
	var body SubtitleRequestBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.engine.RequestSubtitles(r.Context(), chi.URLParam(r, "id"), body.Languages)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSubtitleResult(w, FromRequestResult(result))
}

func (s *Server) retrySubtitle(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.RetrySubtitle(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "lang"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSubtitleResult(w, FromRequestResult(result))
}

// writeSubtitleResult answers 200 for full success and 207 when at least one
// language failed.
func (s *Server) writeSubtitleResult(w http.ResponseWriter, resp SubtitleRequestResponse) {
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusMultiStatus
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) subtitleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.SubtitleStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FromStatusReport(report))
}

func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		resp RunResponse
		err  error
	)
	switch kind := chi.URLParam(r, "kind"); kind {
	case "reconcile":
		result, runErr := s.engine.RunReconciliation(ctx)
		resp, err = FromReconcileResult(result), runErr
	case "sweep":
		result, runErr := s.engine.RunStalenessSweep(ctx)
		resp, err = FromSweepResult(result), runErr
	case "subtitles":
		rec, recErr := s.engine.RunSubtitleReconciliation(ctx)
		clean, cleanErr := s.engine.CleanupStaleSubtitles(ctx, 0)
		resp, err = FromSubtitleRuns(rec, clean), errors.Join(recErr, cleanErr)
	default:
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown run kind %q", kind))
		return
	}
	if err != nil {
		resp.Error = err.Error()
		s.writeJSON(w, statusFor(err), resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(s.logger, "api request failed", "api_request_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
	}
	s.writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
