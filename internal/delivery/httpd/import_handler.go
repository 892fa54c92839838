package httpd

import (
	"errors"
	"net/http"
	"strings"

	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	"github.com/RubachokBoss/exam-grading/import-service/internal/service"
	"github.com/RubachokBoss/exam-grading/import-service/pkg/utils"
	"github.com/go-chi/chi/v5"
)

const multipartMemory = 32 << 20

func (h *Handler) SubmitUpload(w http.ResponseWriter, r *http.Request) {
	if h.deps.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.deps.MaxUploadSize)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, "Archive exceeds the upload size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("archive")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Form file 'archive' is required")
		return
	}
	defer file.Close()

	req := models.SubmitImportRequest{
		SubjectID:  r.FormValue("subject_id"),
		SemesterID: r.FormValue("semester_id"),
		ExamID:     r.FormValue("exam_id"),
		UploadedBy: r.FormValue("uploaded_by"),
	}

	resp, err := h.deps.Imports.SubmitUpload(r.Context(), service.Upload{
		FileName: header.Filename,
		Reader:   file,
	}, req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeSuccessStatus(w, http.StatusAccepted, resp)
}

func (h *Handler) SubmitLocal(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitImportRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Transient = false

	resp, err := h.deps.Imports.SubmitImport(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeSuccessStatus(w, http.StatusAccepted, resp)
}

func (h *Handler) ListImports(w http.ResponseWriter, r *http.Request) {
	examID := strings.TrimSpace(r.URL.Query().Get("exam_id"))
	limit := getIntQueryParam(r, "limit", 20)
	offset := getIntQueryParam(r, "offset", 0)

	resp, err := h.deps.Jobs.List(r.Context(), examID, limit, offset)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, resp)
}

func (h *Handler) GetImportStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.deps.Jobs.GetStatus(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, status)
}

func (h *Handler) GetImportResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.deps.Jobs.GetResults(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, results)
}

func (h *Handler) CancelImport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := h.deps.Jobs.Cancel(r.Context(), jobID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"message": "Cancellation requested",
		"job_id":  jobID,
	})
}

func (h *Handler) CheckPlagiarism(w http.ResponseWriter, r *http.Request) {
	if h.deps.Plagiarism == nil {
		writeError(w, http.StatusServiceUnavailable, "Plagiarism checks are disabled")
		return
	}

	resp, err := h.deps.Plagiarism.CheckSubmission(r.Context(), chi.URLParam(r, "submission_id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, resp)
}
