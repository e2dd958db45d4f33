package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/invigo/invigo-backend/internal/config"
	"github.com/invigo/invigo-backend/internal/extract"
	"github.com/invigo/invigo-backend/internal/model"
	"github.com/invigo/invigo-backend/internal/response"
	"github.com/invigo/invigo-backend/internal/service"
	"github.com/invigo/invigo-backend/internal/validator"
)

// ExamHandler handles exam creation and reporting endpoints.
type ExamHandler struct {
	cfg          *config.Config
	examService  *service.ExamService
	tokenService *service.TokenService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(cfg *config.Config, examService *service.ExamService, tokenService *service.TokenService) *ExamHandler {
	return &ExamHandler{
		cfg:          cfg,
		examService:  examService,
		tokenService: tokenService,
	}
}

// CreateExam godoc
// POST /api/v1/exams
// Builds an exam from an uploaded question paper: the document goes through
// the extraction service, options are shuffled, and the exam is stored. The
// response carries the exam plus a one-time management token.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes)

	var req model.CreateExamRequest
	if fields := validator.BindForm(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	file, header, err := c.Request.FormFile("document")
	if err != nil {
		if errors.As(err, new(*http.MaxBytesError)) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	exam, err := h.examService.CreateFromDocument(c.Request.Context(), &req, header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidSolutionKey), errors.Is(err, extract.ErrMalformedExtraction):
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrExtractionFailed)
		default:
			response.Fail(c, http.StatusBadGateway, response.ErrStoreUnavailable)
		}
		return
	}

	token, err := h.tokenService.IssueManagementToken(exam.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"exam":             exam,
		"management_token": token,
	})
}

// GetPaper godoc
// GET /api/v1/exams/:exam_id/paper
// Returns the student-facing exam payload (no solution key).
func (h *ExamHandler) GetPaper(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	payload, err := h.examService.GetPaper(c.Request.Context(), examID)
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paper": payload})
}

// ListResults godoc
// GET /api/v1/exams/:exam_id/results
// Lists persisted attempt results for an exam. Requires a management token.
func (h *ExamHandler) ListResults(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	results, pagination, err := h.examService.ListResults(c.Request.Context(), examID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, pagination)
}

// ListViolations godoc
// GET /api/v1/exams/:exam_id/violations
// Lists integrity violations recorded for an exam. Requires a management token.
func (h *ExamHandler) ListViolations(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	violations, err := h.examService.ListViolations(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"violations": violations})
}
