package proxy

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/skillspeak/interview-proxy/internal/errors"
	"github.com/skillspeak/interview-proxy/internal/extract"
	"github.com/skillspeak/interview-proxy/internal/interview"
	"github.com/skillspeak/interview-proxy/internal/logger"
)

// maxMultipartMemory bounds the in-memory part of a multipart upload; two
// files at the extraction limit fit.
const maxMultipartMemory = 2*extract.MaxFileSize + 1<<20

// formFile returns the first file uploaded under any of names.
func formFile(form *multipart.Form, names ...string) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	for _, name := range names {
		if files := form.File[name]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

// formValue returns the first non-empty text field among names.
func formValue(form *multipart.Form, names ...string) string {
	if form == nil {
		return ""
	}
	for _, name := range names {
		if values := form.Value[name]; len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return ""
}

func multipartForm(c *gin.Context) (*multipart.Form, error) {
	if err := c.Request.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, apierrors.NewValidationError("Invalid multipart form")
	}
	return c.Request.MultipartForm, nil
}

// GenerateQuestionsHandler handles POST /api/generate-interview-questions.
// The resume comes from the resume file or the resumeText field; the job
// description from the jobDescription file, jobDescriptionText or
// jobDescription.
func GenerateQuestionsHandler(logger *logger.Logger, svc *interview.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.WithContext(c.Request.Context()).WithComponent("questions-handler")

		form, err := multipartForm(c)
		if err != nil {
			apierrors.AbortWithError(c, err)
			return
		}

		var in interview.QuestionsInput
		if fh := formFile(form, "resume"); fh != nil {
			text, err := extract.FromFileHeader(fh)
			if err != nil {
				log.Warn("resume extraction failed", slog.String("file", fh.Filename), slog.String("error", err.Error()))
				parseFailure(c, err, extract.FailedMessage)
				return
			}
			in.Resume = text
			in.ResumeFromFile = true
		} else if text := formValue(form, "resumeText"); text != "" {
			in.Resume = text
		} else {
			apierrors.AbortWithBadRequest(c, "Resume file is required")
			return
		}

		if fh := formFile(form, "jobDescription"); fh != nil {
			text, err := extract.FromFileHeader(fh)
			if err != nil {
				log.Warn("job description extraction failed", slog.String("file", fh.Filename), slog.String("error", err.Error()))
				parseFailure(c, err, extract.FailedMessage)
				return
			}
			in.JobDescription = text
		} else {
			in.JobDescription = formValue(form, "jobDescriptionText", "jobDescription")
		}

		set, err := svc.GenerateQuestions(c.Request.Context(), in)
		if errors.Is(err, interview.ErrQuestionsFailed) {
			apierrors.AbortWithInternal(c, interview.QuestionsFailedMessage)
			return
		}
		if err != nil {
			apierrors.AbortWithError(c, err)
			return
		}

		c.Data(http.StatusOK, "application/json; charset=utf-8", set)
	}
}

// GenerateAnswersHandler handles POST /api/generate-answers. Progress,
// ordered answers and a final complete event are streamed as SSE.
func GenerateAnswersHandler(logger *logger.Logger, svc *interview.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.WithContext(c.Request.Context()).WithComponent("answers-handler")

		var req interview.AnswersRequest
		if err := c.ShouldBindJSON(&req); err != nil || len(req.Questions) == 0 {
			apierrors.AbortWithBadRequest(c, "Questions array is required")
			return
		}

		out := newSSEResponse(c)
		if _, err := svc.GenerateAnswers(c.Request.Context(), req, out.Emit); err != nil {
			if c.Request.Context().Err() != nil {
				log.Info("client disconnected during answer generation")
				return
			}
			log.Error("answer generation failed", slog.String("error", err.Error()))
			if !out.Started() {
				apierrors.AbortWithInternal(c, "Failed to generate answers")
				return
			}
			_ = out.Emit(interview.NewErrorEvent("Failed to generate answers"))
		}
	}
}

// ExtractTextHandler handles POST /api/extract-text and returns the plain
// text of the uploaded resume (or file) part.
func ExtractTextHandler(logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.WithContext(c.Request.Context()).WithComponent("extract-handler")

		form, err := multipartForm(c)
		if err != nil {
			apierrors.AbortWithError(c, err)
			return
		}
		fh := formFile(form, "resume", "file")
		if fh == nil {
			apierrors.AbortWithBadRequest(c, "File is required")
			return
		}

		text, err := extract.FromFileHeader(fh)
		if err != nil {
			log.Warn("text extraction failed", slog.String("file", fh.Filename), slog.String("error", err.Error()))
			parseFailure(c, err, extract.FailedMessage)
			return
		}

		c.JSON(http.StatusOK, gin.H{"text": text})
	}
}
