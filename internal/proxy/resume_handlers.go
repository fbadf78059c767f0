package proxy

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/skillspeak/interview-proxy/internal/errors"
	"github.com/skillspeak/interview-proxy/internal/extract"
	"github.com/skillspeak/interview-proxy/internal/logger"
	"github.com/skillspeak/interview-proxy/internal/resume"
)

// parseFailure keeps validation messages and hides everything else behind
// fallback.
func parseFailure(c *gin.Context, err error, fallback string) {
	var verr *apierrors.ValidationError
	if errors.As(err, &verr) {
		apierrors.AbortWithBadRequest(c, verr.Message)
		return
	}
	apierrors.AbortWithInternal(c, fallback)
}

// ParseResumeHandler handles POST /api/parse-resume (multipart resume).
func ParseResumeHandler(logger *logger.Logger, svc *resume.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.WithContext(c.Request.Context()).WithComponent("resume-handler")

		form, err := multipartForm(c)
		if err != nil {
			apierrors.AbortWithError(c, err)
			return
		}
		fh := formFile(form, "resume")
		if fh == nil {
			apierrors.AbortWithBadRequest(c, "Resume file is required")
			return
		}

		text, err := extract.FromFileHeader(fh)
		if err != nil {
			log.Warn("resume extraction failed", slog.String("file", fh.Filename), slog.String("error", err.Error()))
			parseFailure(c, err, "Failed to parse resume")
			return
		}

		result, err := svc.ParseAndStore(c.Request.Context(), text, resume.SourceFile)
		if err != nil {
			log.Error("resume parse failed", slog.String("error", err.Error()))
			parseFailure(c, err, "Failed to parse resume")
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

type parseTextRequest struct {
	ResumeText string `json:"resumeText"`
}

// ParseResumeTextHandler handles POST /api/parse-resume-text.
func ParseResumeTextHandler(logger *logger.Logger, svc *resume.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.WithContext(c.Request.Context()).WithComponent("resume-handler")

		var req parseTextRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.AbortWithBadRequest(c, "Resume text is required")
			return
		}

		result, err := svc.ParseAndStore(c.Request.Context(), req.ResumeText, resume.SourceText)
		if err != nil {
			log.Error("resume text parse failed", slog.String("error", err.Error()))
			parseFailure(c, err, "Failed to parse resume text")
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// ChatWithResumeHandler handles POST /api/chat-with-resume. The reply is
// streamed to the caller as SSE and mirrored to its listeners when a client
// identity is given.
func ChatWithResumeHandler(logger *logger.Logger, svc *resume.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resume.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.AbortWithBadRequest(c, "Message is required")
			return
		}

		identity := clientIdentity(c)
		ctx := withClientID(c.Request.Context(), identity)
		log := logger.WithContext(ctx).WithComponent("resume-chat-handler")

		out := newSSEResponse(c)
		err := svc.Chat(ctx, identity, req, out.Emit)
		if err == nil || out.Started() {
			if err != nil && ctx.Err() == nil {
				log.Warn("resume chat ended with error", slog.String("error", err.Error()))
			}
			return
		}

		log.Error("resume chat failed", slog.String("error", err.Error()))
		parseFailure(c, err, "Failed to generate response")
	}
}
