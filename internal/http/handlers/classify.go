package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/recycleright-backend/internal/domain/waste"
	"github.com/yungbote/recycleright-backend/internal/http/response"
	"github.com/yungbote/recycleright-backend/internal/platform/apierr"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

// DefaultMaxImageBytes bounds uploads when no limit is configured.
const DefaultMaxImageBytes = 10 << 20

type Classifier interface {
	ClassifyInRegion(ctx context.Context, img []byte, region string) (waste.ClassificationResult, error)
}

type ClassifyHandler struct {
	log      *logger.Logger
	svc      Classifier
	maxBytes int64
}

func NewClassifyHandler(log *logger.Logger, svc Classifier, maxBytes int64) *ClassifyHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &ClassifyHandler{log: log.With("handler", "ClassifyHandler"), svc: svc, maxBytes: maxBytes}
}

// POST /api/classify
// multipart field "image", or the raw image as the request body. ?region= picks guidance.
func (h *ClassifyHandler) Classify(c *gin.Context) {
	img, err := h.readImage(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	res, err := h.svc.ClassifyInRegion(c.Request.Context(), img, c.Query("region"))
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}

func (h *ClassifyHandler) readImage(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)

	var src io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, apierr.BadRequest("missing_image", fmt.Errorf("multipart field \"image\" is required"))
		}
		if fh.Size > h.maxBytes {
			return nil, tooLarge(h.maxBytes)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, apierr.BadRequest("missing_image", err)
		}
		defer f.Close()
		src = f
	}

	img, err := io.ReadAll(io.LimitReader(src, h.maxBytes+1))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, tooLarge(h.maxBytes)
		}
		return nil, apierr.BadRequest("missing_image", err)
	}
	if int64(len(img)) > h.maxBytes {
		return nil, tooLarge(h.maxBytes)
	}
	if len(img) == 0 {
		return nil, apierr.BadRequest("missing_image", fmt.Errorf("request carried no image"))
	}
	return img, nil
}

func tooLarge(limit int64) error {
	return apierr.New(http.StatusRequestEntityTooLarge, "image_too_large", fmt.Errorf("image exceeds %d bytes", limit))
}
