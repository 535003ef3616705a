package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/schemadiagram/internal/common"
	"github.com/dmitrijs2005/schemadiagram/internal/filex"
	"github.com/dmitrijs2005/schemadiagram/internal/logging"
	"github.com/dmitrijs2005/schemadiagram/internal/server/models"
	"github.com/dmitrijs2005/schemadiagram/internal/server/processing"
	"github.com/dmitrijs2005/schemadiagram/internal/server/storage"
)

// DiagramService is what the handlers need from processing.Service.
type DiagramService interface {
	Submit(ctx context.Context, req *models.DiagramRequest, localPath string) error
	Retrieve(ctx context.Context, key models.DiagramKey) (*models.DiagramRequest, string, error)
	Artifact(ctx context.Context, key models.DiagramKey, kind storage.FileKind) (string, error)
}

type SubmissionLister interface {
	ListRecent(ctx context.Context, limit int) ([]*models.Submission, error)
}

type Handler struct {
	diagrams  DiagramService
	registry  SubmissionLister
	uploadDir string
	validate  *validator.Validate
	logger    logging.Logger

	newKey func() (models.DiagramKey, error)
}

func NewHandler(d DiagramService, r SubmissionLister, uploadDir string, l logging.Logger) (*Handler, error) {
	dir, err := filex.EnsureDir(uploadDir)
	if err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	return &Handler{
		diagrams:  d,
		registry:  r,
		uploadDir: dir,
		validate:  newValidator(),
		logger:    l.With("module", "web"),
		newKey:    models.NewDiagramKey,
	}, nil
}

// POST /api/schemacrawler (multipart/form-data)
// fields: file, name, email, title (optional)
func (h *Handler) Upload(c *gin.Context) {
	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		err = bodyError(c, err)
		if statusFor(err) == http.StatusRequestEntityTooLarge {
			h.respondError(c, err)
			return
		}
		h.respondError(c, fmt.Errorf("%w: %v", common.ErrorValidation, err))
		return
	}
	form.normalize()
	if err := h.validate.Struct(&form); err != nil {
		h.respondError(c, validationError(err))
		return
	}

	key, err := h.newKey()
	if err != nil {
		h.respondError(c, err)
		return
	}

	local, err := h.stage(form, key)
	if err != nil {
		h.respondError(c, err)
		return
	}

	req := &models.DiagramRequest{Key: key, Title: form.Title, Name: form.Name, Email: form.Email}
	if err := h.diagrams.Submit(c.Request.Context(), req, local); err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Location", common.APIPrefix+"/"+key.String())
	c.JSON(http.StatusCreated, req)
}

// stage copies the uploaded file to the upload dir; the task removes it.
func (h *Handler) stage(form uploadForm, key models.DiagramKey) (string, error) {
	src, err := form.File.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	local := filepath.Join(h.uploadDir, key.String()+".upload")
	if _, err := filex.WriteAtomic(local, src); err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	return local, nil
}

func keyParam(c *gin.Context) (models.DiagramKey, error) {
	return models.ParseDiagramKey(c.Param("key"))
}

// GET /api/schemacrawler/:key
func (h *Handler) Result(c *gin.Context) {
	key, err := keyParam(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	req, img, err := h.diagrams.Retrieve(c.Request.Context(), key)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if img == "" {
		// not processed yet: a 200 without error would read as success
		c.JSON(http.StatusNotFound, errorResponse{
			Key:    key.String(),
			Status: string(models.StatusPending),
			Error:  "diagram not ready",
		})
		return
	}
	c.JSON(http.StatusOK, req)
}

// GET /api/schemacrawler/:key/diagram
func (h *Handler) Diagram(c *gin.Context) {
	key, err := keyParam(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	_, img, err := h.diagrams.Retrieve(c.Request.Context(), key)
	if err == nil && img == "" {
		err = common.ErrorNotFound
	}
	var pe *processing.ProcessingError
	if errors.As(err, &pe) {
		// a failed render has no diagram
		err = common.ErrorNotFound
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Type", storage.KindImage.ContentType())
	c.File(img)
}

// GET /api/schemacrawler/:key/database
func (h *Handler) Database(c *gin.Context) {
	key, err := keyParam(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	path, err := h.diagrams.Artifact(c.Request.Context(), key, storage.KindDatabase)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Type", storage.KindDatabase.ContentType())
	c.FileAttachment(path, key.String()+"."+storage.KindDatabase.Extension())
}

// GET /api/requests?limit=N
func (h *Handler) ListRequests(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.respondError(c, fmt.Errorf("%w: limit must be a non-negative integer", common.ErrorValidation))
			return
		}
		limit = n
	}

	subs, err := h.registry.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": subs})
}

// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
