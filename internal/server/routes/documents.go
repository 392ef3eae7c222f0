package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/knosphere/backend/internal/queue"
	mid "github.com/knosphere/backend/internal/server/middleware"
	"github.com/knosphere/backend/internal/util"
	"github.com/knosphere/backend/pkg/common"
	"github.com/knosphere/backend/pkg/logger"
	"github.com/knosphere/backend/pkg/store"
)

type createDocumentRequest struct {
	Title     string   `json:"title" validate:"required"`
	Content   string   `json:"content" validate:"required"`
	IsPublic  bool     `json:"is_public"`
	ReadACL   []string `json:"read_acl"`
	WriteACL  []string `json:"write_acl"`
	DeleteACL []string `json:"delete_acl"`
	Tags      []string `json:"tags"`
}

// CreateDocumentHandler stores a new document and enqueues its ingestion.
// Embedding and graph extraction happen asynchronously; the response is the
// accepted document without them.
func CreateDocumentHandler(c echo.Context) error {
	cc := c.(*mid.AppContext)

	req := new(createDocumentRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	doc := &common.Document{
		ID:        util.MustNewID(),
		Title:     req.Title,
		Content:   req.Content,
		OwnerID:   cc.User.UserID,
		IsPublic:  req.IsPublic,
		ReadACL:   req.ReadACL,
		WriteACL:  req.WriteACL,
		DeleteACL: req.DeleteACL,
		Tags:      req.Tags,
	}

	ctx := c.Request().Context()
	if err := cc.App.Store.CreateDocument(ctx, doc); err != nil {
		logger.Error("failed to create document", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create document"})
	}

	if err := queue.PublishExtractJob(cc.App.Queue, queue.ExtractJob{
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
	}); err != nil {
		logger.Error("failed to enqueue ingestion", "document", doc.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to enqueue ingestion"})
	}

	return c.JSON(http.StatusAccepted, doc)
}

// GetDocumentHandler returns a document visible to the requesting user.
// Invisible and missing documents are both a 404.
func GetDocumentHandler(c echo.Context) error {
	cc := c.(*mid.AppContext)

	doc, err := cc.App.Store.GetDocument(c.Request().Context(), c.Param("id"), cc.User.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Document not found"})
		}
		logger.Error("failed to load document", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load document"})
	}

	return c.JSON(http.StatusOK, doc)
}

// GetDocumentArchiveHandler returns a time-limited download link for the
// archived original of an owned document.
func GetDocumentArchiveHandler(c echo.Context) error {
	cc := c.(*mid.AppContext)
	if cc.App.Archive == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Archive not configured"})
	}

	ctx := c.Request().Context()
	doc, err := cc.App.Store.GetDocument(ctx, c.Param("id"), cc.User.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Document not found"})
		}
		logger.Error("failed to load document", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load document"})
	}
	if doc.OwnerID != cc.User.UserID {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Only the owner may download the archive"})
	}

	url, err := cc.App.Archive.PresignDownload(ctx, doc.OwnerID, doc.ID)
	if err != nil {
		logger.Error("failed to presign archive download", "document", doc.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create download link"})
	}

	return c.JSON(http.StatusOK, map[string]string{"url": url})
}
