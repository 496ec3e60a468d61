package handlers

import (
	"errors"
	"strings"

	"memchat/internal/dto"
	"memchat/internal/models"
	"memchat/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type MemoryHandler struct {
	memoryService *service.MemoryService
	logger        *zap.Logger
}

func NewMemoryHandler(memoryService *service.MemoryService, logger *zap.Logger) *MemoryHandler {
	return &MemoryHandler{
		memoryService: memoryService,
		logger:        logger,
	}
}

// GetStore godoc
// @Summary Get the knowledge store
// @Description Return every domain and document in store order
// @Tags memory
// @Produce json
// @Security Bearer
// @Success 200 {object} map[string]interface{}
// @Router /api/memory [get]
func (h *MemoryHandler) GetStore(c *fiber.Ctx) error {
	data, err := h.memoryService.Export()
	if err != nil {
		h.logger.Error("Failed to render memory store", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to render memory store",
		})
	}
	c.Type("json")
	return c.Send(data)
}

// ReplaceStore godoc
// @Summary Replace the knowledge store
// @Description Validate the payload and swap it in for the whole store
// @Tags memory
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} dto.ImportResponse
// @Failure 422 {object} dto.FindingsResponse
// @Router /api/memory [post]
func (h *MemoryHandler) ReplaceStore(c *fiber.Ctx) error {
	if err := h.memoryService.Replace(c.UserContext(), c.Body()); err != nil {
		return h.importFailed(c, err)
	}
	snapshot := h.memoryService.Snapshot()
	return c.JSON(dto.ImportResponse{
		Domains:   len(snapshot.Domains()),
		Documents: snapshot.Len(),
	})
}

// ImportStore godoc
// @Summary Import documents
// @Description Validate the payload and merge it into the store. Domains in the payload replace existing ones.
// @Tags memory
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} dto.ImportResponse
// @Failure 422 {object} dto.FindingsResponse
// @Router /api/memory/import [post]
func (h *MemoryHandler) ImportStore(c *fiber.Ctx) error {
	domains, documents, err := h.memoryService.Import(c.UserContext(), c.Body())
	if err != nil {
		return h.importFailed(c, err)
	}
	return c.JSON(dto.ImportResponse{Domains: domains, Documents: documents})
}

func (h *MemoryHandler) importFailed(c *fiber.Ctx, err error) error {
	var importErr *service.ImportError
	if errors.As(err, &importErr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.FindingsResponse{
			Error:    "Import validation failed",
			Findings: importErr.Findings,
		})
	}
	h.logger.Error("Memory import failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Memory import failed",
	})
}

// ExportStore godoc
// @Summary Download the knowledge store
// @Tags memory
// @Produce json
// @Security Bearer
// @Success 200 {file} file
// @Router /api/memory/export [get]
func (h *MemoryHandler) ExportStore(c *fiber.Ctx) error {
	data, err := h.memoryService.Export()
	if err != nil {
		h.logger.Error("Failed to export memory store", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export memory store",
		})
	}
	c.Attachment("memory-store.json")
	c.Type("json")
	return c.Send(data)
}

// Search godoc
// @Summary Search memory
// @Description Keyword search over titles, descriptions, block content and tags
// @Tags memory
// @Produce json
// @Security Bearer
// @Param q query string true "Search query"
// @Param domain query string false "Restrict to one domain"
// @Param tags query string false "Comma-separated tags, any may match"
// @Param before query string false "Only documents older than this timestamp"
// @Param after query string false "Only documents newer than this timestamp"
// @Param status query string false "current, outdated or deprecated"
// @Success 200 {object} dto.SearchResponse
// @Failure 400 {object} map[string]string
// @Router /api/memory/search [get]
func (h *MemoryHandler) Search(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	filter := &models.SearchFilter{
		Before: c.Query("before"),
		After:  c.Query("after"),
		Status: models.KnowledgeStatus(c.Query("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid status",
		})
	}
	for _, tag := range strings.Split(c.Query("tags"), ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			filter.Tags = append(filter.Tags, tag)
		}
	}

	domain := c.Query("domain")
	results := h.memoryService.Search(query, domain, filter)
	return c.JSON(dto.SearchResponse{
		Query:   query,
		Domain:  domain,
		Count:   len(results),
		Results: results,
	})
}

// WriteDocument godoc
// @Summary Write a document
// @Description Store content as a new single-block document
// @Tags memory
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body dto.WriteMemoryRequest true "Document content"
// @Success 201 {object} models.KnowledgeDocument
// @Failure 400 {object} map[string]string
// @Router /api/memory/documents [post]
func (h *MemoryHandler) WriteDocument(c *fiber.Ctx) error {
	var req dto.WriteMemoryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	doc, err := h.memoryService.WriteAndSave(c.UserContext(), req.Content, req.Domain, req.Metadata)
	if err != nil {
		h.logger.Error("Failed to save memory store", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save memory store",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

// DeleteDomain godoc
// @Summary Delete a domain
// @Tags memory
// @Security Bearer
// @Param domain path string true "Domain name"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/memory/{domain} [delete]
func (h *MemoryHandler) DeleteDomain(c *fiber.Ctx) error {
	deleted, err := h.memoryService.DeleteDomain(c.UserContext(), c.Params("domain"))
	return h.deleted(c, deleted, err, "Domain not found")
}

// DeleteDocument godoc
// @Summary Delete a document
// @Tags memory
// @Security Bearer
// @Param domain path string true "Domain name"
// @Param docId path string true "Document ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/memory/{domain}/{docId} [delete]
func (h *MemoryHandler) DeleteDocument(c *fiber.Ctx) error {
	deleted, err := h.memoryService.Delete(c.UserContext(), c.Params("domain"), c.Params("docId"))
	return h.deleted(c, deleted, err, "Document not found")
}

func (h *MemoryHandler) deleted(c *fiber.Ctx, deleted bool, err error, notFound string) error {
	if err != nil {
		h.logger.Error("Failed to save memory store", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save memory store",
		})
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": notFound,
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
