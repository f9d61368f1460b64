package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/notewell/notewell/internal/config"
	"github.com/notewell/notewell/internal/dto"
	"github.com/notewell/notewell/internal/services"
)

type ShareHandler struct {
	notes *services.NoteService
	cfg   *config.Config
}

func NewShareHandler(notes *services.NoteService, cfg *config.Config) *ShareHandler {
	return &ShareHandler{notes: notes, cfg: cfg}
}

// Enable mints a share token and returns the public URL for it.
func (h *ShareHandler) Enable(c *fiber.Ctx) error {
	var req dto.ShareRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	noteID, err := uuid.Parse(req.NoteID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid note ID",
		})
	}

	shareID, err := h.notes.Share(noteID)
	if err != nil {
		if errors.Is(err, services.ErrNoteNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "Note not found",
			})
		}
		return storeError(c, err, "Failed to share note")
	}

	baseURL := strings.TrimRight(h.cfg.BaseURL, "/")
	return c.JSON(dto.ShareResponse{
		ShareID:  shareID,
		ShareURL: baseURL + "/shared/" + shareID,
	})
}

func (h *ShareHandler) Disable(c *fiber.Ctx) error {
	var req dto.ShareRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	noteID, err := uuid.Parse(req.NoteID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid note ID",
		})
	}

	if err := h.notes.Unshare(noteID); err != nil {
		return storeError(c, err, "Failed to unshare note")
	}

	return c.JSON(dto.DeleteResponse{Success: true})
}

// GetShared serves a note to unauthenticated visitors by capability token. A
// share that was disabled 404s even when the token string is still known.
func (h *ShareHandler) GetShared(c *fiber.Ctx) error {
	shareID := c.Params("shareId")
	if shareID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Missing share ID",
		})
	}

	note, err := h.notes.GetShared(shareID)
	if err != nil {
		if errors.Is(err, services.ErrNoteNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "Note not found",
			})
		}
		return storeError(c, err, "Failed to fetch shared note")
	}

	return c.JSON(note)
}
