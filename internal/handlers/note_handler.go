package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/notewell/notewell/internal/auth"
	"github.com/notewell/notewell/internal/database"
	"github.com/notewell/notewell/internal/dto"
	"github.com/notewell/notewell/internal/services"
)

const schemaHint = "Notes table is missing. Visit /setup/fix-schema to create the schema."

type NoteHandler struct {
	notes *services.NoteService
}

func NewNoteHandler(notes *services.NoteService) *NoteHandler {
	return &NoteHandler{notes: notes}
}

func (h *NoteHandler) Create(c *fiber.Ctx) error {
	userID, err := auth.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.CreateNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	note, err := h.notes.Create(userID, req)
	if err != nil {
		if errors.Is(err, services.ErrTitleRequired) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "Title is required",
			})
		}
		return storeError(c, err, "Failed to create note")
	}

	return c.Status(fiber.StatusCreated).JSON(note)
}

func (h *NoteHandler) List(c *fiber.Ctx) error {
	userID, err := auth.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	notes, err := h.notes.List(userID)
	if err != nil {
		return storeError(c, err, "Failed to fetch notes")
	}

	return c.JSON(notes)
}

func (h *NoteHandler) Update(c *fiber.Ctx) error {
	userID, err := auth.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	noteID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid note ID",
		})
	}

	var req dto.UpdateNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid JSON",
		})
	}

	note, err := h.notes.Update(userID, noteID, req)
	if err != nil {
		if errors.Is(err, services.ErrNoteNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return storeError(c, err, "Database update failed")
	}

	return c.JSON(note)
}

func (h *NoteHandler) Delete(c *fiber.Ctx) error {
	userID, err := auth.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	noteID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid note ID",
		})
	}

	if err := h.notes.Delete(userID, noteID); err != nil {
		if errors.Is(err, services.ErrNoteNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return storeError(c, err, "Failed to delete note")
	}

	return c.JSON(dto.DeleteResponse{Success: true})
}

// storeError passes the store's message through, attaching the setup hint
// when the failure is the known missing-relation condition.
func storeError(c *fiber.Ctx, err error, message string) error {
	resp := dto.ErrorResponse{Error: true, Message: message + ": " + err.Error()}
	if database.IsMissingRelation(err) {
		resp.Solution = schemaHint
	}
	return c.Status(fiber.StatusInternalServerError).JSON(resp)
}
