package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/notewell/notewell/internal/database"
	"github.com/notewell/notewell/internal/dto"
)

type SetupHandler struct{}

func NewSetupHandler() *SetupHandler {
	return &SetupHandler{}
}

// FixSchema runs AutoMigrate over every model, the remediation target for the
// missing-relation errors other handlers hint at.
func (h *SetupHandler) FixSchema(c *fiber.Ctx) error {
	if err := database.Migrate(); err != nil {
		slog.Error("schema migration failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to fix schema: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Schema is up to date",
		"tables":  len(database.AllModels()),
	})
}
