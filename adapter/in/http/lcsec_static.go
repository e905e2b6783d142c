package http

import (
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
)

// StaticHandler serves the bundled frontend. The build directory is
// optional: the API works headless and GET / degrades to a JSON notice.
type StaticHandler struct {
	buildDir string
}

func NewStaticHandler(buildDir string) *StaticHandler {
	return &StaticHandler{
		buildDir: buildDir,
	}
}

func (h *StaticHandler) Register(app *fiber.App) {
	app.Get("/api", h.Welcome)

	if h.hasBuild() {
		app.Static("/static", filepath.Join(h.buildDir, "static"))
	}
	app.Get("/", h.Index)
}

// Welcome identifies the API for clients probing the bare prefix.
func (h *StaticHandler) Welcome(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "Welcome to the Scam/Ham Prediction API",
	})
}

// Index serves the frontend entry point, or a JSON notice when no build
// has been bundled with the server.
func (h *StaticHandler) Index(c *fiber.Ctx) error {
	index := filepath.Join(h.buildDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		return c.JSON(fiber.Map{
			"message": "frontend build not found, API only",
		})
	}
	return c.SendFile(index)
}

func (h *StaticHandler) hasBuild() bool {
	info, err := os.Stat(h.buildDir)
	return err == nil && info.IsDir()
}
