package handlers

import (
	"pack-battle-system/middleware"
	"pack-battle-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCatalogRoutes(app *fiber.App, catalogService *services.CatalogService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/boxes", catalogService.GetAllBoxes)
	secured.Get("/boxes/:id", catalogService.GetBoxByID)

	admin := secured.Group("/admin")
	admin.Post("/boxes", catalogService.CreateBox)
	admin.Put("/boxes/:id/sealed-products", catalogService.PutSealedProducts)
}
