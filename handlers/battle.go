package handlers

import (
	"pack-battle-system/middleware"
	"pack-battle-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBattleRoutes(app *fiber.App, battleService *services.BattleService, roundService *services.RoundService, settlementService *services.SettlementService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Battle lifecycle
	secured.Post("/battles", battleService.CreateBattleHandler)
	secured.Get("/battles", battleService.GetAllBattles)
	secured.Get("/battles/:id", battleService.GetBattleByID)
	secured.Delete("/battles/:id", battleService.DeleteBattleHandler) // admin only

	// Participation
	secured.Post("/battles/:id/join", battleService.JoinBattleHandler)
	secured.Post("/battles/:id/pull", roundService.PullHandler)
	secured.Post("/battles/:id/settle", settlementService.SettleHandler)

	// Live view
	secured.Get("/battles/:id/stream", battleService.StreamBattleSSE)
}
