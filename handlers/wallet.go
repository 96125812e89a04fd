package handlers

import (
	"pack-battle-system/middleware"
	"pack-battle-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWalletRoutes(app *fiber.App, walletService *services.WalletService, orderService *services.OrderService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/users/me/wallet", walletService.GetMyWallet)
	secured.Get("/users/me/wallet/transactions", walletService.GetMyTransactions)
	secured.Post("/orders", orderService.CreateOrderHandler)

	// Provider callbacks arrive with the gateway token but no user context.
	app.Post("/webhooks/payments", walletService.PaymentWebhook)
	app.Post("/webhooks/orders", orderService.OrderWebhook)
}
