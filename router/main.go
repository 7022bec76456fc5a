package router

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/learnforge/marketplace-api/config"
	"github.com/learnforge/marketplace-api/database"
	"github.com/learnforge/marketplace-api/handlers"
	cart_handlers "github.com/learnforge/marketplace-api/handlers/cart"
	coupon_handlers "github.com/learnforge/marketplace-api/handlers/coupon"
	order_handlers "github.com/learnforge/marketplace-api/handlers/order"
	payment_handlers "github.com/learnforge/marketplace-api/handlers/payment"
	payout_handlers "github.com/learnforge/marketplace-api/handlers/payout"
	wallet_handlers "github.com/learnforge/marketplace-api/handlers/wallet"
	"github.com/learnforge/marketplace-api/services"
	"github.com/learnforge/marketplace-api/services/catalog"
	"github.com/learnforge/marketplace-api/services/events"
	"github.com/learnforge/marketplace-api/services/vnpay"
	"github.com/learnforge/marketplace-api/utils/auth"
	"github.com/learnforge/marketplace-api/utils/cache"
	"github.com/learnforge/marketplace-api/utils/middleware"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, store database.Storage) {
	env, err := config.Get()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if env.JWT_SECRET == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := env.JWT_ISSUER
	if jwtIssuer == "" {
		jwtIssuer = "marketplace-api"
	}

	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret: env.JWT_SECRET,
		Expiry: 24 * time.Hour,
		Issuer: jwtIssuer,
	})

	// Get DB instance (type assert from interface)
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	// Payment gateway client
	gateway, err := vnpay.NewClient(vnpay.Config{
		TmnCode:    env.VNPAY_TMN_CODE,
		HashSecret: env.VNPAY_HASH_SECRET,
		BaseURL:    env.VNPAY_BASE_URL,
		ReturnURL:  env.VNPAY_RETURN_URL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize payment gateway client: %v", err)
	}

	// Course catalog client
	catalogClient, err := catalog.NewClient(catalog.Config{BaseURL: env.CATALOG_SERVICE_URL})
	if err != nil {
		log.Fatalf("Failed to initialize catalog client: %v", err)
	}
	var catalogSvc catalog.Service = catalogClient

	// Redis backs the course cache and the event publisher; orders still
	// complete without it.
	redisURL := env.REDIS_URL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	var publisher events.Publisher = events.NewNopPublisher()
	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Course caching and completion events are disabled.", err)
	} else {
		catalogSvc = catalog.NewCachedService(catalogSvc, redisCache)
		publisher = events.NewRedisPublisher(redisCache.GetClient())
	}

	// Wire services bottom-up: wallets feed settlement, settlement feeds
	// orders and payments.
	walletService := services.NewWalletService(db)
	platformWalletService := services.NewPlatformWalletService(db)
	usageService := services.NewCouponUsageService(db)
	settlementService := services.NewSettlementService(walletService, platformWalletService, usageService)
	couponService := services.NewCouponService(db, walletService, catalogSvc)
	orderService := services.NewOrderService(db, catalogSvc, couponService, usageService, settlementService, publisher)
	paymentService := services.NewPaymentService(db, gateway, walletService, settlementService, orderService, env.VNPAY_EXPIRY_MINUTES)
	payoutService := services.NewPayoutService(db, walletService)
	transactionService := services.NewTransactionService(db)
	cartService := services.NewCartService(db, catalogSvc, orderService)

	authMiddleware := middleware.NewAuthMiddleware(jwtManager)

	orderHandler := order_handlers.NewOrderHandler(orderService)
	paymentHandler := payment_handlers.NewPaymentHandler(paymentService, env.FRONTEND_PAYMENT_RETURN_URL)
	couponHandler := coupon_handlers.NewCouponHandler(couponService, catalogSvc)
	walletHandler := wallet_handlers.NewWalletHandler(walletService, platformWalletService, transactionService)
	payoutHandler := payout_handlers.NewPayoutHandler(payoutService)
	cartHandler := cart_handlers.NewCartHandler(cartService)

	// Apply security middleware
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
	})

	// Health check endpoint (public)
	app.Get("/ping", func(c *fiber.Ctx) error { return handlers.HandleCheckHealth(c, store) })

	// API v1 group
	api := app.Group("/api/v1")

	// Order routes
	orders := api.Group("/orders", authMiddleware.Required())
	orders.Post("/preview", orderHandler.PreviewOrder)
	orders.Post("/", orderHandler.CreateOrder)
	orders.Post("/buy-now", orderHandler.BuyNow)
	orders.Get("/my", orderHandler.ListMyOrders)
	orders.Get("/purchased-courses", orderHandler.GetPurchasedCourses)
	orders.Get("/:id", orderHandler.GetOrder)
	orders.Post("/:id/cancel", orderHandler.CancelOrder)

	// Payment routes. The gateway callback carries its own HMAC signature
	// and must stay reachable without a bearer token.
	payments := api.Group("/payments")
	payments.Get("/vnpay/callback", paymentHandler.VNPayCallback)
	payments.Post("/process", authMiddleware.Required(), paymentHandler.ProcessPayment)
	payments.Post("/topup", authMiddleware.Required(), authMiddleware.RequireRole("instructor", "admin"), paymentHandler.ProcessTopUp)
	payments.Get("/my", authMiddleware.Required(), paymentHandler.ListMyPayments)
	payments.Get("/:id/status", authMiddleware.Required(), paymentHandler.CheckPaymentStatus)
	payments.Get("/order/:orderId", authMiddleware.Required(), paymentHandler.ListByOrder)

	// Coupon routes
	coupons := api.Group("/coupons", authMiddleware.Required())
	coupons.Post("/validate", couponHandler.ValidateCoupon)
	coupons.Post("/admin", authMiddleware.RequireAdmin(), couponHandler.CreateAdminCoupon)
	coupons.Post("/instructor", authMiddleware.RequireRole("instructor"), couponHandler.CreateInstructorCoupon)
	coupons.Get("/", authMiddleware.RequireRole("instructor", "admin"), couponHandler.ListCoupons)
	coupons.Get("/:id", authMiddleware.RequireRole("instructor", "admin"), couponHandler.GetCoupon)
	coupons.Post("/:id/deactivate", authMiddleware.RequireRole("instructor", "admin"), couponHandler.DeactivateCoupon)
	coupons.Delete("/:id", authMiddleware.RequireRole("instructor", "admin"), couponHandler.DeleteCoupon)

	// Wallet routes
	wallets := api.Group("/wallets", authMiddleware.Required())
	wallets.Get("/me", authMiddleware.RequireRole("instructor"), walletHandler.GetMyWallet)
	wallets.Get("/me/transactions", authMiddleware.RequireRole("instructor"), walletHandler.ListMyTransactions)
	wallets.Put("/me/bank-account", authMiddleware.RequireRole("instructor"), walletHandler.UpdateBankAccount)
	wallets.Get("/me/reconcile", authMiddleware.RequireRole("instructor"), walletHandler.ReconcileMyWallet)
	wallets.Get("/platform", authMiddleware.RequireAdmin(), walletHandler.GetPlatformWallet)
	wallets.Get("/platform/transactions", authMiddleware.RequireAdmin(), walletHandler.ListPlatformTransactions)
	wallets.Get("/platform/revenue", authMiddleware.RequireAdmin(), walletHandler.PlatformRevenue)
	wallets.Get("/instructor/:instructorId", authMiddleware.RequireAdmin(), walletHandler.GetInstructorWallet)

	// Payout routes
	payouts := api.Group("/payouts", authMiddleware.Required())
	payouts.Post("/", authMiddleware.RequireRole("instructor"), payoutHandler.CreatePayout)
	payouts.Get("/my", authMiddleware.RequireRole("instructor"), payoutHandler.ListMyPayouts)
	payouts.Get("/", authMiddleware.RequireAdmin(), payoutHandler.ListPayouts)
	payouts.Get("/:id", payoutHandler.GetPayout)
	payouts.Post("/:id/approve", authMiddleware.RequireAdmin(), payoutHandler.ApprovePayout)
	payouts.Post("/:id/reject", authMiddleware.RequireAdmin(), payoutHandler.RejectPayout)

	// Cart routes
	cart := api.Group("/cart", authMiddleware.Required())
	cart.Get("/", cartHandler.GetCart)
	cart.Post("/items", cartHandler.AddItem)
	cart.Delete("/items/:courseId", cartHandler.RemoveItem)
	cart.Delete("/", cartHandler.Clear)
}
