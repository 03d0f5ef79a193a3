package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vendiko/vendiko-api/cache"
	"github.com/vendiko/vendiko-api/config"
	"github.com/vendiko/vendiko-api/controllers"
	"github.com/vendiko/vendiko-api/middleware"
	"github.com/vendiko/vendiko-api/models"
	"github.com/vendiko/vendiko-api/services"
)

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	log.Println("Starting marketplace core API server...")

	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := config.CloseDatabase(db); err != nil {
			log.WithError(err).Warn("failed to close database")
		}
	}()

	if err := migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed successfully")

	rdb, err := config.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	invalidator := cache.NewInvalidator(cache.NewRedisStore(rdb), log)

	// In a single-binary deployment checkout talks to the in-process engine;
	// with RESERVATION_ENGINE_URL set it crosses the service boundary.
	stock := services.NewStockService(db, invalidator, log)
	var engine services.ReservationEngine = stock
	if cfg.ReservationEngineURL != "" {
		engine = services.NewReservationClient(cfg.ReservationEngineURL, services.Principal{
			UserID: cfg.ReservationServiceID,
			Role:   services.RoleAdmin,
		})
		log.WithField("url", cfg.ReservationEngineURL).Info("using remote reservation engine")
	}

	checkout := services.NewCheckoutService(db, engine, invalidator, log)
	suborders := services.NewSuborderService(db, engine, invalidator, log)
	delivery := services.NewDeliveryService(db, engine, invalidator, log)
	products := services.NewProductService(db, invalidator, log)

	router := newRouter(stock, checkout, suborders, delivery, products)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reconciler := services.NewReservationReconciler(db, engine, log, cfg.ReservationPendingTTL, cfg.ReconcileInterval)
	go reconciler.Run(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		log.Printf("Server is running on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
}

// migrate creates/updates the schema for every model the core owns.
func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Product{},
		&models.Order{},
		&models.VendorOrder{},
		&models.OrderItem{},
		&models.DeliveryAssignment{},
		&models.PendingReservation{},
	)
}

// newRouter wires every controller onto the /api/v1 surface.
func newRouter(
	stock *services.StockService,
	checkout *services.CheckoutService,
	suborders *services.SuborderService,
	delivery *services.DeliveryService,
	products *services.ProductService,
) *gin.Engine {
	router := gin.Default()
	router.Use(cors.Default())

	checkoutCtrl := controllers.NewCheckoutController(checkout)
	stockCtrl := controllers.NewStockController(stock)
	orderCtrl := controllers.NewOrderController(suborders)
	deliveryCtrl := controllers.NewDeliveryController(delivery)
	productCtrl := controllers.NewProductController(products)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)

		// cached reads
		v1.GET("/products/:id", productCtrl.GetProduct)
		v1.GET("/vendors/:id/products", productCtrl.ListVendorProducts)

		authed := v1.Group("")
		authed.Use(middleware.Principal())
		{
			authed.POST("/checkout", middleware.RequireRole(services.RoleCustomer), checkoutCtrl.Checkout)

			// reservation engine surface
			stockOps := authed.Group("/stock")
			stockOps.Use(middleware.RequireRole(services.RoleVendor, services.RoleAdmin))
			{
				stockOps.POST("/reserve", stockCtrl.Reserve)
				stockOps.POST("/release", stockCtrl.Release)
				stockOps.POST("/ship", stockCtrl.Ship)
				stockOps.POST("/restock", stockCtrl.Restock)
				stockOps.POST("/return", stockCtrl.ReturnStock)
			}

			authed.GET("/vendors/:id/inventory", middleware.RequireRole(services.RoleVendor, services.RoleAdmin), productCtrl.VendorInventory)
			authed.GET("/inventory", middleware.RequireRole(services.RoleAdmin), productCtrl.AdminInventory)

			authed.PATCH("/suborders/:id/pack", middleware.RequireRole(services.RoleVendor, services.RoleAdmin), orderCtrl.Pack)
			authed.POST("/suborders/:id/assign", middleware.RequireRole(services.RoleVendor, services.RoleAdmin), orderCtrl.AssignDelivery)
			authed.POST("/suborders/:id/cancel", orderCtrl.CancelSuborder)
			authed.POST("/orders/:id/cancel", orderCtrl.CancelOrder)
			authed.POST("/orders/:id/payment", middleware.RequireRole(services.RoleAdmin), orderCtrl.SettlePayment)

			authed.POST("/order-items/:id/return", middleware.RequireRole(services.RoleVendor, services.RoleAdmin), deliveryCtrl.ApproveReturn)
			authed.POST("/orders/:id/return-pickup", middleware.RequireRole(services.RoleVendor, services.RoleAdmin), deliveryCtrl.ScheduleReturnPickup)
			authed.GET("/delivery/tasks", middleware.RequireRole(services.RoleDelivery), deliveryCtrl.ListTasks)
			authed.PATCH("/delivery/:id/status", middleware.RequireRole(services.RoleDelivery, services.RoleAdmin), deliveryCtrl.UpdateStatus)
			authed.POST("/delivery/:id/deposit", middleware.RequireRole(services.RoleDelivery, services.RoleAdmin), deliveryCtrl.DepositCash)
		}
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Marketplace core API is running",
	})
}
