package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	flog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/ConventionPay/app/controllers"
	"github.com/ManuelReschke/ConventionPay/app/repository"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/cache"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/database"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/env"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/policy"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/proofstorage"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/router"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/upload"
)

func main() {
	app := NewApplication()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("Shutting down...")
		jobqueue.GetManager().Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Shutdown failed: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	if env.IsDev() {
		flog.SetLevel(flog.LevelDebug)
	}
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	current, err := policy.Load(database.GetDB())
	if err != nil {
		log.Fatalf("Invalid reconciliation policy: %v", err)
	}
	policyStore := policy.NewStore(current)

	// notification jobs and periodic policy reload
	manager := jobqueue.GetManager()
	manager.WatchPolicy(policyStore)
	manager.Start()

	services := controllers.InitializeServices(
		policyStore,
		jobqueue.NewDispatcher(manager.GetQueue()),
		setupProofStorage(),
		manager.GetQueue(),
	)
	controllers.InitializeControllers(services)

	app := fiber.New(fiber.Config{
		AppName:           "ConventionPay",
		BodyLimit:         upload.MaxReceiptSize + 1<<20,
		EnablePrintRoutes: env.IsDev(),
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if basePath := findBasePath(); basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}))
	} else {
		log.Println("OpenAPI document not found, /docs/api/v1 disabled")
	}

	// ROUTER
	router.InstallRouter(app)

	return app
}

// setupProofStorage returns nil when receipts cannot be stored; uploads then
// answer 503 while JSON proof references keep working.
func setupProofStorage() proofstorage.Store {
	cfg, err := proofstorage.LoadConfig()
	if err != nil {
		log.Printf("Proof storage disabled: %v", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := proofstorage.New(ctx, cfg)
	if err != nil {
		log.Printf("Proof storage disabled: %v", err)
		return nil
	}
	return store
}

func findBasePath() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/conventionpay to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			return path
		}
	}
	return ""
}
