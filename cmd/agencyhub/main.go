package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/AgencyHub/app/controllers"
	"github.com/ManuelReschke/AgencyHub/app/repository"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/billing"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/board"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/cache"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/database"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/env"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/events"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/jobqueue"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/mediastore"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/ratelimit"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/router"
)

const shutdownTimeout = 15 * time.Second

type bus interface {
	events.Publisher
	events.Subscriber
}

// application bundles the server with the background parts it has to stop.
type application struct {
	app    *fiber.App
	boards *board.Service
	queue  *jobqueue.Manager
	bus    bus
	cancel context.CancelFunc
}

func main() {
	a := newApplication()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := a.app.Listen(addr); err != nil {
			log.Errorf("[Server] %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	a.shutdown()
}

func newApplication() *application {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	// board cache invalidation across instances
	var b bus = &events.NoopBus{}
	if url := env.GetEnv("NATS_URL", ""); url != "" {
		natsBus, err := events.NewNATSBus(url)
		if err != nil {
			log.Warnf("[Events] NATS unavailable at %s, running without peer invalidation: %v", url, err)
		} else {
			b = natsBus
		}
	}

	// order persistence
	manager := jobqueue.GetManager()
	jobqueue.RegisterOrderHandlers(manager.GetQueue(), repos.Pipeline, b)
	manager.Start()

	boards := board.NewService(repos.Pipeline, jobqueue.NewOrderWriter(manager.GetQueue()), b)
	boards.Start()
	watchCtx, cancel := context.WithCancel(context.Background())
	if err := boards.WatchPeers(watchCtx, b); err != nil {
		log.Warnf("[Board] %v", err)
	}

	billingSvc := billing.NewServiceFromDB(database.GetDB(), billing.NewStripeClientFromEnv(), billing.ConfigFromEnv())

	ctl := router.Controllers{
		Billing:    controllers.NewBillingController(billingSvc),
		Board:      controllers.NewBoardController(boards, repos),
		Media:      controllers.NewMediaController(newMediaService(repos)),
		Agency:     controllers.NewAgencyController(repos, billingSvc),
		SubAccount: controllers.NewSubAccountController(repos),
	}

	app := fiber.New(fiber.Config{
		BodyLimit: env.GetEnvInt("MEDIA_MAX_UPLOAD_BYTES", 25<<20) + 1<<20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "change-me"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	if basePath := findBasePath(); basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}))
	} else {
		log.Warn("[Server] openapi.yml not found, API docs disabled")
	}

	// ROUTER
	router.InstallRouter(app, ctl, router.APIConfig{
		APIKey:         env.GetEnv("API_KEY", ""),
		LimiterStorage: ratelimit.NewStorage(),
	})

	return &application{app: app, boards: boards, queue: manager, bus: b, cancel: cancel}
}

func newMediaService(repos *repository.Repositories) *mediastore.Service {
	cfg, err := mediastore.LoadConfig()
	if err != nil {
		log.Fatalf("[Media] %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := mediastore.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("[Media] %v", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		log.Warnf("[Media] %v", err)
	}
	return mediastore.NewService(client, cfg, repos)
}

// shutdown stops accepting requests, then flushes pending board writes into
// the queue before the queue workers stop.
func (a *application) shutdown() {
	log.Info("[Server] Shutting down")
	if err := a.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Warnf("[Server] %v", err)
	}
	a.cancel()
	a.boards.Stop()
	a.queue.Stop()
	if err := a.bus.Close(); err != nil {
		log.Warnf("[Events] %v", err)
	}
	if err := cache.Close(); err != nil {
		log.Warnf("[Cache] %v", err)
	}
}

func findBasePath() string {
	for _, path := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			return path
		}
	}
	return ""
}
