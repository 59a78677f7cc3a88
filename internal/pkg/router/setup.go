package router

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/tipcast/tipcast/app/controllers"
	"github.com/tipcast/tipcast/app/repository"
	"github.com/tipcast/tipcast/internal/pkg/alerts"
	"github.com/tipcast/tipcast/internal/pkg/audiostore"
	"github.com/tipcast/tipcast/internal/pkg/cache"
	"github.com/tipcast/tipcast/internal/pkg/controlcast"
	"github.com/tipcast/tipcast/internal/pkg/database"
	"github.com/tipcast/tipcast/internal/pkg/env"
	"github.com/tipcast/tipcast/internal/pkg/jobqueue"
	"github.com/tipcast/tipcast/internal/pkg/narration"
	"github.com/tipcast/tipcast/internal/pkg/payments"
	"github.com/tipcast/tipcast/internal/pkg/tts"
	"github.com/tipcast/tipcast/internal/pkg/webhookguard"
)

// Router installs a set of routes on a fiber app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter wires the service dependencies and registers all routes.
// HttpRouter goes first: it initializes the session store and the global
// user context middleware that the API routes depend on.
func InstallRouter(app *fiber.App) {
	wireDependencies()
	setup(app, NewHttpRouter(), NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}

// wireDependencies builds the service graph shared by the HTTP handlers and
// the background job queue.
func wireDependencies() {
	db := database.GetDB()
	repository.InitializeFactory(db)
	repos := repository.GetGlobalFactory().GetRepositories()

	registry := payments.NewRegistry(
		payments.NewOpenPix(env.GetEnv("OPENPIX_WEBHOOK_SECRET", "")),
		payments.NewMercadoPago(env.GetEnv("MERCADOPAGO_WEBHOOK_SECRET", "")),
		payments.NewOpenNode(env.GetEnv("OPENNODE_WEBHOOK_SECRET", "")),
	)

	hub := controlcast.NewHub()
	notifier := controlcast.NewNotifier(cache.GetClient(), hub)
	if err := notifier.StartWiring(context.Background()); err != nil {
		log.Errorf("[Router] Control subscriber failed to start: %v", err)
	}

	builder := buildNarration(repos)

	queue := jobqueue.GetManager().GetQueue()
	queue.SetNarrationProcessor(builder)

	alertService := alerts.NewService(repos, func(alertID, userID uint) error {
		_, err := queue.EnqueueNarration(alertID, userID)
		return err
	})

	controllers.SetDependencies(controllers.Deps{
		Alerts:    alertService,
		Guard:     webhookguard.NewGuardFromDB(db),
		Providers: registry,
		Hub:       hub,
		Notifier:  notifier,
		Narration: builder,
	})
}

func buildNarration(repos *repository.Repositories) *narration.Builder {
	cfg, err := audiostore.LoadConfig()
	if err != nil {
		log.Warnf("[Router] Audio storage disabled: %v", err)
		return narration.NewBuilder(repos, tts.NewClientFromEnv(), nil, nil)
	}
	if !cfg.IsEnabled() {
		log.Info("[Router] Audio storage disabled, alerts will play silent")
		return narration.NewBuilder(repos, tts.NewClientFromEnv(), nil, cfg)
	}

	store, err := audiostore.NewClient(cfg)
	if err != nil {
		log.Errorf("[Router] Audio storage unavailable: %v", err)
		return narration.NewBuilder(repos, tts.NewClientFromEnv(), nil, cfg)
	}
	return narration.NewBuilder(repos, tts.NewClientFromEnv(), store, cfg)
}
