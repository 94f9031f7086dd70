package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/specto/internal/common"
	"github.com/ternarybob/specto/internal/handlers"
	"github.com/ternarybob/specto/internal/infocar"
	"github.com/ternarybob/specto/internal/interfaces"
	"github.com/ternarybob/specto/internal/models"
	"github.com/ternarybob/specto/internal/services/captcha"
	"github.com/ternarybob/specto/internal/services/events"
	"github.com/ternarybob/specto/internal/services/notify"
	"github.com/ternarybob/specto/internal/services/scheduler"
	"github.com/ternarybob/specto/internal/services/status"
	"github.com/ternarybob/specto/internal/services/watcher"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Event-driven services
	EventService     interfaces.EventService
	StatusService    *status.Service
	NotifyService    *notify.Service
	SchedulerService *scheduler.Service

	// Account session and captcha solver
	Session        *infocar.Session
	CaptchaService interfaces.CaptchaSolver

	// Watcher (polling loop)
	WatcherService *watcher.Service

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	StatusHandler  *handlers.StatusHandler
	WatcherHandler *handlers.WatcherHandler
	WSHandler      *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	window, err := cfg.SearchWindow()
	if err != nil {
		return nil, fmt.Errorf("failed to parse search window: %w", err)
	}

	// Event service first; everything else publishes or subscribes
	app.EventService = events.NewService(logger)

	app.CaptchaService = captcha.NewService(cfg.Captcha.APIKey,
		captcha.WithBaseURL(cfg.Captcha.BaseURL),
		captcha.WithLogger(logger),
	)

	app.Session = infocar.NewSession(app.CaptchaService,
		infocar.WithBaseURL(cfg.InfoCar.BaseURL),
		infocar.WithTimeout(time.Duration(cfg.InfoCar.RequestTimeout)),
		infocar.WithRateLimit(cfg.InfoCar.RateLimit),
		infocar.WithLogger(logger),
	)

	app.WatcherService = watcher.NewService(app.Session, app.EventService,
		cfg.Watcher, window, logger)

	app.StatusService = status.NewService(app.EventService, logger)
	app.StatusService.SubscribeToEvents()

	app.NotifyService = notify.NewService(cfg.Notify.WebhookURL, logger)
	app.NotifyService.SubscribeToEvents(app.EventService)

	app.SchedulerService = scheduler.NewService(app.EventService, app.CaptchaService,
		app.WatcherService, cfg.Scheduler, cfg.Captcha.MinBalance, logger)

	// HTTP handlers
	app.APIHandler = handlers.NewAPIHandler()
	app.StatusHandler = handlers.NewStatusHandler(app.StatusService, app.Session, logger)
	app.WatcherHandler = handlers.NewWatcherHandler(app.WatcherService, logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, logger)

	// Re-login and resume automatically when the session drops mid-watch
	app.EventService.Subscribe(interfaces.EventAuthExpired, func(ctx context.Context, event interfaces.Event) error {
		return app.recoverSession(ctx)
	})

	return app, nil
}

// Start logs in, selects the reservation to move, and launches the watcher
// and the housekeeping scheduler.
func (a *App) Start(ctx context.Context) error {
	if err := a.login(ctx); err != nil {
		return err
	}

	reservation, err := a.selectReservation(ctx)
	if err != nil {
		return err
	}
	a.WatcherService.SetReservation(*reservation)

	enabled, err := a.Session.IsRescheduleEnabled(ctx, reservation.Exam.OrganizationUnitID)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Reschedule-enabled check failed, continuing anyway")
	} else if !enabled {
		return fmt.Errorf("rescheduling is disabled for exam center %s", reservation.Exam.OrganizationUnitName)
	}

	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if a.Config.Watcher.AutoStart {
		// The startup context is short-lived; the loop gets its own.
		if err := a.WatcherService.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
	} else {
		a.Logger.Info().Msg("Watcher auto-start disabled, start it via the API")
	}

	return nil
}

// Shutdown stops the watcher and scheduler in order.
func (a *App) Shutdown() {
	a.WatcherService.Stop()
	a.SchedulerService.Stop()
	a.EventService.Close()
	a.Logger.Info().Msg("Application stopped")
}

// login authenticates against the scheduling service.
func (a *App) login(ctx context.Context) error {
	a.Logger.Info().Str("username", a.Config.InfoCar.Username).Msg("Logging in")

	if err := a.Session.Login(ctx, a.Config.InfoCar.Username, a.Config.InfoCar.Password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	a.StatusService.SetAuthenticated(true)
	a.Logger.Info().Msg("Login successful")
	return nil
}

// selectReservation picks the reservation to rebook: the configured ID when
// set, otherwise the newest active reservation.
func (a *App) selectReservation(ctx context.Context) (*models.Reservation, error) {
	reservations, err := a.Session.GetReservations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	if len(reservations) == 0 {
		return nil, fmt.Errorf("no active reservations found")
	}

	if id := a.Config.InfoCar.ReservationID; id != "" {
		for i := range reservations {
			if reservations[i].ID == id {
				return &reservations[i], nil
			}
		}
		return nil, fmt.Errorf("reservation %s not found", id)
	}

	// Reservations arrive newest-first
	reservation := reservations[0]

	a.Logger.Info().
		Str("reservation_id", reservation.ID).
		Str("exam_center", reservation.Exam.OrganizationUnitName).
		Msg("Reservation selected")

	return &reservation, nil
}

// recoverSession handles an expired session: log in again and, if the
// watcher stopped on expiry, restart it.
func (a *App) recoverSession(ctx context.Context) error {
	a.StatusService.SetAuthenticated(false)
	a.Logger.Info().Msg("Session expired, re-authenticating")

	if err := a.login(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("Re-authentication failed")
		return err
	}

	// The expiry event fires from inside the loop; let the goroutine unwind
	// before deciding whether a restart is needed.
	a.WatcherService.Wait()

	if !a.WatcherService.Running() {
		if err := a.WatcherService.Start(context.Background()); err != nil {
			a.Logger.Error().Err(err).Msg("Watcher restart failed")
			return err
		}
		a.Logger.Info().Msg("Watcher restarted after re-authentication")
	}

	return nil
}
