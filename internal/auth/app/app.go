package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	httpapi "github.com/pastvault/pastvault/internal/auth/http"
	"github.com/pastvault/pastvault/internal/auth/service"
	"github.com/pastvault/pastvault/internal/auth/store"
	"github.com/pastvault/pastvault/internal/auth/store/drivers/sqlite"
	"github.com/pastvault/pastvault/pkg/cryptox"
	"github.com/pastvault/pastvault/pkg/jwtx"
	"github.com/pastvault/pastvault/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application encapsulates the auth service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db    store.Store
	codec *jwtx.Codec
	web   *webauthn.WebAuthn

	loginService        *service.LoginService
	passkeyService      *service.PasskeyService
	mfaService          *service.MFAService
	onboardingService   *service.OnboardingService
	userService         *service.UserService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Options{
			Service: "pastvault-auth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)

	codec, err := jwtx.NewCodec([]byte(cfg.TokenSecret), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("token secret rejected: %w", err)
	}
	app.codec = codec

	web, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn config rejected: %w", err)
	}
	app.web = web

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()

	if err := app.bootstrapAdmin(); err != nil {
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(app.cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("apply migrations: %w", err)
	}
	app.db = db
	return nil
}

func (app *Application) initServices() {
	registry := service.NewRegistry(
		&service.TOTPStrategy{Store: app.db},
		&service.WebAuthnStrategy{Store: app.db, Verifier: app.web},
	)

	app.loginService = service.NewLoginService(app.db, app.codec, registry)
	app.loginService.PreAuthTTL = app.cfg.PreAuthTTL
	app.loginService.SessionTTL = app.cfg.SessionTTL

	app.passkeyService = &service.PasskeyService{
		Store:    app.db,
		Verifier: app.web,
		Login:    app.loginService,
	}
	app.mfaService = &service.MFAService{
		Store:    app.db,
		Issuer:   app.cfg.RPDisplayName,
		Verifier: app.web,
	}
	app.onboardingService = &service.OnboardingService{Store: app.db}
	app.userService = &service.UserService{Store: app.db}
	app.housekeepingService = service.NewHousekeepingService(
		app.db, app.logger, app.cfg.HousekeepingInterval)
}

// bootstrapAdmin creates the first admin account on an empty database. The
// generated password is logged once; the forced password change on first
// login retires it immediately.
func (app *Application) bootstrapAdmin() error {
	ctx := context.Background()

	n, err := app.db.Users().CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return nil
	}

	resp, err := app.userService.CreateUser(ctx, "admin", []string{"admin"})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	app.logger.Warn("bootstrap admin account created",
		"username", resp.User.Username,
		"initial_password", resp.InitialPassword,
	)
	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.codec, BuildVersion, app.cfg.SecureCookies, app.db, app.logger)
	router.LoginService = app.loginService
	router.PasskeyService = app.passkeyService
	router.MFAService = app.mfaService
	router.OnboardingService = app.onboardingService
	router.UserService = app.userService
	router.ApplyRoutes()

	app.router = router
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops the server, the housekeeping worker and the database, in
// that order.
func (app *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	app.logger.Info("auth service stopped")
	return nil
}
