package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"cv-console/internal/backend"
	"cv-console/internal/config"
	"cv-console/internal/controller"
	"cv-console/internal/grpc_server"
	"cv-console/internal/handler"
	"cv-console/internal/metrics"
	"cv-console/internal/stream"
)

// Version версия сборки, задается через ldflags
var Version = "dev"

// shutdownTimeout время на корректную остановку HTTP сервера
const shutdownTimeout = 10 * time.Second

// Application - основное приложение консоли
type Application struct {
	config         *config.Config
	logger         *zap.Logger
	metrics        *metrics.Metrics
	backend        *backend.Client
	health         *grpc_server.HealthServer
	monitor        *controller.MonitorService
	monitorHandler *handler.MonitorHandler
	liveHandler    *handler.LiveHandler
	router         http.Handler
	server         *http.Server
}

// NewApplication создает приложение. dialer nil означает WebSocket.
func NewApplication(cfg *config.Config, logger *zap.Logger, dialer stream.Dialer) (*Application, error) {
	m := metrics.New()
	backendClient := backend.NewClient(cfg, logger)
	health := grpc_server.NewHealthServer(logger)

	// Создаем сервисы
	monitor, err := controller.NewMonitorService(logger, cfg, backendClient, health, m, dialer)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitor service: %w", err)
	}

	// Создаем хендлеры
	monitorHandler := handler.NewMonitorHandler(logger, monitor)
	liveHandler := handler.NewLiveHandler(logger, monitor, cfg.Relay.PingInterval)

	// Создаем роутер
	router := NewRouter(monitorHandler, liveHandler, m, logger)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		config:         cfg,
		logger:         logger,
		metrics:        m,
		backend:        backendClient,
		health:         health,
		monitor:        monitor,
		monitorHandler: monitorHandler,
		liveHandler:    liveHandler,
		router:         router,
		server:         server,
	}, nil
}

// Monitor возвращает сервис сетки
func (app *Application) Monitor() *controller.MonitorService {
	return app.monitor
}

// GetRouter возвращает роутер
func (app *Application) GetRouter() http.Handler {
	return app.router
}

// Bootstrap загружает камеры. Ошибка не фатальна: сетку можно
// обновить позже через /api/v1/cameras/refresh.
func (app *Application) Bootstrap(ctx context.Context) {
	if err := app.monitor.Bootstrap(ctx); err != nil {
		app.logger.Warn("Starting with empty grid", zap.Error(err))
	}
}

// Run запускает HTTP и gRPC серверы и блокируется до отмены ctx или
// ошибки одного из серверов.
func (app *Application) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", app.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.server.Addr, err)
	}
	grpcAddr := net.JoinHostPort(app.config.Server.Host, strconv.Itoa(app.config.Server.GRPCPort))
	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		_ = httpLis.Close()
		return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
	}

	return app.serve(ctx, httpLis, grpcLis)
}

func (app *Application) serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	httpErrChan := make(chan error, 1)
	grpcErrChan := make(chan error, 1)

	// Запуск HTTP сервера
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", "http://"+httpLis.Addr().String()))

		if err := app.server.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrChan <- err
		}
	}()

	// Запуск gRPC сервера
	go func() {
		if err := app.health.Serve(grpcLis); err != nil {
			grpcErrChan <- err
		}
	}()

	app.logger.Info("Console running",
		zap.String("api", app.config.API.BaseURL),
		zap.Int("layout", app.config.Grid.Layout))

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("Shutdown signal received")
	case err := <-httpErrChan:
		runErr = fmt.Errorf("http server: %w", err)
	case err := <-grpcErrChan:
		runErr = fmt.Errorf("grpc server: %w", err)
	}

	app.Stop()
	return runErr
}

// Stop останавливает серверы и закрывает все плитки
func (app *Application) Stop() {
	app.logger.Info("Stopping application")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("Failed to stop HTTP server", zap.Error(err))
	}
	app.health.Stop()
	app.monitor.Close()

	app.logger.Info("Application stopped")
}
