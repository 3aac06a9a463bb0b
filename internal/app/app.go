package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"tondonate/internal/alerting"
	"tondonate/internal/config"
	"tondonate/internal/httpapi"
	"tondonate/internal/indexer"
	"tondonate/internal/price"
	"tondonate/internal/scheduler"
	"tondonate/internal/service"
	"tondonate/internal/storage"
	"tondonate/internal/verify"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newOracle() *price.Oracle {
	return price.New(price.Options{
		BaseURL:   a.Config.Price.BaseURL,
		Currency:  a.Config.Price.Currency,
		CacheTTL:  a.Config.Price.CacheTTL,
		Timeout:   a.Config.Price.RequestTimeout,
		UserAgent: a.Config.Price.UserAgent,
	}, a.Logger)
}

// newProviders returns the indexer chain in priority order.
func (a *App) newProviders() []indexer.Provider {
	tonapi := indexer.NewTonAPI(indexer.TonAPIOptions{
		BaseURL: a.Config.Providers.TonAPI.BaseURL,
		APIKey:  a.Config.Providers.TonAPI.APIKey,
		Timeout: a.Config.Providers.TonAPI.RequestTimeout,
	}, a.Logger)

	toncenter := indexer.NewToncenter(indexer.ToncenterOptions{
		BaseURL: a.Config.Providers.Toncenter.BaseURL,
		APIKey:  a.Config.Providers.Toncenter.APIKey,
		Timeout: a.Config.Providers.Toncenter.RequestTimeout,
	}, a.Logger)

	return []indexer.Provider{tonapi, toncenter}
}

func (a *App) newVerifier(store *storage.Store) *verify.Verifier {
	sinks := make([]verify.Recorder, 0, 2)
	if store != nil {
		sinks = append(sinks, store)
	}
	if a.Config.Audit.FilePath != "" {
		sinks = append(sinks, storage.NewFileLog(a.Config.Audit.FilePath))
	}

	return verify.New(verify.Options{
		SellerAddress: a.Config.Ton.SellerAddress,
		Lookback:      a.Config.Ton.Lookback,
		PageLimit:     a.Config.Providers.PageLimit,
	}, a.newProviders(), sinks, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Notify.Telegram.Enabled {
		cfg := a.Config.Notify.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running API server plus the optional recheck worker.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; audit persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	oracle := a.newOracle()
	verifier := a.newVerifier(store)
	notifier := a.newNotifier()

	var verificationStore storage.VerificationStore
	if store != nil {
		verificationStore = store
	}

	server := httpapi.New(a.Config, oracle, verifier, verificationStore, notifier, a.Logger)

	httpServer := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		a.Logger.Info().Str("addr", a.Config.HTTP.Addr).Msg("starting HTTP API")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if a.Config.Worker.Enabled {
		if store == nil {
			a.Logger.Warn().Msg("recheck worker requires a database; worker disabled")
		} else {
			sched := scheduler.New(scheduler.Options{
				Interval:     a.Config.Worker.Interval,
				StartupDelay: a.Config.Worker.StartupDelay,
			}, a.Logger)

			worker := service.New(a.Config, sched, verifier, store, notifier, a.Logger)
			go func() {
				if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					errCh <- err
				}
			}()
			a.Logger.Info().Dur("interval", a.Config.Worker.Interval).Msg("recheck worker started")
		}
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.Logger.Error().Err(err).Msg("service terminated with error")
		cancel()
		shutdown(httpServer, a.Config.HTTP.ShutdownTimeout)
		return err
	}

	shutdown(httpServer, a.Config.HTTP.ShutdownTimeout)
	a.Logger.Info().Msg("service stopped")
	return nil
}

func shutdown(server *http.Server, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = server.Shutdown(ctx)
}

// VerifyOptions hold parameters for a one-shot verification.
type VerifyOptions struct {
	ClaimRef  string
	AmountTon string
	From      string
	Since     *time.Time
	Comment   string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting donation history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
