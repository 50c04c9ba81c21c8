package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/editsession"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/middleware"
	"server/internal/productgen"
	"server/internal/productphoto"
	"server/internal/storage"
	"server/internal/template"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open file store")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	var countryLookup middleware.CountryLookup
	if resolver != nil {
		countryLookup = resolver.CountryCode
	}

	generator, providerCfg := buildGenerator(cfg, logger)
	logger.Info().Str("provider", generator.Name()).Msg("active generation provider")

	directory := editsession.NewDirectory(editsession.DirectoryOptions{
		HistoryLimit: cfg.EditHistoryLimit,
		TTL:          cfg.EditSessionTTL,
		Logger:       logger,
	})
	go directory.Run(ctx, time.Minute)

	editor, ok := generator.(editsession.Editor)
	if !ok {
		logger.Fatal().Str("provider", generator.Name()).Msg("active provider cannot edit images")
	}
	edits := editsession.NewService(directory, editor, editsession.ServiceOptions{
		Timeout:     cfg.EditTimeout,
		VerifyMasks: true,
		Logger:      logger,
	})

	photos := productphoto.NewService(generator, store, productphoto.Options{Logger: logger})
	templates := template.NewService(template.NewQueries(dbpool), store, logger)

	app := &handlers.App{
		Logger:    logger,
		Edits:     edits,
		Photos:    photos,
		Templates: templates,
		Providers: providerCfg,
		Store:     store,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   countryLookup,
		DefaultLocale:   "en",
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// buildGenerator resolves the active provider from the providers file, falling
// back to environment-configured credentials when the file is absent or does
// not name a usable provider.
func buildGenerator(cfg *infra.Config, logger infra.Logger) (productgen.Generator, *productgen.FileConfig) {
	gen, fileCfg, err := productgen.NewFromFile(cfg.ProvidersConfigPath, logger)
	if err == nil {
		return gen, fileCfg
	}
	logger.Warn().Err(err).Msg("providers file unusable, configuring from environment")

	geminiCfg := productgen.ProviderConfig{
		Type:    "google_genai",
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
	}
	fileCfg = &productgen.FileConfig{
		ActiveProvider: "google_genai",
		Providers:      map[string]productgen.ProviderConfig{"google_genai": geminiCfg},
	}
	gemini, err := productgen.New(geminiCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure gemini provider")
	}
	if cfg.QwenAPIKey != "" {
		qwenCfg := productgen.ProviderConfig{
			Type:    "qwen",
			APIKey:  cfg.QwenAPIKey,
			BaseURL: cfg.QwenBaseURL,
			Model:   cfg.QwenModel,
		}
		qwen, qwenErr := productgen.New(qwenCfg, logger)
		if qwenErr == nil {
			fileCfg.Providers["qwen"] = qwenCfg
			fileCfg.ActiveProvider = "qwen"
			return qwen, fileCfg
		}
		logger.Warn().Err(qwenErr).Msg("failed to configure qwen provider, using gemini")
	}
	return gemini, fileCfg
}
