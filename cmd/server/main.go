package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/voicecraft/speech-backend/internal/auth"
	"github.com/voicecraft/speech-backend/internal/config"
	"github.com/voicecraft/speech-backend/internal/database"
	"github.com/voicecraft/speech-backend/internal/handler"
	"github.com/voicecraft/speech-backend/internal/metrics"
	"github.com/voicecraft/speech-backend/internal/middleware"
	"github.com/voicecraft/speech-backend/internal/oauth"
	"github.com/voicecraft/speech-backend/internal/queue"
	"github.com/voicecraft/speech-backend/internal/repository"
	"github.com/voicecraft/speech-backend/internal/router"
	"github.com/voicecraft/speech-backend/internal/storage"
	"github.com/voicecraft/speech-backend/internal/token"
	"github.com/voicecraft/speech-backend/internal/tts"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := newLogger(cfg)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}
	defer db.Close()
	if err := database.Migrate(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unavailable, voice cache and rate limiting disabled")
	}

	users := repository.NewUserRepo(db)
	accounts := repository.NewOAuthAccountRepo(db)
	sessions := repository.NewSessionRepo(db)
	speeches := repository.NewSpeechRepo(db)

	registry := prometheus.NewRegistry()
	rec := metrics.NewCollector(registry)

	codec := token.NewCodec(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL, log)
	lifecycle := auth.NewLifecycle(codec, sessions, log)
	identity := auth.NewIdentity(users, accounts, log)
	verifier := oauth.NewMultiVerifier(nil, cfg.GoogleClientID, cfg.AppleClientID, log)

	disk, err := storage.NewDisk(cfg.StorageDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.StorageDir).Msg("storage init failed")
	}
	synth := tts.NewCachedCatalog(tts.NewClient(cfg.TTSBaseURL, cfg.TTSAPIKey, log), rdb, cfg.VoiceCacheTTL, log)

	brokerURL := queue.BrokerURL()
	publisher := queue.NewPublisher(brokerURL, log)
	defer publisher.Close()
	go queue.StartSynthesisConsumer(brokerURL, log)

	policies := middleware.NewPolicyTable()
	gateway := middleware.NewGateway(lifecycle, users, policies, middleware.GatewayConfig{
		Prod:         cfg.IsProd(),
		CookieDomain: cfg.CookieDomain,
	}, rec, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	router.Register(e, router.Deps{
		Gateway:   gateway,
		Policies:  policies,
		Auth:      handler.NewAuthHandler(verifier, identity, lifecycle, gateway, log),
		Speeches:  handler.NewSpeechHandler(speeches, users, synth, disk, publisher, rec, log),
		Voices:    handler.NewVoiceHandler(synth, log),
		RateLimit: middleware.RateLimit(config.LoadRateLimitConfig(), rdb, log),
		Rec:       rec,
		Registry:  registry,
		FilesRoot: disk.Root(),
	})

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
	if err := e.Start(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// newLogger builds the process logger: pretty console output in dev, JSON
// in prod.
func newLogger(cfg config.Config) zerolog.Logger {
	if cfg.IsProd() {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
}
