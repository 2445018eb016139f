package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/learnhub/learnhub-api/internal/config"
	"github.com/learnhub/learnhub-api/internal/handler"
	"github.com/learnhub/learnhub-api/internal/repository"
	"github.com/learnhub/learnhub-api/internal/usecase"
	"github.com/learnhub/learnhub-api/shared/auth"
	"github.com/learnhub/learnhub-api/shared/mailer"
)

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg := config.New(&logger)
	if !cfg.IsProduction() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to disconnect from MongoDB")
		}
	}()

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping MongoDB")
	}

	db := client.Database(cfg.DBName)

	userRepo := repository.NewUserMongoRepository(ctx, &logger, db)

	tokens := auth.NewTokenService(auth.TokenServiceConfig{
		Issuer:           cfg.TokenIssuer,
		AccessSecret:     cfg.AccessTokenSecret,
		RefreshSecret:    cfg.RefreshTokenSecret,
		AccessExpiresIn:  cfg.AccessTokenExpiresIn,
		RefreshExpiresIn: cfg.RefreshTokenExpiresIn,
	})

	otpEngine := usecase.NewOTPEngine(cfg.OTPExpiresIn)
	otpMailer := mailer.NewOTPMailer(mailer.NewMailer(&logger), cfg.OTPExpiresIn)

	sessions := usecase.NewSessionManager(userRepo, tokens)
	authUsecase := usecase.NewAuthUsecase(userRepo, otpEngine, sessions, tokens, otpMailer, &logger)
	resetUsecase := usecase.NewPasswordResetUsecase(userRepo, otpEngine, otpMailer, &logger)

	authHandler := handler.NewAuthHandler(
		authUsecase,
		resetUsecase,
		sessions,
		&logger,
		cfg.IsProduction(),
		cfg.RefreshTokenExpiresIn,
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler.NewRouter(&logger, authHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().Int("port", cfg.Port).Str("env", cfg.Env).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-shutdown
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
