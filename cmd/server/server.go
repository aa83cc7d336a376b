package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/KirkDiggler/doodle/internal/common/logger"
	"github.com/KirkDiggler/doodle/internal/handlers/discord"
	"github.com/KirkDiggler/doodle/internal/handlers/httpapi"
	"github.com/KirkDiggler/doodle/internal/handlers/ws"
	"github.com/KirkDiggler/doodle/internal/repositories/store"
	"github.com/KirkDiggler/doodle/internal/services/messaging"
	"github.com/KirkDiggler/doodle/internal/words"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func serve(ctx context.Context, cfg *Config) error {
	if err := logger.Init(&logger.Config{
		Level:  cfg.logLevel,
		Pretty: cfg.prettyLogs,
	}); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})
	defer redisClient.Close()

	st, err := store.NewRedis(&store.Config{
		RedisClient: redisClient,
	})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	wordCfg := &words.Config{}
	if cfg.wordsFile != "" {
		list, err := words.LoadFile(cfg.wordsFile)
		if err != nil {
			return err
		}
		wordCfg.Words = list
	}
	picker, err := words.New(wordCfg)
	if err != nil {
		return fmt.Errorf("failed to create word picker: %w", err)
	}

	msgService, err := messaging.NewService(&messaging.ServiceConfig{})
	if err != nil {
		return fmt.Errorf("failed to create messaging service: %w", err)
	}

	// Checked by validate
	tone, _ := messaging.ParseTone(cfg.roundTone)

	gateway, err := ws.New(&ws.Config{
		Store:          st,
		Messaging:      msgService,
		Picker:         picker,
		BootstrapDelay: cfg.bootstrapDelay,
		MessageRate:    cfg.messageRate,
		MessageBurst:   cfg.messageBurst,
		RoundTone:      tone,
	})
	if err != nil {
		return fmt.Errorf("failed to create websocket gateway: %w", err)
	}

	router, err := httpapi.SetupRoutes(&httpapi.Config{
		Store:     st,
		WebSocket: gateway,
		PublicURL: cfg.publicURL,
		Health: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	if cfg.discordToken != "" {
		bot, err := discord.New(&discord.Config{
			Token:     cfg.discordToken,
			ChannelID: cfg.discordChannel,
			GuildID:   cfg.discordGuild,
			Room:      cfg.room,
			PublicURL: cfg.publicURL,
			Store:     st,
		})
		if err != nil {
			return fmt.Errorf("failed to create Discord bot: %w", err)
		}
		if err := bot.Start(ctx); err != nil {
			return fmt.Errorf("failed to start Discord bot: %w", err)
		}
		defer func() {
			if err := bot.Stop(); err != nil {
				log.Warn().Err(err).Msg("error stopping Discord bot")
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown
	return srv.Shutdown(shutdownCtx)
}
