package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KirkDiggler/doodle/internal/common/logger"
	"github.com/KirkDiggler/doodle/internal/handlers/discord"
	"github.com/KirkDiggler/doodle/internal/models"
	"github.com/KirkDiggler/doodle/internal/repositories/store"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	// A missing .env is fine
	_ = godotenv.Load()

	if err := logger.Init(&logger.Config{
		Level:  getEnv("LOG_LEVEL", "info"),
		Pretty: getEnv("PRETTY_LOGS", "") != "",
	}); err != nil {
		log.Fatal().Err(err).Msg("invalid log level")
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})
	defer redisClient.Close()

	// Test Redis connection
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}

	st, err := store.NewRedis(&store.Config{
		RedisClient: redisClient,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create store")
	}

	// Get Discord token from environment
	discordToken := getEnv("DISCORD_TOKEN", "")
	if discordToken == "" {
		log.Fatal().Msg("DISCORD_TOKEN environment variable is required")
	}

	channelID := getEnv("DISCORD_CHANNEL", "")
	if channelID == "" {
		log.Fatal().Msg("DISCORD_CHANNEL environment variable is required")
	}

	bot, err := discord.New(&discord.Config{
		Token:         discordToken,
		ChannelID:     channelID,
		ApplicationID: getEnv("APPLICATION_ID", ""),
		GuildID:       getEnv("GUILD_ID", ""),
		Room:          getEnv("ROOM", models.DefaultRoom),
		PublicURL:     getEnv("PUBLIC_URL", ""),
		Store:         st,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Discord bot")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	// Start the bot
	if err := bot.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start Discord bot")
	}

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()

	// Shutdown the bot
	if err := bot.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping bot")
	}

	log.Info().Msg("bot has been shut down")
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
