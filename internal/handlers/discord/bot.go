package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/KirkDiggler/doodle/internal/common/clock"
	"github.com/KirkDiggler/doodle/internal/models"
	"github.com/KirkDiggler/doodle/internal/repositories/store"
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// UserIDPrefix marks chat authors bridged in from Discord
const UserIDPrefix = "discord:"

// Bot bridges the chat of one room to one Discord channel
type Bot struct {
	session    Session
	store      store.Store
	clock      clock.Clock
	streams    models.Streams
	commands   map[string]CommandHandler
	commandIDs map[string]string // Maps command name to command ID
	config     *Config

	mu    sync.Mutex
	appID string
	since time.Time
	names map[string]string
	subs  []store.Subscription
}

// Config holds the configuration for the bot
type Config struct {
	// Discord bot token, unused when Session is set
	Token string

	// ChannelID is the bridged channel
	ChannelID string

	// Application ID for the bot, taken from the ready event when empty
	ApplicationID string

	// Optional guild ID for development (server-specific commands)
	GuildID string

	// Room is the bridged room
	Room string

	// PublicURL is shown by /doodle join
	PublicURL string

	Store store.Store

	// Optional
	Clock   clock.Clock
	Session Session
}

// New creates a new Discord bot
func New(cfg *Config) (*Bot, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	if cfg.ChannelID == "" {
		return nil, errors.New("channel ID cannot be empty")
	}

	session := cfg.Session
	if session == nil {
		if cfg.Token == "" {
			return nil, errors.New("token cannot be empty")
		}

		// Create a new Discord session
		dg, err := discordgo.New("Bot " + cfg.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to create Discord session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
		session = dg
	}

	clk := cfg.Clock
	if clk == nil {
		clk = &clock.DefaultClock{}
	}

	bot := &Bot{
		session:    session,
		store:      cfg.Store,
		clock:      clk,
		streams:    models.StreamsFor(cfg.Room),
		commands:   make(map[string]CommandHandler),
		commandIDs: make(map[string]string),
		config:     cfg,
		appID:      cfg.ApplicationID,
		names:      make(map[string]string),
	}

	session.AddHandler(bot.handleReady)
	session.AddHandler(bot.handleMessageCreate)
	session.AddHandler(bot.handleInteraction)

	return bot, nil
}

// Start connects to Discord, starts mirroring the room and registers commands
func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	// Chat from before the bridge came up stays in the room
	b.mu.Lock()
	b.since = b.clock.Now()
	b.mu.Unlock()

	if err := b.subscribe(ctx); err != nil {
		return err
	}

	if err := b.RegisterCommand(NewDoodleCommand(b)); err != nil {
		return fmt.Errorf("failed to register doodle command: %w", err)
	}

	log.Info().
		Str("channel", b.config.ChannelID).
		Str("room", b.Room()).
		Msg("discord: bridge running")
	return nil
}

func (b *Bot) subscribe(ctx context.Context) error {
	sub, err := b.store.MapOn(ctx, b.streams.Players, b.handlePlayer)
	if err != nil {
		return fmt.Errorf("failed to subscribe to roster: %w", err)
	}
	b.track(sub)

	sub, err = b.store.On(ctx, b.streams.GameState, b.handleSession)
	if err != nil {
		return fmt.Errorf("failed to subscribe to session: %w", err)
	}
	b.track(sub)

	sub, err = b.store.MapOnce(ctx, b.streams.Chat, b.handleChat)
	if err != nil {
		return fmt.Errorf("failed to subscribe to chat: %w", err)
	}
	b.track(sub)

	return nil
}

func (b *Bot) track(sub store.Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
}

// Stop removes the commands, closes the subscriptions and disconnects
func (b *Bot) Stop() error {
	b.mu.Lock()
	subs, appID, commandIDs := b.subs, b.appID, b.commandIDs
	b.subs = nil
	b.commands = make(map[string]CommandHandler)
	b.commandIDs = make(map[string]string)
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}

	for cmdName, cmdID := range commandIDs {
		if err := b.session.ApplicationCommandDelete(appID, b.config.GuildID, cmdID); err != nil {
			log.Warn().Err(err).Str("command", cmdName).Msg("discord: failed to delete command")
		}
	}

	return b.session.Close()
}

// RegisterCommand registers a command with Discord
func (b *Bot) RegisterCommand(cmd CommandHandler) error {
	b.mu.Lock()
	appID := b.appID
	b.mu.Unlock()

	createdCmd, err := b.session.ApplicationCommandCreate(appID, b.config.GuildID, cmd.GetCommand())
	if err != nil {
		return fmt.Errorf("failed to create command %s: %w", cmd.GetName(), err)
	}

	// Store the command handler and its ID; interactions read them concurrently
	b.mu.Lock()
	b.commands[cmd.GetName()] = cmd
	b.commandIDs[cmd.GetName()] = createdCmd.ID
	b.mu.Unlock()
	log.Debug().Str("command", cmd.GetName()).Str("id", createdCmd.ID).Msg("discord: registered command")

	return nil
}

// Room returns the bridged room
func (b *Bot) Room() string {
	if b.config.Room == "" {
		return models.DefaultRoom
	}
	return b.config.Room
}

func (b *Bot) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.appID == "" {
		b.appID = r.User.ID
	}
}

// handleInteraction handles slash commands
func (b *Bot) handleInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	b.mu.Lock()
	h, ok := b.commands[i.ApplicationCommandData().Name]
	b.mu.Unlock()

	if ok {
		if err := h.Handle(b.session, i); err != nil {
			log.Warn().Err(err).Str("command", i.ApplicationCommandData().Name).Msg("discord: command failed")
		}
	}
}

// handleMessageCreate publishes channel messages into the room chat
func (b *Bot) handleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.ChannelID != b.config.ChannelID {
		return
	}
	if m.Author == nil || m.Author.Bot {
		return
	}

	text := strings.TrimSpace(m.Content)
	if text == "" {
		return
	}

	msg := models.ChatMessage{
		UserID:    UserIDPrefix + m.Author.ID,
		Username:  displayName(m),
		Message:   text,
		Timestamp: b.clock.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("discord: failed to marshal chat message")
		return
	}

	if _, err := b.store.Set(context.Background(), b.streams.Chat, data); err != nil {
		log.Warn().Err(err).Str("room", b.Room()).Msg("discord: failed to publish chat message")
	}
}

// handleChat mirrors room chat into the channel
func (b *Bot) handleChat(childID string, value []byte) {
	var msg models.ChatMessage
	if err := json.Unmarshal(value, &msg); err != nil || !msg.Valid() {
		log.Debug().Str("child", childID).Msg("discord: dropping malformed chat message")
		return
	}

	// Came from this channel
	if strings.HasPrefix(msg.UserID, UserIDPrefix) {
		return
	}

	b.mu.Lock()
	since := b.since
	b.mu.Unlock()
	if msg.Timestamp.Before(since) {
		return
	}

	if _, err := b.session.ChannelMessageSend(b.config.ChannelID, formatChat(msg)); err != nil {
		log.Warn().Err(err).Str("channel", b.config.ChannelID).Msg("discord: failed to mirror chat message")
	}
}

func (b *Bot) handlePlayer(_ string, value []byte) {
	var p models.Player
	if err := json.Unmarshal(value, &p); err != nil || !p.Valid() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.names[p.UserID]; !ok {
		b.names[p.UserID] = p.Username
	}
}

// handleSession announces every new round
func (b *Bot) handleSession(value []byte) {
	var sess models.Session
	if err := json.Unmarshal(value, &sess); err != nil || !sess.Valid() || !sess.Started() {
		return
	}

	embed := renderRoundEmbed(sess, b.playerName(sess.CurrentDrawer))
	if _, err := b.session.ChannelMessageSendEmbed(b.config.ChannelID, embed); err != nil {
		log.Warn().Err(err).Str("channel", b.config.ChannelID).Msg("discord: failed to announce round")
	}
}

func (b *Bot) playerName(userID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if name, ok := b.names[userID]; ok && name != "" {
		return name
	}
	return userID
}

func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
