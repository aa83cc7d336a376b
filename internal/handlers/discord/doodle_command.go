package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/KirkDiggler/doodle/internal/models"
	"github.com/KirkDiggler/doodle/internal/repositories/store"
	"github.com/bwmarrin/discordgo"
)

// DoodleCommand handles the /doodle command
type DoodleCommand struct {
	BaseCommand
	bot *Bot
}

// NewDoodleCommand creates a new doodle command handler
func NewDoodleCommand(bot *Bot) *DoodleCommand {
	return &DoodleCommand{
		BaseCommand: BaseCommand{
			Name:        "doodle",
			Description: "Draw-and-guess room commands",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "Show who is drawing",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "players",
					Description: "List the players of the room",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "join",
					Description: "Get a link to draw in the browser",
				},
			},
		},
		bot: bot,
	}
}

// Handle processes a Discord interaction for the doodle command
func (c *DoodleCommand) Handle(s Session, i *discordgo.InteractionCreate) error {
	if i.Type != discordgo.InteractionApplicationCommand {
		return nil
	}

	data := i.ApplicationCommandData()
	if data.Name != c.Name || len(data.Options) == 0 {
		return nil
	}

	ctx := context.Background()

	switch data.Options[0].Name {
	case "status":
		return c.handleStatus(ctx, s, i)
	case "players":
		return c.handlePlayers(ctx, s, i)
	case "join":
		return c.handleJoin(s, i)
	default:
		return errors.New("unknown subcommand")
	}
}

func (c *DoodleCommand) handleStatus(ctx context.Context, s Session, i *discordgo.InteractionCreate) error {
	sess, err := c.session(ctx)
	if err != nil {
		_ = RespondWithError(s, i, "Couldn't read the room right now.")
		return err
	}

	if sess == nil || !sess.Started() {
		return RespondWithEmbed(s, i, "Nobody is drawing", "Waiting for players to join...", nil)
	}

	players, err := c.players(ctx)
	if err != nil {
		_ = RespondWithError(s, i, "Couldn't read the room right now.")
		return err
	}

	drawer := sess.CurrentDrawer
	for _, p := range players {
		if p.UserID == sess.CurrentDrawer {
			drawer = p.Username
			break
		}
	}

	embed := renderRoundEmbed(*sess, drawer)
	return RespondWithEmbed(s, i, embed.Title, embed.Description, embed.Fields)
}

func (c *DoodleCommand) handlePlayers(ctx context.Context, s Session, i *discordgo.InteractionCreate) error {
	players, err := c.players(ctx)
	if err != nil {
		_ = RespondWithError(s, i, "Couldn't read the room right now.")
		return err
	}

	sess, err := c.session(ctx)
	if err != nil {
		_ = RespondWithError(s, i, "Couldn't read the room right now.")
		return err
	}

	drawer := ""
	if sess != nil {
		drawer = sess.CurrentDrawer
	}

	title := fmt.Sprintf("Players in %s", c.bot.Room())
	return RespondWithEmbed(s, i, title, renderPlayers(players, drawer), nil)
}

func (c *DoodleCommand) handleJoin(s Session, i *discordgo.InteractionCreate) error {
	base := strings.TrimSuffix(c.bot.config.PublicURL, "/")
	if base == "" {
		return RespondWithEphemeralMessage(s, i, "This room has no public link.")
	}

	link := base + "/?room=" + url.QueryEscape(c.bot.Room())
	return RespondWithEphemeralMessage(s, i, fmt.Sprintf("Draw with us at %s", link))
}

// session reads the room's session record, nil when no round was ever started
func (c *DoodleCommand) session(ctx context.Context) (*models.Session, error) {
	value, err := c.bot.store.Get(ctx, c.bot.streams.GameState)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var sess models.Session
	if err := json.Unmarshal(value, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

// players reads the roster in publish order
func (c *DoodleCommand) players(ctx context.Context) ([]models.Player, error) {
	children, err := c.bot.store.Children(ctx, c.bot.streams.Players)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(children))
	players := make([]models.Player, 0, len(children))
	for _, child := range children {
		var p models.Player
		if err := json.Unmarshal(child.Value, &p); err != nil || !p.Valid() {
			continue
		}
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		players = append(players, p)
	}
	return players, nil
}
