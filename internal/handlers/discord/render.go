package discord

import (
	"fmt"
	"strings"

	"github.com/KirkDiggler/doodle/internal/models"
	"github.com/bwmarrin/discordgo"
)

const (
	colorInfo  = 0x00ff00
	colorRound = 0x3498db
	colorError = 0xff0000
)

var markdown = strings.NewReplacer("*", "\\*", "_", "\\_", "~", "\\~", "`", "\\`", "|", "\\|")

func escape(s string) string {
	return markdown.Replace(s)
}

// formatChat renders one room chat line for the channel
func formatChat(msg models.ChatMessage) string {
	name := msg.Username
	if name == "" {
		name = msg.UserID
	}
	return fmt.Sprintf("**%s**: %s", escape(name), msg.Message)
}

// renderRoundEmbed announces a round without giving the word away
func renderRoundEmbed(sess models.Session, drawerName string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Round %d", sess.Round),
		Description: fmt.Sprintf("%s is drawing! Guess the word right here.", drawerName),
		Color:       colorRound,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Letters",
				Value:  hint(sess.CurrentWord),
				Inline: true,
			},
		},
	}

	if sess.EndedByGuess() {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Last round",
			Value:  fmt.Sprintf("%s guessed **%s**", escape(sess.WinnerName), escape(sess.PreviousWord)),
			Inline: true,
		})
	}

	return embed
}

// hint masks every letter of word
func hint(word string) string {
	var b strings.Builder
	for i, r := range word {
		if i > 0 {
			b.WriteByte(' ')
		}
		if r == ' ' {
			b.WriteString(" ")
			continue
		}
		b.WriteString("\\_")
	}
	return b.String()
}

// renderPlayers lists the roster, marking the drawer
func renderPlayers(players []models.Player, drawer string) string {
	if len(players) == 0 {
		return "Nobody has joined yet."
	}

	var b strings.Builder
	for i, p := range players {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(escape(p.Username))
		if p.UserID == drawer {
			b.WriteString(" (drawing)")
		}
	}
	return b.String()
}
