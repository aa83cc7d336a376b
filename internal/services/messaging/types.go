package messaging

import (
	"fmt"
	"strings"
)

// MessageTone represents the tone of a message
type MessageTone string

const (
	// ToneNeutral is a neutral tone
	ToneNeutral MessageTone = "neutral"

	// ToneFunny is a humorous tone
	ToneFunny MessageTone = "funny"

	// ToneCelebration is a celebratory tone
	ToneCelebration MessageTone = "celebration"
)

// ParseTone reads a configured tone name; empty means ToneCelebration
func ParseTone(name string) (MessageTone, error) {
	switch tone := MessageTone(strings.ToLower(strings.TrimSpace(name))); tone {
	case "":
		return ToneCelebration, nil
	case ToneNeutral, ToneFunny, ToneCelebration:
		return tone, nil
	default:
		return "", fmt.Errorf("unknown message tone %q", name)
	}
}

// Error types understood by GetErrorMessage
const (
	ErrorTypeNotDrawer  = "not_drawer"
	ErrorTypeRateLimit  = "rate_limited"
	ErrorTypeSendFailed = "send_failed"
)

// GetStatusMessageInput is the input for GetStatusMessage
type GetStatusMessageInput struct {
	// Started is false until a first drawer is elected
	Started bool

	// Drawing indicates the reader is the drawer
	Drawing bool

	// DrawerName is the display name of the drawer
	DrawerName string

	// Word is only shown to the drawer
	Word string
}

// GetStatusMessageOutput is the output for GetStatusMessage
type GetStatusMessageOutput struct {
	Message string
}

// GetRoundWonMessageInput is the input for GetRoundWonMessage
type GetRoundWonMessageInput struct {
	// WinnerName is the display name of the player who guessed
	WinnerName string

	// Word is the word that was guessed
	Word string

	// IsLocalWinner indicates the reader made the guess
	IsLocalWinner bool

	// PreferredTone is the preferred tone for the message (optional)
	PreferredTone MessageTone
}

// GetRoundWonMessageOutput is the output for GetRoundWonMessage
type GetRoundWonMessageOutput struct {
	Title   string
	Message string
	Tone    MessageTone
}

// GetErrorMessageInput contains parameters for getting an error message
type GetErrorMessageInput struct {
	// ErrorType is the type of error
	ErrorType string
}

// GetErrorMessageOutput contains the result of getting an error message
type GetErrorMessageOutput struct {
	// Message is the generated message
	Message string
}

// ServiceConfig contains configuration for the messaging service
type ServiceConfig struct {
	// Optional seed for testing
	Seed int64
}
