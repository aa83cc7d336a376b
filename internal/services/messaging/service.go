package messaging

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// service implements the Service interface
type service struct {
	// Random number generator for selecting random messages
	mu   sync.Mutex
	rand *rand.Rand
}

// NewService creates a new messaging service
func NewService(config *ServiceConfig) (Service, error) {
	seed := time.Now().UnixNano()
	if config != nil && config.Seed != 0 {
		seed = config.Seed
	}

	return &service{
		rand: rand.New(rand.NewSource(seed)),
	}, nil
}

func (s *service) pick(options []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return options[s.rand.Intn(len(options))]
}

// GetStatusMessage returns the status line for the current turn
func (s *service) GetStatusMessage(ctx context.Context, input *GetStatusMessageInput) (*GetStatusMessageOutput, error) {
	if input == nil {
		return nil, errors.New("input cannot be nil")
	}

	switch {
	case !input.Started:
		return &GetStatusMessageOutput{
			Message: "Waiting for players to join...",
		}, nil
	case input.Drawing:
		return &GetStatusMessageOutput{
			Message: fmt.Sprintf("Your turn to draw! The word is: %s", input.Word),
		}, nil
	default:
		return &GetStatusMessageOutput{
			Message: fmt.Sprintf("%s is drawing!", input.DrawerName),
		}, nil
	}
}

// GetRoundWonMessage returns the announcement for a correct guess
func (s *service) GetRoundWonMessage(ctx context.Context, input *GetRoundWonMessageInput) (*GetRoundWonMessageOutput, error) {
	if input == nil {
		return nil, errors.New("input cannot be nil")
	}

	tone := input.PreferredTone
	if tone == "" {
		tone = ToneCelebration
	}

	var titles, messages []string
	if input.IsLocalWinner {
		titles = []string{
			"You got it!",
			"Nailed it!",
			"Mind reader!",
		}
		messages = []string{
			fmt.Sprintf("You guessed it! The word was %s.", input.Word),
			fmt.Sprintf("Correct! It was %s all along.", input.Word),
			fmt.Sprintf("%s! Your turn might be next.", input.Word),
		}
	} else {
		titles = []string{
			"Round over!",
			"We have a winner!",
			"Guessed!",
		}
		messages = []string{
			fmt.Sprintf("%s guessed it! The word was %s.", input.WinnerName, input.Word),
			fmt.Sprintf("%s saw right through it: %s.", input.WinnerName, input.Word),
			fmt.Sprintf("Too slow! %s already said %s.", input.WinnerName, input.Word),
		}
	}

	if tone == ToneFunny {
		titles = []string{
			"Stop the presses!",
			"Someone call a museum!",
			"Telepathy confirmed",
		}
		messages = []string{
			fmt.Sprintf("%s decoded that masterpiece. It was %s, apparently.", input.WinnerName, input.Word),
			fmt.Sprintf("Against all odds, %s saw a %s in there.", input.WinnerName, input.Word),
			fmt.Sprintf("%s guessed %s. The artist is as surprised as you are.", input.WinnerName, input.Word),
		}
	}

	if tone == ToneNeutral {
		return &GetRoundWonMessageOutput{
			Title:   "Round over",
			Message: fmt.Sprintf("%s guessed the word %s.", input.WinnerName, input.Word),
			Tone:    tone,
		}, nil
	}

	return &GetRoundWonMessageOutput{
		Title:   s.pick(titles),
		Message: s.pick(messages),
		Tone:    tone,
	}, nil
}

// GetErrorMessage returns a user-friendly error message
func (s *service) GetErrorMessage(ctx context.Context, input *GetErrorMessageInput) (*GetErrorMessageOutput, error) {
	if input == nil {
		return nil, errors.New("input cannot be nil")
	}

	var messages []string
	switch input.ErrorType {
	case ErrorTypeNotDrawer:
		messages = []string{
			"Hands off the canvas, it's not your turn!",
			"Only the drawer can draw. Try guessing instead!",
			"Patience! Your turn to draw will come.",
		}
	case ErrorTypeRateLimit:
		messages = []string{
			"Slow down! You're sending too fast.",
		}
	case ErrorTypeSendFailed:
		messages = []string{
			"That didn't go through. Try again.",
		}
	default:
		messages = []string{
			"Something went wrong.",
		}
	}

	return &GetErrorMessageOutput{
		Message: s.pick(messages),
	}, nil
}
