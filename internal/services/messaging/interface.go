package messaging

import "context"

// Service is the interface for the messaging service
type Service interface {
	// GetStatusMessage returns the status line for the current turn
	GetStatusMessage(ctx context.Context, input *GetStatusMessageInput) (*GetStatusMessageOutput, error)

	// GetRoundWonMessage returns the announcement for a correct guess
	GetRoundWonMessage(ctx context.Context, input *GetRoundWonMessageInput) (*GetRoundWonMessageOutput, error)

	// GetErrorMessage returns a user-friendly error message
	GetErrorMessage(ctx context.Context, input *GetErrorMessageInput) (*GetErrorMessageOutput, error)
}
