package uuid

import "github.com/google/uuid"

//go:generate mockgen -package=mocks -destination=mocks/mock_uuid.go github.com/KirkDiggler/doodle/internal/common/uuid UUID

type UUID interface {
	NewUUID() string
}

// DefaultUUID generates random (version 4) ids, used for player identities
type DefaultUUID struct{}

func New() *DefaultUUID {
	return &DefaultUUID{}
}

// NewUUID returns a new random UUID
func (d *DefaultUUID) NewUUID() string {
	return uuid.New().String()
}

// OrderedUUID generates version 7 ids, which sort by creation time.
// Collection children use these so their ids read in append order.
type OrderedUUID struct{}

func NewOrdered() *OrderedUUID {
	return &OrderedUUID{}
}

// NewUUID returns a new time-ordered UUID, or a random one if the clock
// source fails
func (o *OrderedUUID) NewUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
