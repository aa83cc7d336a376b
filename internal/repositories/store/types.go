package store

import (
	"encoding/json"
	"errors"
)

var (
	// ErrNotFound is returned when a record key holds no value
	ErrNotFound = errors.New("key not found")

	// ErrInvalidValue is returned for values that are not JSON documents
	ErrInvalidValue = errors.New("value must be a JSON document")

	// ErrNilHandler is returned when subscribing without a handler
	ErrNilHandler = errors.New("handler cannot be nil")
)

// childEnvelope is what a collection key publishes for each new child
type childEnvelope struct {
	Child string          `json:"child"`
	Value json.RawMessage `json:"value"`
}
