package models

// DefaultRoom is used when no room is requested
const DefaultRoom = "lobby"

// Streams names the store keys of one room
type Streams struct {
	Draw      string
	Chat      string
	Players   string
	GameState string
}

// StreamsFor returns the keys of room, falling back to DefaultRoom
func StreamsFor(room string) Streams {
	if room == "" {
		room = DefaultRoom
	}
	return Streams{
		Draw:      room + ":draw",
		Chat:      room + ":chat",
		Players:   room + ":players",
		GameState: room + ":gameState",
	}
}
