package turn

// TurnError is a custom error type for turn coordination errors
type TurnError string

// Error implements the error interface
func (e TurnError) Error() string {
	return string(e)
}

// Define errors
const (
	ErrNoPlayers      TurnError = "no players to choose a drawer from"
	ErrAlreadyStarted TurnError = "coordinator already started"
	ErrNilConfig      TurnError = "config cannot be nil"
	ErrNilStore       TurnError = "store cannot be nil"
	ErrNilState       TurnError = "session state cannot be nil"
	ErrNilPicker      TurnError = "word picker cannot be nil"
	ErrNilClock       TurnError = "clock cannot be nil"
	ErrNilMessaging   TurnError = "messaging service cannot be nil"
	ErrNilCanvas      TurnError = "canvas resetter cannot be nil"
	ErrNilView        TurnError = "status view cannot be nil"
)
