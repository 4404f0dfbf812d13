package appevents

// AppEvent is a marker interface for events sent from the TUI to the App's logic controller.
// It uses an unexported method so only types embedding Event satisfy it.
type AppEvent interface {
	isAppEvent()
}

// Event can be embedded in other event types to satisfy the AppEvent interface.
type Event struct{}

func (Event) isAppEvent() {}

// --- App to UI Messages ---

// Error reports a failure the user should see.
type Error struct {
	Err error
}

// Notice is a one-line status update.
type Notice struct {
	Text string
}
