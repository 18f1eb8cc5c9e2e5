package domain

// CommandName identifies a custom session command.
type CommandName string

const actionPrefix = "com.prime.player"

// Custom commands understood by the session.
const (
	CommandAudioSessionID    CommandName = actionPrefix + ".action.AUDIO_SESSION_ID"
	CommandScheduleSleepTime CommandName = actionPrefix + ".action.SCHEDULE_SLEEP_TIME"
	CommandEqualizerConfig   CommandName = actionPrefix + ".action.EQUALIZER_CONFIG"
	CommandScrubbingMode     CommandName = actionPrefix + ".action.SCRUBBING_MODE"
	CommandToggleLike        CommandName = actionPrefix + ".action.TOGGLE_LIKE"
)

// Command is a request sent over a session connection.
// Only the fields relevant to Name are read.
type Command struct {
	Name CommandName

	// SleepMillis for SCHEDULE_SLEEP_TIME: 0 queries, SleepUnset cancels,
	// anything else schedules a pause that many milliseconds from now.
	SleepMillis int64

	// Equalizer for EQUALIZER_CONFIG; nil only queries.
	Equalizer *EqualizerConfig

	// Enabled for SCRUBBING_MODE.
	Enabled bool
}

// CommandResult is the response to a Command.
type CommandResult struct {
	AudioSessionID int
	// SleepRemaining is in milliseconds, SleepUnset when no pause is scheduled
	SleepRemaining int64
	Equalizer      EqualizerConfig
	// Favourite is the membership after TOGGLE_LIKE
	Favourite bool
}

// Action is a transport-level shortcut (widgets, notification buttons, HTTP).
type Action string

const (
	ActionTogglePlay Action = actionPrefix + ".action.TOGGLE_PLAY"
	ActionNext       Action = actionPrefix + ".action.NEXT"
	ActionPrevious   Action = actionPrefix + ".action.PREVIOUS"
	ActionSeekTo     Action = actionPrefix + ".action.SEEK_TO"
)
