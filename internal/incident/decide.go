package incident

// Action is what the state machine does for one probe result.
type Action int

const (
	// ActionNone: healthy with nothing open, or down and already tracked.
	ActionNone Action = iota
	// ActionOpen records a new incident and alerts.
	ActionOpen
	// ActionSuppress: down inside a maintenance window with nothing open.
	ActionSuppress
	// ActionResolve closes the open incident and announces recovery.
	ActionResolve
)

func (a Action) String() string {
	switch a {
	case ActionOpen:
		return "open"
	case ActionSuppress:
		return "suppress"
	case ActionResolve:
		return "resolve"
	default:
		return "none"
	}
}

// Decide maps (down, has open incident, under maintenance) to an action.
// Maintenance only gates opening: an incident that predates the window is
// still resolved on recovery.
func Decide(down, open, maintenance bool) Action {
	switch {
	case down && !open && maintenance:
		return ActionSuppress
	case down && !open:
		return ActionOpen
	case !down && open:
		return ActionResolve
	default:
		return ActionNone
	}
}

// DowntimeMinutes rounds an outage up to whole minutes.
func DowntimeMinutes(startedAt, resolvedAt int64) int64 {
	d := resolvedAt - startedAt
	if d <= 0 {
		return 0
	}
	return (d + 59) / 60
}
