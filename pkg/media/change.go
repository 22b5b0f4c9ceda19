package media

// Effect of a mutation of the track set.
type Change int

const (
	ChangeNone Change = iota
	// A track has been enabled or disabled. Media sections stay the same.
	ChangeEnabled
	ChangeAdded
	ChangeRemoved
	ChangeReplaced
)

func (c Change) String() string {
	switch c {
	case ChangeNone:
		return "none"
	case ChangeEnabled:
		return "enabled"
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Reports whether the change alters the media sections of the session.
func (c Change) RequiresRenegotiation() bool {
	return c == ChangeAdded || c == ChangeRemoved || c == ChangeReplaced
}
