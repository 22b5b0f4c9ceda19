package negotiation

// Signaling state of the local side of the session.
type SignalingState int

const (
	StateStable SignalingState = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateClosed
)

func (s SignalingState) String() string {
	switch s {
	case StateStable:
		return "stable"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Progress of the last description exchange started by one side.
type Cursor int

const (
	CursorNone Cursor = iota
	CursorOfferPending
	CursorAnswerApplied
)

func (c Cursor) String() string {
	switch c {
	case CursorNone:
		return "none"
	case CursorOfferPending:
		return "offer-pending"
	case CursorAnswerApplied:
		return "answer-applied"
	default:
		return "unknown"
	}
}

// Counters of a single session.
type Stats struct {
	OffersSent         int
	AnswersSent        int
	OffersIgnored      int
	Rollbacks          int
	AnswersIgnored     int
	CandidatesSent     int
	CandidatesBuffered int
	CandidatesFlushed  int
}
