package negotiation

// Glare tie-break role of an endpoint. Both sides compute it on their own from
// the pair of identifiers and always come to complementary results.
type Role int

const (
	// Yields to the remote offer on collision.
	RolePolite Role = iota
	// Ignores the remote offer on collision.
	RoleImpolite
)

func (r Role) String() string {
	if r == RolePolite {
		return "polite"
	}

	return "impolite"
}

// The endpoint with the greater identifier is polite.
func RoleFor(local, remote string) (Role, error) {
	switch {
	case local == remote:
		return RoleImpolite, ErrSameIdentity
	case local > remote:
		return RolePolite, nil
	default:
		return RoleImpolite, nil
	}
}
