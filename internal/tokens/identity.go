package tokens

// Identity is the snapshot of an account embedded in issued tokens.
type Identity struct {
	UserID      int64
	Subject     string
	Roles       []string
	Permissions []string
}

func cloneList(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
