package gateway

// Allowlist authorizes buyers by exact, case-sensitive peer id
type Allowlist struct {
	buyers map[string]struct{}
}

func NewAllowlist(buyers []string) *Allowlist {
	set := make(map[string]struct{}, len(buyers))
	for _, b := range buyers {
		set[b] = struct{}{}
	}
	return &Allowlist{buyers: set}
}

// Allowed reports whether the buyer may use the gateway. An empty list lets
// everyone in, including callers without an identity.
func (a *Allowlist) Allowed(buyer string, present bool) bool {
	if len(a.buyers) == 0 {
		return true
	}
	if !present {
		return false
	}
	_, ok := a.buyers[buyer]
	return ok
}

func (a *Allowlist) Len() int {
	return len(a.buyers)
}
