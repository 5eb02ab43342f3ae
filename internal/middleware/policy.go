package middleware

// Policy describes how the auth gateway treats a route. The router builds
// an explicit table at registration time; nothing is inferred from
// annotations or reflection.
type Policy int

const (
	// PolicyProtected routes require a validated session.
	PolicyProtected Policy = iota
	// PolicyPublic routes always pass; a syntactically valid access token
	// attaches the claimed user as a best-effort hint.
	PolicyPublic
	// PolicyPassthrough routes pass even without credentials but still get
	// the full validation/rotation treatment when credentials are present.
	// Sign-out and refresh must stay reachable for idempotent calls.
	PolicyPassthrough
)

// PolicyTable maps registered routes (method + route path as echo reports
// it) to their policy. Unlisted routes are protected.
type PolicyTable struct {
	rules map[string]Policy
}

func NewPolicyTable() *PolicyTable {
	return &PolicyTable{rules: map[string]Policy{}}
}

// Set records the policy for a route. Path is the echo route template,
// e.g. "/v1/speeches/:id".
func (t *PolicyTable) Set(method, path string, p Policy) {
	t.rules[method+" "+path] = p
}

// Lookup returns the route's policy, defaulting to protected so a route
// someone forgot to classify fails closed.
func (t *PolicyTable) Lookup(method, path string) Policy {
	if p, ok := t.rules[method+" "+path]; ok {
		return p
	}
	return PolicyProtected
}
