package cartsync

// Completions remembers which keys have already been reported as complete.
// It is not safe for concurrent use.
type Completions struct {
	seen map[string]struct{}
}

// NewCompletions starts with the given keys already reported.
func NewCompletions(keys ...string) *Completions {
	c := &Completions{seen: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		c.seen[k] = struct{}{}
	}

	return c
}

// Update takes the current completed keys and returns the ones not reported
// before, in the order given. Keys missing from completed are forgotten, so
// an item that is removed and completed again is reported again.
func (c *Completions) Update(completed []string) []string {
	current := make(map[string]struct{}, len(completed))

	var fresh []string

	for _, k := range completed {
		current[k] = struct{}{}

		if _, ok := c.seen[k]; !ok {
			fresh = append(fresh, k)
		}
	}

	c.seen = current

	return fresh
}
