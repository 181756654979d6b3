package dispatch

import "path"

// entry binds one configured pushkin to its routing pattern.
type entry struct {
	pattern string
	exact   bool
	pushkin Pushkin
}

// Registry maps app_id to a configured Pushkin. It is built once at startup
// and is immutable thereafter, so lookups need no locking.
type Registry struct {
	exact map[string]Pushkin
	globs []entry
}

// NewRegistry builds a Router from configured (pattern, pushkin) pairs. A
// pattern with no glob metacharacters is treated as an exact match and always
// wins over a glob match for the same app_id, per SPEC_FULL.md's supplemented
// app_id_pattern semantics.
func NewRegistry(entries map[string]Pushkin) *Registry {
	r := &Registry{exact: make(map[string]Pushkin, len(entries))}
	for pattern, pk := range entries {
		if isGlob(pattern) {
			r.globs = append(r.globs, entry{pattern: pattern, pushkin: pk})
			continue
		}
		r.exact[pattern] = pk
	}
	return r
}

// Resolve finds the pushkin configured for appID, or nil if none matches.
// Unknown app_ids are never an error — the caller may have other gateways
// configured for them.
func (r *Registry) Resolve(appID string) Pushkin {
	if pk, ok := r.exact[appID]; ok {
		return pk
	}
	for _, e := range r.globs {
		if ok, _ := path.Match(e.pattern, appID); ok {
			return e.pushkin
		}
	}
	return nil
}

// All returns every distinct pushkin registered, for shutdown fan-out.
func (r *Registry) All() []Pushkin {
	seen := make(map[Pushkin]bool)
	var all []Pushkin
	for _, pk := range r.exact {
		if !seen[pk] {
			seen[pk] = true
			all = append(all, pk)
		}
	}
	for _, e := range r.globs {
		if !seen[e.pushkin] {
			seen[e.pushkin] = true
			all = append(all, e.pushkin)
		}
	}
	return all
}

func isGlob(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[':
			return true
		}
	}
	return false
}
