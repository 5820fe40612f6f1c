package bookmeta

// Registry holds the ordered provider list. Order is priority: the
// aggregator walks it front to back and the first success wins.
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry with the given providers in priority order.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// Register appends a provider at the lowest priority.
func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
}

// All returns the providers in priority order.
func (r *Registry) All() []Provider {
	return r.providers
}

// WithCapability returns the providers declaring c, preserving priority order.
func (r *Registry) WithCapability(c Capability) []Provider {
	var out []Provider
	for _, p := range r.providers {
		if p.Capabilities().Has(c) {
			out = append(out, p)
		}
	}
	return out
}

// Lookup returns the provider with the given name, or nil.
func (r *Registry) Lookup(name string) Provider {
	for _, p := range r.providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Ordered returns providers matching names, in the order names are
// given, skipping unknown names and providers lacking c. This is how a
// configured priority policy (base lookup order, cover enrichment order)
// is resolved against the registry.
func (r *Registry) Ordered(names []string, c Capability) []Provider {
	var out []Provider
	for _, name := range names {
		p := r.Lookup(name)
		if p == nil || !p.Capabilities().Has(c) {
			continue
		}
		out = append(out, p)
	}
	return out
}
