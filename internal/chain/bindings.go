package chain

// Bindings accumulates the variables visible to templates over the
// lifetime of one input row's chain. It is owned exclusively by the chain
// processing that row and is never shared across rows.
//
// Precedence falls out of seeding order: input fields first, then secret
// aliases, then chain variables merged after each response. Last write
// wins, so a chain variable shadows a secret alias which shadows an input
// field of the same name.
type Bindings struct {
	vars map[string]string
}

// NewBindings creates an empty bindings set.
func NewBindings() *Bindings {
	return &Bindings{vars: make(map[string]string)}
}

// Set stores one binding.
func (b *Bindings) Set(key, value string) {
	b.vars[key] = value
}

// Delete removes one binding.
func (b *Bindings) Delete(key string) {
	delete(b.vars, key)
}

// Get retrieves one binding.
func (b *Bindings) Get(key string) (string, bool) {
	val, ok := b.vars[key]
	return val, ok
}

// Merge adds all pairs from the given map, overwriting existing keys.
func (b *Bindings) Merge(newVars map[string]string) {
	for key, value := range newVars {
		b.vars[key] = value
	}
}

// Map exposes the underlying map for template resolution and callback
// mutation. Callers rely on the row-exclusive ownership of Bindings.
func (b *Bindings) Map() map[string]string {
	return b.vars
}

// Snapshot returns a copy, for logging or tests that must not observe
// later mutation.
func (b *Bindings) Snapshot() map[string]string {
	copied := make(map[string]string, len(b.vars))
	for k, v := range b.vars {
		copied[k] = v
	}
	return copied
}
