package identitymap

// Hooks defines callbacks for identity map events. Hooks run synchronously
// while the scope is locked: they must be cheap and must not call back into
// the scope. Add hooks before the manager hands out scopes.
type Hooks struct {
	OnHit      []OnHitHook
	OnMiss     []OnMissHook
	OnRegister []OnRegisterHook
	OnEvict    []OnEvictHook
	OnReset    []OnResetHook
}

type (
	// OnHitHook is called when a lookup finds an instance.
	OnHitHook func(table, key string)

	// OnMissHook is called when a lookup finds nothing.
	OnMissHook func(table, key string)

	// OnRegisterHook is called when an instance is stored in a slot.
	OnRegisterHook func(table, key string)

	// OnEvictHook is called when a slot is emptied.
	OnEvictHook func(table, key string, reason EvictReason)

	// OnResetHook is called when a table is discarded with the number of
	// entries it held.
	OnResetHook func(table string, dropped int)
)

// EvictReason tells why a slot was emptied.
type EvictReason int

const (
	// EvictReasonExplicit covers Evict calls and pre-delete notifications.
	EvictReasonExplicit EvictReason = iota
	// EvictReasonReclaimed covers entries dropped by a reclaimable table.
	EvictReasonReclaimed
)

func (r EvictReason) String() string {
	switch r {
	case EvictReasonExplicit:
		return "explicit"
	case EvictReasonReclaimed:
		return "reclaimed"
	default:
		return "unknown"
	}
}

func (h *Hooks) AddOnHit(hook OnHitHook)           { h.OnHit = append(h.OnHit, hook) }
func (h *Hooks) AddOnMiss(hook OnMissHook)         { h.OnMiss = append(h.OnMiss, hook) }
func (h *Hooks) AddOnRegister(hook OnRegisterHook) { h.OnRegister = append(h.OnRegister, hook) }
func (h *Hooks) AddOnEvict(hook OnEvictHook)       { h.OnEvict = append(h.OnEvict, hook) }
func (h *Hooks) AddOnReset(hook OnResetHook)       { h.OnReset = append(h.OnReset, hook) }

func (h *Hooks) hit(table, key string) {
	if h == nil {
		return
	}
	for _, hook := range h.OnHit {
		hook(table, key)
	}
}

func (h *Hooks) miss(table, key string) {
	if h == nil {
		return
	}
	for _, hook := range h.OnMiss {
		hook(table, key)
	}
}

func (h *Hooks) register(table, key string) {
	if h == nil {
		return
	}
	for _, hook := range h.OnRegister {
		hook(table, key)
	}
}

func (h *Hooks) evict(table, key string, reason EvictReason) {
	if h == nil {
		return
	}
	for _, hook := range h.OnEvict {
		hook(table, key, reason)
	}
}

func (h *Hooks) reset(table string, dropped int) {
	if h == nil {
		return
	}
	for _, hook := range h.OnReset {
		hook(table, dropped)
	}
}
