package ledger

import (
	"fmt"
	"sort"
	"sync"
)

// MemRegistry maps asset ids and currency symbols to their in-memory
// tokens. Registration happens through admin operations; lookups come
// from every engine on the hot path.
type MemRegistry struct {
	mu         sync.RWMutex
	assets     map[string]*MemToken
	groups     map[string]string
	currencies map[string]*MemToken
}

func NewMemRegistry() *MemRegistry {
	return &MemRegistry{
		assets:     make(map[string]*MemToken),
		groups:     make(map[string]string),
		currencies: make(map[string]*MemToken),
	}
}

func (r *MemRegistry) Asset(id string) (SnapshotToken, bool) {
	t, ok := r.AssetToken(id)
	if !ok {
		return nil, false
	}
	return t, true
}

func (r *MemRegistry) Currency(symbol string) (Token, bool) {
	t, ok := r.CurrencyToken(symbol)
	if !ok {
		return nil, false
	}
	return t, true
}

// AssetToken returns the concrete token so admin operations can mint,
// burn and pause.
func (r *MemRegistry) AssetToken(id string) (*MemToken, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.assets[id]
	return t, ok
}

func (r *MemRegistry) CurrencyToken(symbol string) (*MemToken, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.currencies[symbol]
	return t, ok
}

// RegisterAsset creates a snapshot-capable asset token under the id,
// tagged with the project group it belongs to.
func (r *MemRegistry) RegisterAsset(id, group string, decimals uint8) (*MemToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[id]; exists {
		return nil, fmt.Errorf("asset %q already registered", id)
	}
	t := NewMemToken(id, decimals)
	r.assets[id] = t
	r.groups[id] = group
	return t, nil
}

// AssetGroup returns the group tag of a registered asset.
func (r *MemRegistry) AssetGroup(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	return g, ok
}

// RegisterCurrency creates a settlement currency token under the symbol.
func (r *MemRegistry) RegisterCurrency(symbol string, decimals uint8) (*MemToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.currencies[symbol]; exists {
		return nil, fmt.Errorf("currency %q already registered", symbol)
	}
	t := NewMemToken(symbol, decimals)
	r.currencies[symbol] = t
	return t, nil
}

// AssetIDs returns all registered asset ids, sorted.
func (r *MemRegistry) AssetIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.assets))
	for id := range r.assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CurrencySymbols returns all registered currency symbols, sorted.
func (r *MemRegistry) CurrencySymbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.currencies))
	for s := range r.currencies {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// RegistryState is the serializable image of the registry.
type RegistryState struct {
	Assets     map[string]TokenState `json:"assets"`
	Groups     map[string]string     `json:"groups"`
	Currencies map[string]TokenState `json:"currencies"`
}

// State captures every registered token.
func (r *MemRegistry) State() RegistryState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := RegistryState{
		Assets:     make(map[string]TokenState, len(r.assets)),
		Groups:     make(map[string]string, len(r.groups)),
		Currencies: make(map[string]TokenState, len(r.currencies)),
	}
	for id, t := range r.assets {
		st.Assets[id] = t.State()
	}
	for id, g := range r.groups {
		st.Groups[id] = g
	}
	for symbol, t := range r.currencies {
		st.Currencies[symbol] = t.State()
	}
	return st
}

// RestoreRegistry rebuilds a registry from a captured state.
func RestoreRegistry(st RegistryState) *MemRegistry {
	r := NewMemRegistry()
	for id, ts := range st.Assets {
		r.assets[id] = RestoreToken(ts)
	}
	for id, g := range st.Groups {
		r.groups[id] = g
	}
	for symbol, ts := range st.Currencies {
		r.currencies[symbol] = RestoreToken(ts)
	}
	return r
}
