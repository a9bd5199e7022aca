// Package access holds the platform role table and transfer blacklist.
// Roles are flat: holding Admin does not make an exact HasRole check for
// Operator true. Escalation checks go through HasAtLeast, which ORs the
// requested tier with every tier above it.
package access

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Role identifies a permission tier.
type Role uint8

const (
	RoleNone     Role = 0
	RoleOperator Role = 1
	RoleManager  Role = 2
	RoleAdmin    Role = 3
)

// roleOrder is the escalation ladder, lowest tier first.
var roleOrder = []Role{RoleOperator, RoleManager, RoleAdmin}

func (r Role) String() string {
	switch r {
	case RoleOperator:
		return "operator"
	case RoleManager:
		return "manager"
	case RoleAdmin:
		return "admin"
	default:
		return "none"
	}
}

// ParseRole maps a wire-format role name back to its Role.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "operator":
		return RoleOperator, true
	case "manager":
		return RoleManager, true
	case "admin":
		return RoleAdmin, true
	default:
		return RoleNone, false
	}
}

// Store is the in-memory role and blacklist table. Mutations return
// whether anything changed so callers can skip recording no-ops.
type Store struct {
	mu        sync.RWMutex
	members   map[Role]map[common.Address]struct{}
	admins    map[Role]Role
	blacklist map[common.Address]struct{}
}

func NewStore() *Store {
	members := make(map[Role]map[common.Address]struct{}, len(roleOrder))
	admins := make(map[Role]Role, len(roleOrder))
	for _, r := range roleOrder {
		members[r] = make(map[common.Address]struct{})
		admins[r] = RoleAdmin
	}

	return &Store{
		members:   members,
		admins:    admins,
		blacklist: make(map[common.Address]struct{}),
	}
}

// HasRole reports exact membership in a single role.
func (s *Store) HasRole(role Role, account common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasRoleLocked(role, account)
}

func (s *Store) hasRoleLocked(role Role, account common.Address) bool {
	set, ok := s.members[role]
	if !ok {
		return false
	}
	_, held := set[account]
	return held
}

// HasAtLeast reports whether the account holds the tier role or any role
// above it in the escalation ladder.
func (s *Store) HasAtLeast(tier Role, account common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range roleOrder {
		if r >= tier && s.hasRoleLocked(r, account) {
			return true
		}
	}
	return false
}

// RoleAdmin returns the role that administers grant and revoke for the
// given role. Every role is Admin-administered unless reconfigured.
func (s *Store) RoleAdmin(role Role) Role {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if admin, ok := s.admins[role]; ok {
		return admin
	}
	return RoleAdmin
}

// Grant adds the account to the role. Returns false when the account
// already held it.
func (s *Store) Grant(role Role, account common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.members[role]
	if !ok {
		return false
	}
	if _, held := set[account]; held {
		return false
	}
	set[account] = struct{}{}
	return true
}

// Revoke removes the account from the role. Returns false when the
// account did not hold it.
func (s *Store) Revoke(role Role, account common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.members[role]
	if !ok {
		return false
	}
	if _, held := set[account]; !held {
		return false
	}
	delete(set, account)
	return true
}

// IsBlacklisted reports whether the account is barred from trading and
// claims.
func (s *Store) IsBlacklisted(account common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, barred := s.blacklist[account]
	return barred
}

// SetBlacklisted flips the blacklist flag. Returns false when the flag
// already had the requested value.
func (s *Store) SetBlacklisted(account common.Address, barred bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, cur := s.blacklist[account]
	if cur == barred {
		return false
	}
	if barred {
		s.blacklist[account] = struct{}{}
	} else {
		delete(s.blacklist, account)
	}
	return true
}

// Members returns a copy of the role's membership for state capture.
func (s *Store) Members(role Role) []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.members[role]
	out := make([]common.Address, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	return out
}

// Blacklisted returns a copy of the blacklist for state capture.
func (s *Store) Blacklisted() []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Address, 0, len(s.blacklist))
	for a := range s.blacklist {
		out = append(out, a)
	}
	return out
}

// StoreState is the serializable image of the store. Addresses are
// hex-encoded and sorted so captures are deterministic.
type StoreState struct {
	Members   map[string][]string `json:"members"`
	Blacklist []string            `json:"blacklist"`
}

// State captures every role membership and the blacklist.
func (s *Store) State() StoreState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := StoreState{
		Members:   make(map[string][]string, len(roleOrder)),
		Blacklist: make([]string, 0, len(s.blacklist)),
	}
	for _, r := range roleOrder {
		addrs := make([]string, 0, len(s.members[r]))
		for a := range s.members[r] {
			addrs = append(addrs, a.Hex())
		}
		sort.Strings(addrs)
		st.Members[r.String()] = addrs
	}
	for a := range s.blacklist {
		st.Blacklist = append(st.Blacklist, a.Hex())
	}
	sort.Strings(st.Blacklist)
	return st
}

// RestoreStore rebuilds a store from a captured state.
func RestoreStore(st StoreState) *Store {
	s := NewStore()
	for name, addrs := range st.Members {
		role, ok := ParseRole(name)
		if !ok {
			continue
		}
		for _, hex := range addrs {
			s.members[role][common.HexToAddress(hex)] = struct{}{}
		}
	}
	for _, hex := range st.Blacklist {
		s.blacklist[common.HexToAddress(hex)] = struct{}{}
	}
	return s
}
