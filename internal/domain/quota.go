package domain

type Mode string

const (
	ModeNotYetOpen Mode = "not-yet-open"
	ModeAvailable  Mode = "available"
	ModeClosed     Mode = "closed"
)

// Scope wildcards. Quota settings rows are keyed by (group, type) where
// either half may be a wildcard covering every group or every ticket type.
const (
	ScopeAllGroups UserGroup  = "all"
	ScopeAnyType   TicketType = "any"
)

// ScopeKey identifies one quota settings row.
type ScopeKey struct {
	Group UserGroup
	Type  TicketType
}

func (k ScopeKey) String() string {
	return string(k.Group) + "/" + string(k.Type)
}

// ScopeKeysFor returns the four settings rows that apply to a purchase of
// ticket type tt by a user in group g, most specific first.
func ScopeKeysFor(g UserGroup, tt TicketType) [4]ScopeKey {
	return [4]ScopeKey{
		{Group: g, Type: tt},
		{Group: g, Type: ScopeAnyType},
		{Group: ScopeAllGroups, Type: tt},
		{Group: ScopeAllGroups, Type: ScopeAnyType},
	}
}

// QuotaSetting is one row of the ticket_settings table. Nil limits mean
// "no limit". QuotaMet and WaitingQuotaMet are one-way latches: the engine
// sets them true and never clears them.
type QuotaSetting struct {
	Scope             ScopeKey
	Quota             *int
	QuotaMet          bool
	WaitingQuota      *int
	WaitingQuotaMet   bool
	WaitingSmallQuota *int
	QuotaPerPerson    *int
	Mode              Mode
	Price             *int // pence
}

// Settings maps scope keys to their settings rows. Scopes without a row are
// unconstrained (NullSetting).
type Settings map[ScopeKey]QuotaSetting

// NullSetting is the implied row for scopes with no settings entry:
// no limits, available.
func NullSetting(k ScopeKey) QuotaSetting {
	return QuotaSetting{Scope: k, Mode: ModeAvailable}
}

func (s Settings) Get(k ScopeKey) QuotaSetting {
	if row, ok := s[k]; ok {
		return row
	}
	return NullSetting(k)
}

// CountKey identifies one inventory count bucket: a scope key plus whether
// the bucket counts waiting-list tickets.
type CountKey struct {
	Waiting bool
	Scope   ScopeKey
}

// Counts is a snapshot of unexpired ticket counts per bucket. It must be
// re-derived fresh, under the allocation lock, before any capacity decision.
type Counts map[CountKey]int

// AllCountKeys enumerates every bucket, including wildcard aggregates.
func AllCountKeys() []CountKey {
	groups := []UserGroup{ScopeAllGroups, GroupMembers, GroupAlumni}
	types := []TicketType{ScopeAnyType, TicketStandard, TicketVIP}
	keys := make([]CountKey, 0, 2*len(groups)*len(types))
	for _, w := range []bool{false, true} {
		for _, g := range groups {
			for _, t := range types {
				keys = append(keys, CountKey{Waiting: w, Scope: ScopeKey{Group: g, Type: t}})
			}
		}
	}
	return keys
}

// NoneMin returns the smaller of a and b, treating nil as infinity.
func NoneMin(a, b *int) *int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if *a < *b {
		return a
	}
	return b
}
