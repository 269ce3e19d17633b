package domain

// Availability is the merged decision surface for one (group, ticket type)
// pair. Nil limits mean "no limit"; WaitingSmall is three-valued, nil
// meaning no small-quota rule applied.
type Availability struct {
	Mode            Mode
	Spare           *int
	QuotaMet        bool
	WaitingSpare    *int
	WaitingQuotaMet bool
	WaitingSmall    *bool
	QPPAny          *int
	QPPType         *int
}

// Repair records a settings row whose latch disagreed with the counts:
// spare had reached zero but the quota_met flag was still false. The merge
// proceeds as if the latch were set; callers should log these.
type Repair struct {
	Scope   ScopeKey
	Waiting bool
}

// ComputeAvailability merges the four applicable scope rows with fresh
// counts into a single availability snapshot.
//
// Mode merges by precedence closed > not-yet-open > available; spares take
// the minimum across scopes (nil = unlimited); quota-met latches OR
// together; per-person caps take the minimum, wildcard-type rows feeding
// QPPAny and type-specific rows QPPType.
func ComputeAvailability(s Settings, c Counts, group UserGroup, tt TicketType) (Availability, []Repair) {
	out := Availability{Mode: ModeAvailable}
	var repairs []Repair

	for _, key := range ScopeKeysFor(group, tt) {
		row := s.Get(key)

		out.Mode = modePrecedence(out.Mode, row.Mode)

		count := c[CountKey{Scope: key}]
		waitingCount := c[CountKey{Waiting: true, Scope: key}]

		if row.Quota != nil {
			spare := *row.Quota - count
			met := row.QuotaMet
			if spare <= 0 && !met {
				repairs = append(repairs, Repair{Scope: key})
				met = true
			}
			out.QuotaMet = out.QuotaMet || met
			out.Spare = NoneMin(out.Spare, &spare)
		}

		if row.WaitingQuota != nil {
			spare := *row.WaitingQuota - waitingCount
			met := row.WaitingQuotaMet
			if spare <= 0 && !met {
				repairs = append(repairs, Repair{Scope: key, Waiting: true})
				met = true
			}
			out.WaitingQuotaMet = out.WaitingQuotaMet || met
			out.WaitingSpare = NoneMin(out.WaitingSpare, &spare)
		}

		out.WaitingSmall = mergeWaitingSmall(out.WaitingSmall, row.WaitingSmallQuota, waitingCount)

		if key.Type == ScopeAnyType {
			out.QPPAny = NoneMin(out.QPPAny, row.QuotaPerPerson)
		} else {
			out.QPPType = NoneMin(out.QPPType, row.QuotaPerPerson)
		}
	}

	return out, repairs
}

// modePrecedence returns the more restrictive of a and b.
func modePrecedence(a, b Mode) Mode {
	for _, m := range []Mode{ModeClosed, ModeNotYetOpen, ModeAvailable} {
		if a == m || b == m {
			return m
		}
	}
	return ModeAvailable
}

// mergeWaitingSmall folds one scope's small-quota rule into the running
// result. A prior false wins outright (deny overrides allow); a scope with
// no rule leaves the result untouched.
func mergeWaitingSmall(prev *bool, quota *int, waitingCount int) *bool {
	if prev != nil && !*prev {
		return prev
	}
	if quota == nil {
		return prev
	}
	v := waitingCount < *quota
	return &v
}
