package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestNoneMin(t *testing.T) {
	assert.Nil(t, NoneMin(nil, nil))

	got := NoneMin(nil, intPtr(5))
	require.NotNil(t, got)
	assert.Equal(t, 5, *got)

	got = NoneMin(intPtr(5), nil)
	require.NotNil(t, got)
	assert.Equal(t, 5, *got)

	got = NoneMin(intPtr(3), intPtr(7))
	require.NotNil(t, got)
	assert.Equal(t, 3, *got)
}

func TestModePrecedence(t *testing.T) {
	assert.Equal(t, ModeClosed, modePrecedence(ModeClosed, ModeAvailable))
	assert.Equal(t, ModeClosed, modePrecedence(ModeAvailable, ModeClosed))
	assert.Equal(t, ModeNotYetOpen, modePrecedence(ModeNotYetOpen, ModeAvailable))
	assert.Equal(t, ModeClosed, modePrecedence(ModeNotYetOpen, ModeClosed))
	assert.Equal(t, ModeAvailable, modePrecedence(ModeAvailable, ModeAvailable))
}

func TestComputeAvailability(t *testing.T) {
	scope := func(g UserGroup, tt TicketType) ScopeKey { return ScopeKey{Group: g, Type: tt} }

	t.Run("spare is minimum across scopes", func(t *testing.T) {
		s := Settings{
			scope(GroupMembers, TicketStandard): {
				Scope: scope(GroupMembers, TicketStandard),
				Quota: intPtr(100), Mode: ModeAvailable,
			},
			scope(ScopeAllGroups, ScopeAnyType): {
				Scope: scope(ScopeAllGroups, ScopeAnyType),
				Quota: intPtr(50), Mode: ModeAvailable,
			},
		}
		c := Counts{
			{Scope: scope(GroupMembers, TicketStandard)}: 10,
			{Scope: scope(ScopeAllGroups, ScopeAnyType)}: 45,
		}

		avail, repairs := ComputeAvailability(s, c, GroupMembers, TicketStandard)
		assert.Empty(t, repairs)
		assert.Equal(t, ModeAvailable, avail.Mode)
		require.NotNil(t, avail.Spare)
		assert.Equal(t, 5, *avail.Spare)
		assert.False(t, avail.QuotaMet)
	})

	t.Run("no quota anywhere means unlimited", func(t *testing.T) {
		avail, repairs := ComputeAvailability(Settings{}, Counts{}, GroupAlumni, TicketVIP)
		assert.Empty(t, repairs)
		assert.Nil(t, avail.Spare)
		assert.Nil(t, avail.WaitingSpare)
		assert.Nil(t, avail.QPPAny)
		assert.Nil(t, avail.QPPType)
	})

	t.Run("closed anywhere closes everything", func(t *testing.T) {
		s := Settings{
			scope(ScopeAllGroups, ScopeAnyType): {
				Scope: scope(ScopeAllGroups, ScopeAnyType), Mode: ModeClosed,
			},
		}
		avail, _ := ComputeAvailability(s, Counts{}, GroupMembers, TicketStandard)
		assert.Equal(t, ModeClosed, avail.Mode)
	})

	t.Run("exhausted scope with unset latch is repaired", func(t *testing.T) {
		key := scope(ScopeAllGroups, TicketStandard)
		s := Settings{
			key: {Scope: key, Quota: intPtr(10), QuotaMet: false, Mode: ModeAvailable},
		}
		c := Counts{{Scope: key}: 10}

		avail, repairs := ComputeAvailability(s, c, GroupMembers, TicketStandard)
		assert.True(t, avail.QuotaMet)
		require.Len(t, repairs, 1)
		assert.Equal(t, key, repairs[0].Scope)
		assert.False(t, repairs[0].Waiting)
	})

	t.Run("waiting small quota denies once any scope denies", func(t *testing.T) {
		memberKey := scope(GroupMembers, TicketStandard)
		allKey := scope(ScopeAllGroups, ScopeAnyType)
		s := Settings{
			memberKey: {Scope: memberKey, WaitingSmallQuota: intPtr(100), Mode: ModeAvailable},
			allKey:    {Scope: allKey, WaitingSmallQuota: intPtr(5), Mode: ModeAvailable},
		}
		c := Counts{
			{Waiting: true, Scope: memberKey}: 2,
			{Waiting: true, Scope: allKey}:    9,
		}

		avail, _ := ComputeAvailability(s, c, GroupMembers, TicketStandard)
		require.NotNil(t, avail.WaitingSmall)
		assert.False(t, *avail.WaitingSmall)
	})

	t.Run("per-person caps split by wildcard type", func(t *testing.T) {
		s := Settings{
			scope(GroupMembers, ScopeAnyType): {
				Scope: scope(GroupMembers, ScopeAnyType), QuotaPerPerson: intPtr(4), Mode: ModeAvailable,
			},
			scope(ScopeAllGroups, TicketVIP): {
				Scope: scope(ScopeAllGroups, TicketVIP), QuotaPerPerson: intPtr(1), Mode: ModeAvailable,
			},
		}
		avail, _ := ComputeAvailability(s, Counts{}, GroupMembers, TicketVIP)
		require.NotNil(t, avail.QPPAny)
		assert.Equal(t, 4, *avail.QPPAny)
		require.NotNil(t, avail.QPPType)
		assert.Equal(t, 1, *avail.QPPType)
	})
}

func TestPaymentReference(t *testing.T) {
	crsid := "abc123"
	u := User{ID: 42, CRSID: &crsid, Email: "abc123@cam.ac.uk"}
	assert.Equal(t, "abc123/0042", u.PaymentReference())

	v := User{ID: 7, Email: "some.person+x@example.com"}
	assert.Equal(t, "someperso/0007", v.PaymentReference())
}
