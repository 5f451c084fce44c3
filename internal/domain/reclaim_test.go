package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateSet_Immutable(t *testing.T) {
	src := []ReclaimCandidate{
		{Account: TokenAccountDescriptor{Address: "a1"}, Reason: ReasonZeroBalance},
		{Account: TokenAccountDescriptor{Address: "a2"}, Reason: ReasonSingletonNoDecimals},
	}
	set := NewCandidateSet("wallet", src)

	src[0].Account.Address = "mutated"
	got := set.Candidates()
	got[1].Reason = ReasonZeroBalance

	again := set.Candidates()
	assert.Equal(t, "a1", again[0].Account.Address)
	assert.Equal(t, ReasonSingletonNoDecimals, again[1].Reason)
	assert.Equal(t, WalletAddress("wallet"), set.Wallet())
	assert.Equal(t, 2, set.Len())
}

func TestCandidateSet_CountByReason(t *testing.T) {
	set := NewCandidateSet("wallet", []ReclaimCandidate{
		{Reason: ReasonZeroBalance},
		{Reason: ReasonZeroBalance},
		{Reason: ReasonSingletonNoDecimals},
	})

	counts := set.CountByReason()
	assert.Equal(t, 2, counts[ReasonZeroBalance])
	assert.Equal(t, 1, counts[ReasonSingletonNoDecimals])
}

func TestReason_IsValid(t *testing.T) {
	assert.True(t, ReasonZeroBalance.IsValid())
	assert.True(t, ReasonSingletonNoDecimals.IsValid())
	assert.False(t, Reason("dust").IsValid())
}
