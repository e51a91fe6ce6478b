// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gavel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/gavel/registry"
	"github.com/blinklabs-io/gavel/rewards"
	"github.com/blinklabs-io/gavel/tally"
	"github.com/blinklabs-io/gavel/timelock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOracle struct {
	weights     map[string]uint64
	totalWeight uint64
}

func (o *stubOracle) WeightAt(
	_ context.Context,
	account string,
	_ time.Time,
) (uint64, error) {
	return o.weights[account], nil
}

func (o *stubOracle) TotalWeightAt(
	_ context.Context,
	_ time.Time,
) (uint64, error) {
	return o.totalWeight, nil
}

type stubCustody struct {
	mu        sync.Mutex
	transfers map[string]int64
}

func (c *stubCustody) Transfer(
	_ context.Context,
	recipient string,
	amount int64,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transfers == nil {
		c.transfers = make(map[string]int64)
	}
	c.transfers[recipient] += amount
	return nil
}

type governorFixture struct {
	governor *Governor
	oracle   *stubOracle
	custody  *stubCustody
	mu       sync.Mutex
	now      time.Time
}

func (f *governorFixture) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *governorFixture) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestGovernor(
	t *testing.T,
	extraOpts ...ConfigOptionFunc,
) *governorFixture {
	t.Helper()
	fixture := &governorFixture{
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		oracle: &stubOracle{
			weights: map[string]uint64{
				"alice": 100,
				"bob":   60,
				"carol": 40,
			},
			totalWeight: 1000,
		},
		custody: &stubCustody{},
	}
	opts := []ConfigOptionFunc{
		WithPrometheusRegistry(prometheus.NewRegistry()),
		WithOracle(fixture.oracle),
		WithCustody(fixture.custody),
		WithAllowList("admin"),
		WithVotingDelay(24 * time.Hour),
		WithVotingPeriod(72 * time.Hour),
		WithTimelockDelay(48 * time.Hour),
		WithProposalThresholdPercent(5),
		WithQuorumPercent(10),
		WithLifecycleInterval(0),
		WithClock(fixture.Now),
	}
	opts = append(opts, extraOpts...)
	governor, err := New(NewConfig(opts...))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = governor.Stop()
	})
	fixture.governor = governor
	return fixture
}

func treasuryProposal() ProposalParams {
	return ProposalParams{
		Proposer:        "alice",
		Title:           "Fund integration testing",
		Description:     "Allocate funds for the integration test environment",
		Category:        "infrastructure",
		Type:            registry.ProposalTypeTreasuryAllocation,
		RequestedAmount: 400,
		Beneficiary:     "bob",
	}
}

func TestConfigValidation(t *testing.T) {
	testDefs := []struct {
		name  string
		opt   ConfigOptionFunc
		field string
	}{
		{
			"voting delay too short",
			WithVotingDelay(time.Hour),
			"votingDelay",
		},
		{
			"voting delay too long",
			WithVotingDelay(8 * 24 * time.Hour),
			"votingDelay",
		},
		{
			"voting period too short",
			WithVotingPeriod(24 * time.Hour),
			"votingPeriod",
		},
		{
			"voting period too long",
			WithVotingPeriod(15 * 24 * time.Hour),
			"votingPeriod",
		},
		{
			"threshold too high",
			WithProposalThresholdPercent(11),
			"proposalThresholdPercent",
		},
		{
			"quorum zero",
			WithQuorumPercent(0),
			"quorumPercent",
		},
		{
			"quorum above hundred",
			WithQuorumPercent(101),
			"quorumPercent",
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			cfg := NewConfig(
				WithOracle(&stubOracle{}),
				WithCustody(&stubCustody{}),
				testDef.opt,
			)
			_, err := New(cfg)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, testDef.field, validationErr.Field)
		})
	}
}

func TestSubmitProposalAuthorization(t *testing.T) {
	fixture := newTestGovernor(t)
	params := treasuryProposal()

	// Below threshold and not allow-listed
	params.Proposer = "mallory"
	_, err := fixture.governor.SubmitProposal(t.Context(), params)
	var unauthorizedErr *UnauthorizedError
	require.ErrorAs(t, err, &unauthorizedErr)

	// Allow-listed regardless of weight
	require.NoError(t, fixture.governor.DepositTreasury(1000))
	params.Proposer = "admin"
	_, err = fixture.governor.SubmitProposal(t.Context(), params)
	require.NoError(t, err)

	// Above threshold: alice holds 10% of total weight
	params.Proposer = "alice"
	_, err = fixture.governor.SubmitProposal(t.Context(), params)
	require.NoError(t, err)
}

func TestTreasuryProposalLifecycle(t *testing.T) {
	fixture := newTestGovernor(t)
	g := fixture.governor
	require.NoError(t, g.DepositTreasury(1000))

	proposalID, err := g.SubmitProposal(t.Context(), treasuryProposal())
	require.NoError(t, err)

	// The allocation is earmarked at submission but nothing is debited
	allocation, err := g.GetAllocation(proposalID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), allocation.Amount)
	assert.False(t, allocation.Released)
	assert.Equal(t, int64(1000), g.TreasuryBalance())

	// Voting has not opened yet
	_, err = g.CastVote(t.Context(), proposalID, "alice", tally.VoteFor, "")
	var notActiveErr *tally.ProposalNotActiveError
	require.ErrorAs(t, err, &notActiveErr)

	// Voting window opens after the voting delay
	fixture.Advance(25 * time.Hour)
	weight, err := g.CastVote(
		t.Context(), proposalID, "alice", tally.VoteFor, "needed for ci",
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), weight)
	_, err = g.CastVote(t.Context(), proposalID, "carol", tally.VoteAgainst, "")
	require.NoError(t, err)

	// Finalizing before the window closes fails
	_, err = g.FinalizeVoting(t.Context(), proposalID)
	var stillOpenErr *tally.VotingStillOpenError
	require.ErrorAs(t, err, &stillOpenErr)

	// Quorum met (140 of 1000 with 10% quorum), majority for
	fixture.Advance(72 * time.Hour)
	outcome, err := g.FinalizeVoting(t.Context(), proposalID)
	require.NoError(t, err)
	assert.Equal(t, tally.OutcomeSucceeded, outcome)
	proposal, err := g.GetProposal(proposalID)
	require.NoError(t, err)
	assert.Equal(t, registry.ProposalStateQueued, proposal.State)

	// Execution is gated behind the timelock
	err = g.ExecuteProposal(t.Context(), proposalID)
	var notReadyErr *timelock.NotReadyError
	require.ErrorAs(t, err, &notReadyErr)

	fixture.Advance(48 * time.Hour)
	require.NoError(t, g.ExecuteProposal(t.Context(), proposalID))
	assert.Equal(t, int64(600), g.TreasuryBalance())
	assert.Equal(t, int64(400), fixture.custody.transfers["bob"])
	allocation, err = g.GetAllocation(proposalID)
	require.NoError(t, err)
	assert.True(t, allocation.Released)
	proposal, err = g.GetProposal(proposalID)
	require.NoError(t, err)
	assert.Equal(t, registry.ProposalStateExecuted, proposal.State)
	require.NotNil(t, proposal.ExecutedAt)

	// Repeat execution fails
	err = g.ExecuteProposal(t.Context(), proposalID)
	var notExecutableErr *NotExecutableError
	require.ErrorAs(t, err, &notExecutableErr)

	stats := g.Stats()
	assert.Equal(t, uint64(1), stats.ExecutedProposals)
	assert.Equal(t, 0, stats.ActiveProposals)
	assert.Equal(t, 1, stats.TotalProposals)
}

func TestProposalDefeatedWithoutQuorum(t *testing.T) {
	fixture := newTestGovernor(t)
	g := fixture.governor
	params := treasuryProposal()
	params.Type = registry.ProposalTypeParameterChange
	params.RequestedAmount = 0
	params.Beneficiary = ""
	proposalID, err := g.SubmitProposal(t.Context(), params)
	require.NoError(t, err)

	// Only carol votes: 40 of 1000 misses the 10% quorum
	fixture.Advance(25 * time.Hour)
	_, err = g.CastVote(t.Context(), proposalID, "carol", tally.VoteFor, "")
	require.NoError(t, err)
	fixture.Advance(72 * time.Hour)
	outcome, err := g.FinalizeVoting(t.Context(), proposalID)
	require.NoError(t, err)
	assert.Equal(t, tally.OutcomeDefeated, outcome)
	proposal, err := g.GetProposal(proposalID)
	require.NoError(t, err)
	assert.Equal(t, registry.ProposalStateDefeated, proposal.State)
	assert.Empty(t, g.Stats().ActiveProposals)
}

func TestCancelProposal(t *testing.T) {
	fixture := newTestGovernor(t)
	g := fixture.governor
	require.NoError(t, g.DepositTreasury(1000))
	proposalID, err := g.SubmitProposal(t.Context(), treasuryProposal())
	require.NoError(t, err)

	// Only the proposer or an allow-listed account may cancel
	err = g.CancelProposal(proposalID, "mallory")
	var unauthorizedErr *UnauthorizedError
	require.ErrorAs(t, err, &unauthorizedErr)

	require.NoError(t, g.CancelProposal(proposalID, "alice"))
	proposal, err := g.GetProposal(proposalID)
	require.NoError(t, err)
	assert.Equal(t, registry.ProposalStateCancelled, proposal.State)
	// The unreleased allocation never debited the balance
	assert.Equal(t, int64(1000), g.TreasuryBalance())
}

func TestRewardsThroughGovernor(t *testing.T) {
	fixture := newTestGovernor(t)
	g := fixture.governor
	require.NoError(t, g.FundRewards(1000))
	require.NoError(
		t,
		g.UpdateContributionScore("admin", "dave", 6000),
	)

	// Distribution requires an allow-listed caller
	entries := []rewards.DistributionEntry{
		{Builder: "dave", Amount: 100, Contribution: "tooling"},
	}
	err := g.DistributeRewards("mallory", entries)
	var unauthorizedErr *UnauthorizedError
	require.ErrorAs(t, err, &unauthorizedErr)
	require.NoError(t, g.DistributeRewards("admin", entries))

	payout, err := g.ClaimReward(t.Context(), "dave", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(150), payout)
	assert.Equal(t, int64(150), fixture.custody.transfers["dave"])
}

func TestBatchVotingAcrossProposals(t *testing.T) {
	fixture := newTestGovernor(t)
	g := fixture.governor
	params := treasuryProposal()
	params.Type = registry.ProposalTypeParameterChange
	id1, err := g.SubmitProposal(t.Context(), params)
	require.NoError(t, err)
	id2, err := g.SubmitProposal(t.Context(), params)
	require.NoError(t, err)

	fixture.Advance(25 * time.Hour)
	_, err = g.CastVote(t.Context(), id1, "alice", tally.VoteFor, "")
	require.NoError(t, err)

	cast, err := g.CastVotesBatch(
		t.Context(),
		"alice",
		[]tally.BatchVoteEntry{
			{ProposalID: id1, Support: tally.VoteAgainst},
			{ProposalID: id2, Support: tally.VoteFor},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, cast)
	assert.Equal(t, uint64(100), g.GetTally(id2).ForWeight)
	// The duplicate entry did not flip the original vote
	assert.Equal(t, uint64(100), g.GetTally(id1).ForWeight)
	assert.Equal(t, uint64(0), g.GetTally(id1).AgainstWeight)
}

func TestConcurrentVoting(t *testing.T) {
	fixture := newTestGovernor(t)
	g := fixture.governor
	voters := []string{"alice", "bob", "carol"}
	params := treasuryProposal()
	params.Type = registry.ProposalTypeParameterChange
	proposalID, err := g.SubmitProposal(t.Context(), params)
	require.NoError(t, err)
	fixture.Advance(25 * time.Hour)

	// Each voter races ten attempts; exactly one per voter may land
	var wg sync.WaitGroup
	for _, voter := range voters {
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = g.CastVote(
					context.Background(),
					proposalID,
					voter,
					tally.VoteFor,
					"",
				)
			}()
		}
	}
	wg.Wait()
	assert.Equal(t, uint64(200), g.GetTally(proposalID).ForWeight)
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dataDir := t.TempDir()
	fixture := newTestGovernor(t, WithDatabasePath(dataDir))
	g := fixture.governor
	require.NoError(t, g.DepositTreasury(1000))
	proposalID, err := g.SubmitProposal(t.Context(), treasuryProposal())
	require.NoError(t, err)
	fixture.Advance(25 * time.Hour)
	_, err = g.CastVote(t.Context(), proposalID, "alice", tally.VoteFor, "")
	require.NoError(t, err)
	require.NoError(t, g.Stop())

	// Reopen from the same data directory
	fixture2 := newTestGovernor(t, WithDatabasePath(dataDir))
	g2 := fixture2.governor
	assert.Equal(t, int64(1000), g2.TreasuryBalance())
	proposal, err := g2.GetProposal(proposalID)
	require.NoError(t, err)
	assert.Equal(t, "Fund integration testing", proposal.Title)
	require.Len(t, proposal.Actions, 1)
	assert.Equal(t, "treasury", proposal.Actions[0].Target)
	assert.Equal(t, uint64(100), g2.GetTally(proposalID).ForWeight)
	allocation, err := g2.GetAllocation(proposalID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), allocation.Amount)
}
