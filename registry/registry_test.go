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

package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(Config{
		PromRegistry: prometheus.NewRegistry(),
		VotingDelay:  24 * time.Hour,
		VotingPeriod: 72 * time.Hour,
	})
	require.NoError(t, err)
	return r
}

func testParams() ProposalParams {
	return ProposalParams{
		Proposer:    "alice",
		Title:       "Fund integration testing",
		Description: "Allocate funds for the integration test environment",
		Category:    "infrastructure",
		Type:        ProposalTypeTreasuryAllocation,
		RequestedAmount: 400,
		Beneficiary:     "bob",
		Actions: []Action{
			{Target: "treasury", Value: 400},
		},
	}
}

func TestCreateAssignsSequentialIds(t *testing.T) {
	r := newTestRegistry(t)
	id1, err := r.Create(testParams())
	require.NoError(t, err)
	id2, err := r.Create(testParams())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id1)
	assert.Equal(t, uint64(2), id2)
	p, err := r.Get(id1)
	require.NoError(t, err)
	assert.Equal(t, ProposalStatePending, p.State)
	assert.Equal(t, p.CreatedAt.Add(24*time.Hour), p.VotingStart)
	assert.Equal(t, p.VotingStart.Add(72*time.Hour), p.VotingEnd)
}

func TestCreateValidation(t *testing.T) {
	r := newTestRegistry(t)
	params := testParams()
	params.Title = ""
	_, err := r.Create(params)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "title", validationErr.Field)

	params = testParams()
	params.Description = ""
	_, err = r.Create(params)
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "description", validationErr.Field)
}

func TestGetUnknownProposal(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Get(42)
	var notFoundErr *NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
	assert.Equal(t, uint64(42), notFoundErr.ProposalID)
}

func TestGetReturnsCopy(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create(testParams())
	require.NoError(t, err)
	p1, err := r.Get(id)
	require.NoError(t, err)
	p1.Title = "mutated"
	p1.Actions[0].Target = "mutated"
	p2, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Fund integration testing", p2.Title)
	assert.Equal(t, "treasury", p2.Actions[0].Target)
}

func TestStateMachine(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create(testParams())
	require.NoError(t, err)

	// Disallowed edge from Pending
	err = r.Transition(id, ProposalStateSucceeded)
	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)

	// Full happy path
	for _, state := range []ProposalState{
		ProposalStateActive,
		ProposalStateSucceeded,
		ProposalStateQueued,
		ProposalStateExecuted,
	} {
		require.NoError(t, r.Transition(id, state))
	}
	p, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, ProposalStateExecuted, p.State)
	require.NotNil(t, p.ExecutedAt)

	// Terminal states permit nothing, including cancellation
	err = r.Transition(id, ProposalStateActive)
	require.ErrorAs(t, err, &transitionErr)
	err = r.Transition(id, ProposalStateCancelled)
	require.ErrorAs(t, err, &transitionErr)
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	r := newTestRegistry(t)
	for _, setup := range [][]ProposalState{
		{},
		{ProposalStateActive},
		{ProposalStateActive, ProposalStateSucceeded},
		{ProposalStateActive, ProposalStateSucceeded, ProposalStateQueued},
	} {
		id, err := r.Create(testParams())
		require.NoError(t, err)
		for _, state := range setup {
			require.NoError(t, r.Transition(id, state))
		}
		require.NoError(t, r.Transition(id, ProposalStateCancelled))
	}
}

func TestActiveIndexSwapWithLast(t *testing.T) {
	r := newTestRegistry(t)
	var ids []uint64
	for range 4 {
		id, err := r.Create(testParams())
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, ids, r.ListActive())

	// Cancel the second proposal: last element takes its slot
	require.NoError(t, r.Transition(ids[1], ProposalStateCancelled))
	active := r.ListActive()
	assert.Len(t, active, 3)
	assert.Equal(t, []uint64{ids[0], ids[3], ids[2]}, active)

	// Remaining removals drain the index
	for _, id := range []uint64{ids[0], ids[2], ids[3]} {
		require.NoError(t, r.Transition(id, ProposalStateCancelled))
	}
	assert.Empty(t, r.ListActive())
}

func TestTransitionUnknownProposal(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Transition(99, ProposalStateActive)
	var notFoundErr *NotFoundError
	assert.True(t, errors.As(err, &notFoundErr))
}
