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

package treasury

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTransfer struct {
	recipient string
	amount    int64
}

type stubCustody struct {
	err       error
	transfers []stubTransfer
}

func (c *stubCustody) Transfer(
	_ context.Context,
	recipient string,
	amount int64,
) error {
	if c.err != nil {
		return c.err
	}
	c.transfers = append(c.transfers, stubTransfer{
		recipient: recipient,
		amount:    amount,
	})
	return nil
}

type treasuryFixture struct {
	ledger  *Ledger
	grant   ExecGrant
	custody *stubCustody
	now     time.Time
}

func newTestLedger(t *testing.T) *treasuryFixture {
	t.Helper()
	fixture := &treasuryFixture{
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		custody: &stubCustody{},
	}
	ledger, grant, err := New(Config{
		PromRegistry: prometheus.NewRegistry(),
		Custody:      fixture.custody,
		Now:          func() time.Time { return fixture.now },
	})
	require.NoError(t, err)
	fixture.ledger = ledger
	fixture.grant = grant
	return fixture
}

func TestDepositValidation(t *testing.T) {
	fixture := newTestLedger(t)
	var validationErr *ValidationError
	require.ErrorAs(t, fixture.ledger.Deposit(0), &validationErr)
	require.ErrorAs(t, fixture.ledger.Deposit(-5), &validationErr)
	require.NoError(t, fixture.ledger.Deposit(1000))
	assert.Equal(t, int64(1000), fixture.ledger.Balance())
}

func TestAllocateValidation(t *testing.T) {
	fixture := newTestLedger(t)
	require.NoError(t, fixture.ledger.Deposit(1000))
	future := fixture.now.Add(time.Hour)

	var validationErr *ValidationError
	err := fixture.ledger.Allocate(1, "", 100, "infra", future)
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "recipient", validationErr.Field)

	err = fixture.ledger.Allocate(1, "bob", 0, "infra", future)
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "amount", validationErr.Field)

	err = fixture.ledger.Allocate(1, "bob", 100, "infra", fixture.now)
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "releaseTime", validationErr.Field)

	err = fixture.ledger.Allocate(1, "bob", 2000, "infra", future)
	var insufficientErr *InsufficientFundsError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, int64(1000), insufficientErr.Available)
}

func TestAllocateAndRelease(t *testing.T) {
	fixture := newTestLedger(t)
	require.NoError(t, fixture.ledger.Deposit(1000))
	releaseTime := fixture.now.Add(time.Second)
	require.NoError(
		t,
		fixture.ledger.Allocate(1, "bob", 400, "infra", releaseTime),
	)
	// Allocation does not debit the balance
	assert.Equal(t, int64(1000), fixture.ledger.Balance())

	// Before the release time
	err := fixture.ledger.Release(t.Context(), fixture.grant, 1)
	var notReleasableErr *NotYetReleasableError
	require.ErrorAs(t, err, &notReleasableErr)
	assert.False(t, notReleasableErr.Released)

	// After the release time
	fixture.now = fixture.now.Add(2 * time.Second)
	require.NoError(t, fixture.ledger.Release(t.Context(), fixture.grant, 1))
	assert.Equal(t, int64(600), fixture.ledger.Balance())
	allocation, err := fixture.ledger.GetAllocation(1)
	require.NoError(t, err)
	assert.True(t, allocation.Released)
	require.Len(t, fixture.custody.transfers, 1)
	assert.Equal(
		t,
		stubTransfer{recipient: "bob", amount: 400},
		fixture.custody.transfers[0],
	)

	// Releasing the same allocation twice fails
	err = fixture.ledger.Release(t.Context(), fixture.grant, 1)
	require.ErrorAs(t, err, &notReleasableErr)
	assert.True(t, notReleasableErr.Released)
	assert.Equal(t, int64(600), fixture.ledger.Balance())
}

func TestReleaseRequiresGrant(t *testing.T) {
	fixture := newTestLedger(t)
	require.NoError(t, fixture.ledger.Deposit(1000))
	require.NoError(
		t,
		fixture.ledger.Allocate(
			1, "bob", 400, "infra", fixture.now.Add(time.Second),
		),
	)
	fixture.now = fixture.now.Add(time.Hour)

	var unauthorizedErr *UnauthorizedError
	// Zero grant
	err := fixture.ledger.Release(t.Context(), ExecGrant{}, 1)
	require.ErrorAs(t, err, &unauthorizedErr)
	// Grant issued by a different ledger
	other := newTestLedger(t)
	err = fixture.ledger.Release(t.Context(), other.grant, 1)
	require.ErrorAs(t, err, &unauthorizedErr)
	assert.Equal(t, int64(1000), fixture.ledger.Balance())
}

func TestReleaseRollsBackOnTransferFailure(t *testing.T) {
	fixture := newTestLedger(t)
	require.NoError(t, fixture.ledger.Deposit(1000))
	require.NoError(
		t,
		fixture.ledger.Allocate(
			1, "bob", 400, "infra", fixture.now.Add(time.Second),
		),
	)
	fixture.now = fixture.now.Add(time.Hour)
	fixture.custody.err = errors.New("custody offline")

	err := fixture.ledger.Release(t.Context(), fixture.grant, 1)
	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	// Balance and released flag rolled back
	assert.Equal(t, int64(1000), fixture.ledger.Balance())
	allocation, err := fixture.ledger.GetAllocation(1)
	require.NoError(t, err)
	assert.False(t, allocation.Released)

	// Retry succeeds once custody recovers
	fixture.custody.err = nil
	require.NoError(t, fixture.ledger.Release(t.Context(), fixture.grant, 1))
	assert.Equal(t, int64(600), fixture.ledger.Balance())
}

func TestReleaseDrainedBalance(t *testing.T) {
	fixture := newTestLedger(t)
	require.NoError(t, fixture.ledger.Deposit(1000))
	releaseTime := fixture.now.Add(time.Second)
	require.NoError(
		t,
		fixture.ledger.Allocate(1, "bob", 700, "infra", releaseTime),
	)
	require.NoError(
		t,
		fixture.ledger.Allocate(2, "carol", 700, "tooling", releaseTime),
	)
	fixture.now = fixture.now.Add(time.Hour)

	require.NoError(t, fixture.ledger.Release(t.Context(), fixture.grant, 1))
	// Second release no longer fits in the remaining balance
	err := fixture.ledger.Release(t.Context(), fixture.grant, 2)
	var insufficientErr *InsufficientFundsError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, int64(300), fixture.ledger.Balance())
}

func TestReleaseUnknownAllocation(t *testing.T) {
	fixture := newTestLedger(t)
	err := fixture.ledger.Release(t.Context(), fixture.grant, 42)
	var notFoundErr *NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}
