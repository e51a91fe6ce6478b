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

package timelock

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timelockFixture struct {
	scheduler *Scheduler
	now       time.Time
}

func newTestScheduler(t *testing.T) *timelockFixture {
	t.Helper()
	fixture := &timelockFixture{
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	scheduler, err := New(Config{
		PromRegistry: prometheus.NewRegistry(),
		Now:          func() time.Time { return fixture.now },
	})
	require.NoError(t, err)
	fixture.scheduler = scheduler
	return fixture
}

func TestScheduleRejectsDuplicate(t *testing.T) {
	fixture := newTestScheduler(t)
	require.NoError(t, fixture.scheduler.Schedule(1, 48*time.Hour))
	err := fixture.scheduler.Schedule(1, 48*time.Hour)
	var alreadyScheduledErr *AlreadyScheduledError
	require.ErrorAs(t, err, &alreadyScheduledErr)
	assert.Equal(t, uint64(1), alreadyScheduledErr.ProposalID)
}

func TestExecutionGate(t *testing.T) {
	fixture := newTestScheduler(t)
	require.NoError(t, fixture.scheduler.Schedule(1, 48*time.Hour))

	// Before the delay elapses
	assert.False(t, fixture.scheduler.IsReady(1))
	err := fixture.scheduler.MarkExecuted(1)
	var notReadyErr *NotReadyError
	require.ErrorAs(t, err, &notReadyErr)

	// After the delay elapses it succeeds exactly once
	fixture.now = fixture.now.Add(48 * time.Hour)
	assert.True(t, fixture.scheduler.IsReady(1))
	require.NoError(t, fixture.scheduler.MarkExecuted(1))
	err = fixture.scheduler.MarkExecuted(1)
	require.ErrorAs(t, err, &notReadyErr)
	assert.False(t, fixture.scheduler.IsReady(1))
}

func TestReadyEntryNeverExpires(t *testing.T) {
	fixture := newTestScheduler(t)
	require.NoError(t, fixture.scheduler.Schedule(1, time.Hour))
	fixture.now = fixture.now.Add(365 * 24 * time.Hour)
	assert.True(t, fixture.scheduler.IsReady(1))
	require.NoError(t, fixture.scheduler.MarkExecuted(1))
}

func TestCancel(t *testing.T) {
	fixture := newTestScheduler(t)
	require.NoError(t, fixture.scheduler.Schedule(1, time.Hour))
	require.NoError(t, fixture.scheduler.Cancel(1))
	// Repeat cancel is a no-op
	require.NoError(t, fixture.scheduler.Cancel(1))

	// Cancelled entries never become ready
	fixture.now = fixture.now.Add(2 * time.Hour)
	assert.False(t, fixture.scheduler.IsReady(1))
	err := fixture.scheduler.MarkExecuted(1)
	var notReadyErr *NotReadyError
	require.ErrorAs(t, err, &notReadyErr)
}

func TestCancelAfterExecution(t *testing.T) {
	fixture := newTestScheduler(t)
	require.NoError(t, fixture.scheduler.Schedule(1, time.Hour))
	fixture.now = fixture.now.Add(time.Hour)
	require.NoError(t, fixture.scheduler.MarkExecuted(1))
	err := fixture.scheduler.Cancel(1)
	var alreadyExecutedErr *AlreadyExecutedError
	require.ErrorAs(t, err, &alreadyExecutedErr)
}

func TestUnknownProposal(t *testing.T) {
	fixture := newTestScheduler(t)
	assert.False(t, fixture.scheduler.IsReady(99))
	var notFoundErr *NotFoundError
	require.ErrorAs(t, fixture.scheduler.MarkExecuted(99), &notFoundErr)
	require.ErrorAs(t, fixture.scheduler.Cancel(99), &notFoundErr)
	_, err := fixture.scheduler.Get(99)
	require.ErrorAs(t, err, &notFoundErr)
}
