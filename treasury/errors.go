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
	"fmt"
	"time"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type InsufficientFundsError struct {
	Requested int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf(
		"insufficient treasury funds: requested %d, available %d",
		e.Requested,
		e.Available,
	)
}

type NotFoundError struct {
	ProposalID uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no allocation for proposal %d", e.ProposalID)
}

type NotYetReleasableError struct {
	ProposalID  uint64
	ReleaseTime time.Time
	Released    bool
}

func (e *NotYetReleasableError) Error() string {
	if e.Released {
		return fmt.Sprintf(
			"allocation for proposal %d has already been released",
			e.ProposalID,
		)
	}
	return fmt.Sprintf(
		"allocation for proposal %d is locked until %s",
		e.ProposalID,
		e.ReleaseTime.Format(time.RFC3339),
	)
}

type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return "unauthorized: " + e.Reason
}

// TransferError wraps a custody transfer failure. The release that hit it
// has been rolled back and can be retried from a clean state
type TransferError struct {
	Recipient string
	Amount    int64
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf(
		"funds transfer of %d to %s failed: %s",
		e.Amount,
		e.Recipient,
		e.Err,
	)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
