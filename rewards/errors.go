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

package rewards

import (
	"fmt"
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
		"insufficient rewards pool: requested %d, available %d",
		e.Requested,
		e.Available,
	)
}

type NotFoundError struct {
	Index int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no reward record at index %d", e.Index)
}

type AlreadyClaimedError struct {
	Index int
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("reward %d has already been claimed", e.Index)
}

type NotOwnerError struct {
	Index   int
	Claimer string
	Owner   string
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf(
		"reward %d belongs to %s, not %s",
		e.Index,
		e.Owner,
		e.Claimer,
	)
}

// TransferError wraps a custody transfer failure. The claim that hit it
// has been rolled back and can be retried from a clean state
type TransferError struct {
	Recipient string
	Amount    int64
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf(
		"reward payout of %d to %s failed: %s",
		e.Amount,
		e.Recipient,
		e.Err,
	)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
