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

package tally

import (
	"fmt"
	"time"
)

type AlreadyVotedError struct {
	ProposalID uint64
	Voter      string
}

func (e *AlreadyVotedError) Error() string {
	return fmt.Sprintf(
		"voter %s has already voted on proposal %d",
		e.Voter,
		e.ProposalID,
	)
}

type ProposalNotActiveError struct {
	ProposalID uint64
	State      string
}

func (e *ProposalNotActiveError) Error() string {
	return fmt.Sprintf(
		"proposal %d is not open for voting (state: %s)",
		e.ProposalID,
		e.State,
	)
}

type VotingStillOpenError struct {
	ProposalID uint64
	VotingEnd  time.Time
}

func (e *VotingStillOpenError) Error() string {
	return fmt.Sprintf(
		"voting on proposal %d is still open until %s",
		e.ProposalID,
		e.VotingEnd.Format(time.RFC3339),
	)
}

// OracleError wraps a voting power oracle failure. The operation that hit
// it made no state change and can be retried
type OracleError struct {
	Err error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("voting power oracle failure: %s", e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}
