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
	"time"
)

type ProposalType uint8

const (
	ProposalTypeTreasuryAllocation ProposalType = iota
	ProposalTypeParameterChange
	ProposalTypeBuilderRewards
	ProposalTypeProtocolUpgrade
	ProposalTypeEmergencyAction
)

func (t ProposalType) String() string {
	switch t {
	case ProposalTypeTreasuryAllocation:
		return "treasury-allocation"
	case ProposalTypeParameterChange:
		return "parameter-change"
	case ProposalTypeBuilderRewards:
		return "builder-rewards"
	case ProposalTypeProtocolUpgrade:
		return "protocol-upgrade"
	case ProposalTypeEmergencyAction:
		return "emergency-action"
	default:
		return "unknown"
	}
}

type ProposalState uint8

const (
	ProposalStatePending ProposalState = iota
	ProposalStateActive
	ProposalStateDefeated
	ProposalStateSucceeded
	ProposalStateQueued
	ProposalStateExecuted
	ProposalStateCancelled
)

func (s ProposalState) String() string {
	switch s {
	case ProposalStatePending:
		return "pending"
	case ProposalStateActive:
		return "active"
	case ProposalStateDefeated:
		return "defeated"
	case ProposalStateSucceeded:
		return "succeeded"
	case ProposalStateQueued:
		return "queued"
	case ProposalStateExecuted:
		return "executed"
	case ProposalStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal returns true for states that permit no further transitions
func (s ProposalState) Terminal() bool {
	switch s {
	case ProposalStateDefeated,
		ProposalStateExecuted,
		ProposalStateCancelled:
		return true
	default:
		return false
	}
}

// validTransition encodes the allowed proposal state machine edges. Every
// transition is one-way
func validTransition(from ProposalState, to ProposalState) bool {
	if to == ProposalStateCancelled {
		return !from.Terminal()
	}
	switch from {
	case ProposalStatePending:
		return to == ProposalStateActive
	case ProposalStateActive:
		return to == ProposalStateDefeated || to == ProposalStateSucceeded
	case ProposalStateSucceeded:
		return to == ProposalStateQueued
	case ProposalStateQueued:
		return to == ProposalStateExecuted
	default:
		return false
	}
}

// Action is one encoded step of a proposal's execution
type Action struct {
	Target  string
	Value   int64
	Payload []byte
}

type Proposal struct {
	ID              uint64
	Proposer        string
	Actions         []Action
	Title           string
	Description     string
	Category        string
	Type            ProposalType
	State           ProposalState
	RequestedAmount int64
	Beneficiary     string
	CreatedAt       time.Time
	VotingStart     time.Time
	VotingEnd       time.Time
	ExecutedAt      *time.Time
}

// copy returns a deep copy so callers cannot mutate registry-owned state
func (p *Proposal) copy() Proposal {
	ret := *p
	ret.Actions = make([]Action, len(p.Actions))
	copy(ret.Actions, p.Actions)
	if p.ExecutedAt != nil {
		executedAt := *p.ExecutedAt
		ret.ExecutedAt = &executedAt
	}
	return ret
}
