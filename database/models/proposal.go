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

package models

import "errors"

var ErrProposalNotFound = errors.New("proposal not found")

// Proposal represents a governance proposal and its lifecycle state.
// Timestamps are stored as Unix seconds. ExecutedAt is nil until the
// proposal has been executed.
type Proposal struct {
	ID              uint64 `gorm:"primarykey"`
	Proposer        string `gorm:"index;size:128;not null"`
	Title           string `gorm:"size:256;not null"`
	Description     string `gorm:"not null"`
	Category        string `gorm:"size:64"`
	Type            uint8  `gorm:"index;not null"`
	State           uint8  `gorm:"index;not null"`
	RequestedAmount int64
	Beneficiary     string `gorm:"size:128"`
	CreatedAt       int64  `gorm:"not null"`
	VotingStart     int64  `gorm:"index;not null"`
	VotingEnd       int64  `gorm:"index;not null"`
	ExecutedAt      *int64
}

// TableName returns the table name
func (Proposal) TableName() string {
	return "proposal"
}

// ProposalAction represents one encoded action of a proposal. The opaque
// action payload lives in the blob store keyed by (proposal id, action
// index); this row carries the structured fields.
type ProposalAction struct {
	ID         uint   `gorm:"primarykey"`
	ProposalID uint64 `gorm:"uniqueIndex:idx_action_unique,priority:1;index;not null"`
	Idx        int    `gorm:"uniqueIndex:idx_action_unique,priority:2;not null"`
	Target     string `gorm:"size:128;not null"`
	Value      int64
}

// TableName returns the table name
func (ProposalAction) TableName() string {
	return "proposal_action"
}
