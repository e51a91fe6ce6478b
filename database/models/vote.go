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

// Vote represents a single vote cast on a proposal. The unique index on
// (proposal, voter) backs the write-once guarantee: a voter gets at most
// one row per proposal.
type Vote struct {
	ID         uint   `gorm:"primarykey"`
	ProposalID uint64 `gorm:"uniqueIndex:idx_vote_unique,priority:1;index;not null"`
	Voter      string `gorm:"uniqueIndex:idx_vote_unique,priority:2;size:128;not null"`
	Support    uint8  `gorm:"not null"`
	Weight     uint64 `gorm:"not null"`
	Reason     string `gorm:"size:512"`
	CastAt     int64  `gorm:"not null"`
}

// TableName returns the table name
func (Vote) TableName() string {
	return "vote"
}
