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

// TimelockEntry tracks the execution delay window for a queued proposal.
// Entries have no expiry: once ReadyAt has passed the proposal stays
// executable until executed or cancelled.
type TimelockEntry struct {
	ProposalID  uint64 `gorm:"primarykey"`
	ScheduledAt int64  `gorm:"not null"`
	ReadyAt     int64  `gorm:"index;not null"`
	Executed    bool   `gorm:"not null"`
	Cancelled   bool   `gorm:"not null"`
}

// TableName returns the table name
func (TimelockEntry) TableName() string {
	return "timelock_entry"
}
