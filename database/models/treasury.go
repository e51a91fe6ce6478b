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

var ErrAllocationNotFound = errors.New("treasury allocation not found")

// TreasuryState holds the single treasury balance pool. There is exactly
// one row with ID 1.
type TreasuryState struct {
	ID      uint  `gorm:"primarykey"`
	Balance int64 `gorm:"not null"`
}

// TableName returns the table name
func (TreasuryState) TableName() string {
	return "treasury_state"
}

// TreasuryAllocation represents an earmarked payout from the treasury,
// recorded when a treasury proposal is accepted and released exactly once
// by the execution pipeline after ReleaseTime has passed. The balance is
// debited at release, not at allocation.
type TreasuryAllocation struct {
	ProposalID  uint64 `gorm:"primarykey"`
	Recipient   string `gorm:"size:128;not null"`
	Amount      int64  `gorm:"not null"`
	Purpose     string `gorm:"size:256"`
	ReleaseTime int64  `gorm:"index;not null"`
	Released    bool   `gorm:"not null"`
}

// TableName returns the table name
func (TreasuryAllocation) TableName() string {
	return "treasury_allocation"
}
