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

// RewardsState holds the rewards pool. There is exactly one row with ID 1.
type RewardsState struct {
	ID   uint  `gorm:"primarykey"`
	Pool int64 `gorm:"not null"`
}

// TableName returns the table name
func (RewardsState) TableName() string {
	return "rewards_state"
}

// BuilderReward represents a distributed builder reward. Idx is the global
// reward index used by claims. The multiplier is frozen at distribution
// time and never recomputed.
type BuilderReward struct {
	ID           uint   `gorm:"primarykey"`
	Idx          int    `gorm:"uniqueIndex;not null"`
	Builder      string `gorm:"index;size:128;not null"`
	Amount       int64  `gorm:"not null"`
	Contribution string `gorm:"size:256"`
	Multiplier   int64  `gorm:"not null"`
	Claimed      bool   `gorm:"not null"`
	CreatedAt    int64  `gorm:"not null"`
}

// TableName returns the table name
func (BuilderReward) TableName() string {
	return "builder_reward"
}

// ContributionScore maps a builder to its current contribution score.
type ContributionScore struct {
	Builder string `gorm:"primarykey;size:128"`
	Score   int64  `gorm:"not null"`
}

// TableName returns the table name
func (ContributionScore) TableName() string {
	return "contribution_score"
}
