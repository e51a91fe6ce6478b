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

package node

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileOracle resolves voting weight from a YAML snapshot of account
// weights. The snapshot is loaded once at startup, so lookups are
// deterministic for the lifetime of the process regardless of checkpoint
type fileOracle struct {
	weights map[string]uint64
	total   uint64
}

func newFileOracle(path string) (*fileOracle, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading weights file: %w", err)
	}
	weights := map[string]uint64{}
	if err := yaml.Unmarshal(buf, &weights); err != nil {
		return nil, fmt.Errorf("error parsing weights file: %w", err)
	}
	oracle := &fileOracle{weights: weights}
	for _, weight := range weights {
		oracle.total += weight
	}
	return oracle, nil
}

func (o *fileOracle) WeightAt(
	_ context.Context,
	account string,
	_ time.Time,
) (uint64, error) {
	return o.weights[account], nil
}

func (o *fileOracle) TotalWeightAt(
	_ context.Context,
	_ time.Time,
) (uint64, error) {
	return o.total, nil
}
