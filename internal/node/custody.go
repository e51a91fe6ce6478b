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
	"log/slog"
)

// logCustody records funds movements to the log. It stands in for a real
// custody integration; every transfer is accepted
type logCustody struct {
	logger *slog.Logger
}

func (c *logCustody) Transfer(
	_ context.Context,
	recipient string,
	amount int64,
) error {
	c.logger.Info(
		"funds transfer",
		"component", "custody",
		"recipient", recipient,
		"amount", amount,
	)
	return nil
}
