// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock reports the current wall-clock time.
type Clock interface {
	Now() time.Time
}
