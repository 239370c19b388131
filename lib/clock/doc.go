// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable wall clock.
//
// sealrun has two kinds of time. The commit clock is an explicit,
// operator-supplied RFC 3339 value recorded in the hash scope; it never
// comes from this package. Wall-clock observations (a sealed run's
// observed_at, a log entry's appended_at, a supersession's recorded_at)
// are excluded from every commit hash and are read through a [Clock]
// so tests can pin them.
//
// Production code takes a Clock field and is given Real(); tests give
// it Fake(t) and move it with Set or Advance:
//
//	c := clock.Fake(time.Date(2026, 2, 21, 0, 0, 0, 0, time.UTC))
//	store := translog.OpenFile(path, c, logger)
//	c.Advance(time.Minute)
package clock
