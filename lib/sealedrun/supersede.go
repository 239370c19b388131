// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealedrun

import (
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/sealrun/lib/detid"
)

// Supersession is a correction record: it states that one sealed run is
// replaced by another. Neither run is modified; both remain on disk and
// independently verifiable.
type Supersession struct {
	SupersessionID    string `json:"supersession_id"`
	Supersedes        string `json:"supersedes"`
	SupersedesRunID   string `json:"supersedes_run_id"`
	SupersededBy      string `json:"superseded_by"`
	SupersededByRunID string `json:"superseded_by_run_id"`
	Reason            string `json:"reason"`
	RecordedAt        string `json:"recorded_at"`
}

// Supersede builds the correction record linking original to
// replacement. Supersedes and SupersededBy are content hashes, so the
// record names exact artifact bytes rather than a run ID that two
// observations of the same run share.
func Supersede(original, replacement *Run, reason string, recordedAt time.Time) (Supersession, error) {
	if reason == "" {
		return Supersession{}, errors.New("supersession requires a reason")
	}
	if original.ContentHash() == "" || replacement.ContentHash() == "" {
		return Supersession{}, errors.New("supersession requires sealed runs with content hashes")
	}
	if original.ContentHash() == replacement.ContentHash() {
		return Supersession{}, fmt.Errorf("run %s cannot supersede itself", original.RunID())
	}
	return Supersession{
		SupersessionID:    detid.SupersessionID(original.ContentHash(), replacement.ContentHash()),
		Supersedes:        original.ContentHash(),
		SupersedesRunID:   original.RunID(),
		SupersededBy:      replacement.ContentHash(),
		SupersededByRunID: replacement.RunID(),
		Reason:            reason,
		RecordedAt:        FormatObserved(recordedAt),
	}, nil
}
