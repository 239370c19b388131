// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Input is one artifact for [VerifyMany].
type Input struct {
	// Name labels the report (Report.Artifact).
	Name string
	Data []byte

	// Signatures overrides Options.Signatures for this artifact.
	Signatures []byte
}

// VerifyMany verifies independent artifacts concurrently and returns
// their reports in input order. Verification shares no mutable state,
// so the only coordination is the concurrency limit. The error is
// non-nil only when ctx is cancelled before every artifact was
// verified.
func VerifyMany(ctx context.Context, inputs []Input, options Options) ([]*Report, error) {
	reports := make([]*Report, len(inputs))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))
	for index, input := range inputs {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			artifactOptions := options
			if input.Signatures != nil {
				artifactOptions.Signatures = input.Signatures
			}
			report := Verify(input.Data, artifactOptions)
			report.Artifact = input.Name
			reports[index] = report
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
