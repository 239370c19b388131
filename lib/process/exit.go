// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// exitCoder is satisfied by errors that carry their own exit status.
// Their command has already written its own output, so nothing more
// is printed for them.
type exitCoder interface {
	ExitCode() int
}

// Fatal reports err on stderr and exits. Errors carrying an exit code
// exit silently with that code; everything else prints "error: err" and
// exits 1.
func Fatal(err error) {
	os.Exit(Report(os.Stderr, err))
}

// Report writes err to w the way [Fatal] does and returns the exit code
// Fatal would use. A nil error reports nothing and returns 0.
func Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var coded exitCoder
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
