// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// Fatal reports err on stderr and exits 1.
func Fatal(err error) {
	report(os.Stderr, err)
	os.Exit(1)
}

func report(writer io.Writer, err error) {
	fmt.Fprintf(writer, "gatekeeper: %v\n", err)
}
