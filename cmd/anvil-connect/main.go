// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// anvil-connect signs a command line user in to an OpenID Connect provider
// with the implicit flow.  The user's browser completes the authorization and
// reports the callback to a loopback server; the session is kept encrypted in
// the state dir, or in Redis, for later commands.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openURL).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
