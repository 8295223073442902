// SPDX-License-Identifier: MPL-2.0

// Command nsm keeps Northstar, its mods and nsm itself up to date and then
// launches Titanfall 2.
package main

import "github.com/northstarmanager/nsm/cmd/nsm"

func main() {
	cmd.Execute()
}
