// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/gantryhq/gantry/cmd/gantry"

func main() {
	cmd.Execute()
}
