// The main package for the apilog executable.
package main

import (
	"github.com/JakeFAU/apilog-dashboard/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
