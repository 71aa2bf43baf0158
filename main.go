// The main package for the paper-annotator executable.
package main

import (
	"github.com/JakeFAU/paper-annotator/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
