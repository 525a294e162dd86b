// ./main.go
package main

import (
	"github.com/xkilldash9x/taskpilot/cmd"
)

// main is the entry point for the taskpilot CLI.
func main() {
	cmd.Execute()
}
