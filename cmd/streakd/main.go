// Command streakd runs the habit streak engine.
package main

import (
	"fmt"
	"os"

	"github.com/aimd54/streakd/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
