package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// shellCommands lists the available commands for the interactive shell
// help output.
var shellCommands = []struct {
	name string
	desc string
}{
	{"status", "Show switch status"},
	{"flows", "List the flow table"},
	{"ports", "Show per-port counters and link state"},
	{"version", "Print build information"},
	{"help", "Show this help message"},
	{"exit / quit", "Leave the interactive shell"},
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive goswitchctl shell",
		Long:  "Launches a simple REPL that accepts goswitchctl subcommands. Type 'help', 'exit', or 'quit'.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			printShellBanner()
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("goswitchctl> ")

			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())

				switch {
				case line == "exit" || line == "quit":
					return nil
				case line == "help" || line == "?":
					printShellHelp()
				case line != "":
					args := strings.Fields(line)
					rootCmd.SetArgs(args)

					if err := rootCmd.Execute(); err != nil {
						fmt.Fprintln(os.Stderr, "Error:", err)
					}
				}

				fmt.Print("goswitchctl> ")
			}

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			return nil
		},
	}
}

func printShellBanner() {
	fmt.Printf("goswitchctl interactive shell (daemon: %s)\n", serverAddr)
	fmt.Println("Type 'help' for available commands, 'exit' to leave.")
}

func printShellHelp() {
	for _, c := range shellCommands {
		fmt.Printf("  %-24s %s\n", c.name, c.desc)
	}
}
