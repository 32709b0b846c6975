// goswitchctl is the CLI client for the goswitch admin API.
package main

import "github.com/dantte-lp/goswitch/cmd/goswitchctl/commands"

func main() {
	commands.Execute()
}
