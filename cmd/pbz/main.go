package main

import (
	"github.com/PowerDNS/pbz/cmd/pbz/commands"
)

// version is overridden during the build with the go linker
var version = "dev"

func main() {
	commands.SetVersion(version)
	commands.Execute()
}
