// main.go
//
// Entry point that delegates CLI handling to the Cobra root command in cmd/root.go

package main

import (
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/cmd"
)

func main() {
	cmd.Execute()
}
