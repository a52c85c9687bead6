package main

import (
	"buffcart/cmd/buffcart/commands"
	"buffcart/lib/util/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
