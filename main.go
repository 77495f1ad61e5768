package main

import (
	"github.com/foomo/idreset/cmd"
)

func main() {
	cmd.Execute()
}
