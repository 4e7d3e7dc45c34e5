package main

import "github.com/mowgliph/vento/cli/cmd"

func main() {
	cmd.Execute()
}
