package main

import "github.com/quantfold/perpsim/cmd"

func main() {
	cmd.Execute()
}
