package main

import (
	"briefly/cmd/cmd"
)

func main() {
	cmd.Execute()
}
