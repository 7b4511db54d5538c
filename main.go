package main

import "github.com/morler/repomuse/cmd"

func main() {
	cmd.Execute()
}
