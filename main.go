package main

import "github.com/killallgit/genesis/cmd"

func main() {
	cmd.Execute()
}
