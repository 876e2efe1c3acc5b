package main

import "github.com/tanq16/rget/cmd"

func main() {
	cmd.Execute()
}
