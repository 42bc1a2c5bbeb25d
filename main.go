package main

import "github.com/throwbridge/throwbridge/cmd"

func main() {
	cmd.Execute()
}
