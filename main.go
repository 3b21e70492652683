package main

import "narrator/cmd"

func main() {
	cmd.Execute()
}
