package main

import "fulfillment/internal/cmd"

func main() {
	cmd.Execute()
}
