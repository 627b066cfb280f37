package main

import "meshhub/cmd/mesh-sender/command"

func main() {
	command.Execute()
}
