package main

import "thoreinstein.com/wit/cmd"

func main() {
	cmd.Execute()
}
