package main

import "github.com/tkorpela/bookdex/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
