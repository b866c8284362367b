package main

import "github.com/bryanchriswhite/FocusRelay/cmd/focusrelay/commands"

func main() {
	commands.Execute()
}
