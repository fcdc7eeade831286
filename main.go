package main

import "github.com/bottleworks/memorybottle/cmd"

func main() {
	cmd.Execute()
}
