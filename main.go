package main

import "github.com/jmehdipour/retreat-sync/cmd"

func main() {
	cmd.Execute()
}
