package main

import "github.com/nextlevelbuilder/gochat-gateway/cmd"

func main() {
	cmd.Execute()
}
