package main

import "github.com/encodeous/spfsync/cmd"

func main() {
	cmd.Execute()
}
