package main

import "github.com/tcmhub/apiserver/cmd"

func main() {
	cmd.Execute()
}
