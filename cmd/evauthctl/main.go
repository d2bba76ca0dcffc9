package main

import "github.com/evdealer/authclient/cmd/evauthctl/cmd"

func main() {
	cmd.Execute()
}
