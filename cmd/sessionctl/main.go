package main

import "github.com/jrsteele09/go-auth-session/cmd/sessionctl/cmd"

func main() {
	cmd.Execute()
}
