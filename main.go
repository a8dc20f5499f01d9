package main

import "github.com/frahmantamala/authz/cmd"

func main() {
	cmd.Execute()
}
