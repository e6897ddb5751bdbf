package main

import "github.com/sgriggs/mevflow/cmd"

func main() {
	cmd.Execute()
}
