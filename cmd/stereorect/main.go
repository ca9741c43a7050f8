package main

import "github.com/MeKo-Tech/stereorect/cmd/stereorect/cmd"

func main() {
	cmd.Execute()
}
