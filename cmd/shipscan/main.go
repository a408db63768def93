package main

import "github.com/MeKo-Tech/shipscan/cmd/shipscan/cmd"

func main() {
	cmd.Execute()
}
