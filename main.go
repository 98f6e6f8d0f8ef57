package main

import "github.com/KaramelBytes/analytica-cli/cmd"

func main() {
	cmd.Execute()
}
