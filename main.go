package main

import "github.com/frahmantamala/ifarm/cmd"

func main() {
	cmd.Execute()
}
