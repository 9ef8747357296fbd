package main

import "github.com/rudder-cd/rudder/cmd/root"

func main() {
	root.Execute()
}
