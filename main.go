package main

import "github.com/iksnae/geo-trace/cmd"

func main() {
	cmd.Execute()
}
