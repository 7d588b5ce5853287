package main

import "cwl-mount/internal/cmd"

func main() {
	cmd.Execute()
}
