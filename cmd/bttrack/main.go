package main

import "github.com/rudransh-shrivastava/bttrack/internal/cmd"

func main() {
	cmd.Execute()
}
