package main

import "github.com/horizon-research/AriaDatasetProcessing/cmd"

func main() {
	cmd.Execute()
}
