package main

import (
	"go-media-fetch/cmd/media-fetch/cmd"
)

func main() {
	cmd.Execute()
}
