package main

import (
	"github.com/ProjectsTask/EasyAuction/cmd"
)

func main() {
	cmd.Execute()
}
