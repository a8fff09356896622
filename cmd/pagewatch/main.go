package main

import (
	// Embedded zone data keeps the Europe/Kyiv default working on images
	// without /usr/share/zoneinfo.
	_ "time/tzdata"

	"github.com/JakeFAU/pagewatch/cmd"
)

func main() {
	cmd.Execute()
}
