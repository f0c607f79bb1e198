// The main package for the crawlsearch executable.
package main

import (
	"github.com/JakeFAU/crawlsearch/cmd"
)

func main() {
	cmd.Execute()
}
