// clicktrail records desktop clicks and periodic screenshots,
// correlates them with browser agent events, and exposes a local HTTP
// control surface.
package main

import "github.com/clicktrail/clicktrail/internal/cli"

func main() {
	cli.Execute()
}
