// README: Operator CLI entry point.
package main

import "relialimo/internal/cli"

func main() {
	cli.Execute()
}
