// Command bare-client sends requests and opens WebSockets through a Bare gateway.
package main

import "github.com/Sentinel-Gate/bareclient/cmd/bare-client/cmd"

func main() {
	cmd.Execute()
}
