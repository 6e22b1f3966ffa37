// This program performs administrative tasks for the node.
package main

import "github.com/meowchain/meowchain/app/tooling/admin/cmd"

func main() {
	cmd.Execute()
}
