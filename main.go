// Command taxcrawl crawls NYC property tax documents.
package main

import "github.com/JakeFAU/taxcrawl/cmd"

func main() {
	cmd.Execute()
}
