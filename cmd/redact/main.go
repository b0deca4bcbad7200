// Package main provides the entry point for the contributor redaction CLI.
package main

func main() {
	Execute()
}
