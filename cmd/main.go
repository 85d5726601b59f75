// Package main provides the entry point for the taskhub CLI.
package main

func main() {
	Execute()
}
