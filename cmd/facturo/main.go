// Package main is the entry point for facturo.
package main

func main() {
	Execute()
}
