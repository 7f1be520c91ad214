// Package main provides the kontrol desktop shell and its CLI.
package main

func main() {
	Execute()
}
