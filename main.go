package main

import "github.com/mybibliotheca/libris/cmd"

func main() {
	cmd.Execute()
}
