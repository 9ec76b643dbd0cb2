package main

import "github.com/atharve16/MediMate/cmd"

func main() {
	cmd.Execute()
}
