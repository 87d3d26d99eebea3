package main

import "dinnerparty-backend/cmd"

func main() {
	cmd.Run()
}
