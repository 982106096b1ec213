package main

import "eventmarket/internal/lockctl"

func main() {
	lockctl.Execute()
}
