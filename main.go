package main

import "brandpulse/internal/app"

func main() {
	app.Main()
}
