package main

import "cowin-notifier/cmd"

func main() {
	cmd.Execute()
}
