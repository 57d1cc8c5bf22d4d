package main

import (
	"fmt"

	"github.com/signupwatch/daemon/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
