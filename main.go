package main

import (
	"github.com/tanpawarit/smartops-bi/cmd"
	_ "github.com/tanpawarit/smartops-bi/pkg/logger/autoload"
)

func main() {
	cmd.Execute()
}
