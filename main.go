package main

import (
	cmd "github.com/owlfacerec/owlface/cmd/owlface"
	"github.com/owlfacerec/owlface/internal"
)

var log = internal.GetLogger()

func main() {
	log.Info("Starting owlface")
	cmd.Execute()
}
