package models

import (
	"github.com/owlfacerec/owlface/config"
)

// AppState is a struct that holds the state of the application
// Use cmd.NewAppState to create a new instance
type AppState struct {
	TargetService TargetService
	TargetStore   TargetRepository
	Config        *config.Config
}
