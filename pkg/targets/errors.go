package targets

import (
	"errors"

	"github.com/owlfacerec/owlface/pkg/models"
)

func asDurabilityError(message string, err error) error {
	if errors.Is(err, models.ErrDurability) {
		return err
	}
	return models.NewDurabilityError(message, err)
}

func asInferenceError(err error) error {
	if errors.Is(err, models.ErrInference) {
		return err
	}
	return models.NewInferenceError("embedding extraction failed", err)
}
