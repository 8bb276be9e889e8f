package engine

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"coldreach/models"
)

var validate = validator.New()

// ValidateStep checks a sequence step is well formed before the scheduler
// will pick it: the step needs exactly one source for the subject and one
// for the content, chosen by the ai flags.
func ValidateStep(step *models.SequenceStep) error {
	if err := validate.Struct(step); err != nil {
		return fmt.Errorf("step %d: %w", step.StepNumber, err)
	}

	if step.UseAiForSubject {
		if step.AiSubjectPrompt == "" {
			return fmt.Errorf("step %d: ai subject enabled but no prompt set", step.StepNumber)
		}
	} else if step.Subject == "" {
		return fmt.Errorf("step %d: no subject set", step.StepNumber)
	}

	if step.UseAiForContent {
		if step.AiContentPrompt == "" {
			return fmt.Errorf("step %d: ai content enabled but no prompt set", step.StepNumber)
		}
	} else if step.Content == "" {
		return fmt.Errorf("step %d: no content set", step.StepNumber)
	}

	return nil
}
