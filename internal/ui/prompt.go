package ui

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// askOne is swapped out in tests
var askOne = survey.AskOne

// Confirm asks a yes/no question on the terminal
func Confirm(message string, defaultValue bool) (bool, error) {
	answer := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	if err := askOne(prompt, &answer); err != nil {
		if err == terminal.InterruptErr {
			return false, fmt.Errorf("cancelled")
		}
		return false, err
	}
	return answer, nil
}
