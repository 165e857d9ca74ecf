package ui

import (
	"errors"
	"testing"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

func stubAsk(t *testing.T, fn func(p survey.Prompt, response interface{}) error) {
	t.Helper()
	original := askOne
	askOne = func(p survey.Prompt, response interface{}, _ ...survey.AskOpt) error {
		return fn(p, response)
	}
	t.Cleanup(func() { askOne = original })
}

func TestConfirm(t *testing.T) {
	stubAsk(t, func(p survey.Prompt, response interface{}) error {
		confirm, ok := p.(*survey.Confirm)
		if !ok {
			t.Fatalf("Expected a confirm prompt, got %T", p)
		}
		if confirm.Default {
			t.Error("Expected default to be false")
		}
		*(response.(*bool)) = true
		return nil
	})

	ok, err := Confirm("Drop and recreate all tables?", false)
	if err != nil || !ok {
		t.Errorf("Confirm() = %v, %v", ok, err)
	}
}

func TestConfirmInterrupted(t *testing.T) {
	stubAsk(t, func(survey.Prompt, interface{}) error { return terminal.InterruptErr })

	ok, err := Confirm("Continue?", true)
	if err == nil || ok {
		t.Errorf("Expected cancellation, got %v, %v", ok, err)
	}
}

func TestConfirmError(t *testing.T) {
	stubAsk(t, func(survey.Prompt, interface{}) error { return errors.New("not a terminal") })

	if _, err := Confirm("Continue?", true); err == nil {
		t.Error("Expected an error")
	}
}
