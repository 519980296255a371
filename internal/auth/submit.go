package auth

import (
	"fmt"

	"github.com/maltedev/dealer-portal-scraper/internal/browser"
)

const (
	submitByControl = "control"
	submitByText    = "text"
	submitByForm    = "form"
	submitByEnter   = "enter"
)

var submitLabels = []string{"sign in", "login", "log in", "submit"}

const clickByTextScript = `(labels) => {
	const nodes = document.querySelectorAll('button, a, [role="button"], input[type="button"], input[type="submit"]');
	for (const el of nodes) {
		const text = (el.innerText || el.value || '').trim().toLowerCase();
		if (labels.includes(text)) {
			el.click();
			return 'text';
		}
	}
	const form = document.querySelector('form');
	if (form) {
		if (form.requestSubmit) {
			form.requestSubmit();
		} else {
			form.submit();
		}
		return 'form';
	}
	return '';
}`

// submit tries each submission strategy in order and returns the one that
// fired.
func submit(frame browser.Frame, submitSelectors []string, passwordSelector string) (string, error) {
	if sel, ok := firstMatch(frame, submitSelectors); ok {
		if err := frame.Click(sel); err == nil {
			return submitByControl, nil
		}
	}

	if v, err := frame.Evaluate(clickByTextScript, submitLabels); err == nil {
		switch v {
		case submitByText:
			return submitByText, nil
		case submitByForm:
			return submitByForm, nil
		}
	}

	if err := frame.Press(passwordSelector, "Enter"); err != nil {
		return "", fmt.Errorf("all submit strategies failed: %w", err)
	}
	return submitByEnter, nil
}
