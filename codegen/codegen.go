// Package codegen compiles an ordered action sequence into a Playwright
// test script. Generation is a pure function of the action list and the
// session base URL: no timestamps, no randomness, byte-identical output
// for identical input.
package codegen

import (
	"strings"

	"github.com/hazyhaar/recwatch/action"
)

const (
	header = "import { test, expect } from '@playwright/test';"
	opener = "test('Recorded Test', async ({ page }) => {"
	closer = "});"
)

// Generate renders the test script for actions. baseURL is emitted as an
// opening navigation only when the sequence does not already start with
// one, so the script is always anchored to the recording target.
func Generate(actions []action.Action, baseURL string) string {
	lines := []string{header, "", opener}

	if baseURL != "" && (len(actions) == 0 || actions[0].Type != action.Navigate) {
		lines = append(lines, "  await page.goto('"+Escape(baseURL)+"');")
	}

	for _, a := range actions {
		lines = append(lines, "  "+statement(a))
	}

	lines = append(lines, closer, "")
	return strings.Join(lines, "\n")
}

func statement(a action.Action) string {
	switch a.Type {
	case action.Navigate:
		return "await page.goto('" + Escape(a.URL) + "');"
	case action.Click:
		return "await page.locator('" + Escape(a.Selector) + "').click();"
	case action.Fill:
		return "await page.locator('" + Escape(a.Selector) + "').fill('" + Escape(a.Value) + "');"
	case action.Press:
		return "await page.locator('" + Escape(a.Selector) + "').press('" + Escape(a.Key) + "');"
	case action.Select:
		return "await page.locator('" + Escape(a.Selector) + "').selectOption('" + Escape(a.Value) + "');"
	case action.Check:
		return "await page.locator('" + Escape(a.Selector) + "').check();"
	case action.Uncheck:
		return "await page.locator('" + Escape(a.Selector) + "').uncheck();"
	case action.Hover:
		return "await page.locator('" + Escape(a.Selector) + "').hover();"
	case action.Screenshot, action.Assert:
		// Documentary only: assertions are not compiled into executable
		// statements, the description is preserved as a comment.
		if a.Description != "" {
			return "// " + string(a.Type) + ": " + a.Description
		}
		return "// " + string(a.Type)
	default:
		return "// Unknown action: " + string(a.Type)
	}
}

// Escape neutralises backslash, single quote and newline so injected
// values cannot break out of the generated single-quoted literals.
func Escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", `\'`)
	return strings.ReplaceAll(s, "\n", `\n`)
}
