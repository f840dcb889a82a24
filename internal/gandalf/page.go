// File: internal/gandalf/page.go
package gandalf

import "strings"

// Page is the fixed element contract the engine is written against. All
// components consume these named locators; selector strings never appear at
// call sites. When the markup stops matching this contract the engine fails
// with a typed error instead of adapting heuristically.
type Page struct {
	Description   string
	PromptInput   string
	AnswerText    string
	ErrorText     string
	PasswordInput string
	Alert         string

	// InterstitialKeywords match buttons on blocking overlays that should
	// be clicked through when resuming a session.
	InterstitialKeywords []string
	// NextLevelKeywords match the alert button that advances to the next
	// level after a correct password.
	NextLevelKeywords []string
	// SuccessPhrase appears in the alert text when a password is accepted.
	SuccessPhrase string
}

// DefaultPage returns the locator set for gandalf.lakera.ai.
func DefaultPage() Page {
	return Page{
		Description:          "p.description",
		PromptInput:          "textarea#comment",
		AnswerText:           "p.answer",
		ErrorText:            "p.error",
		PasswordInput:        "input#guess",
		Alert:                "div.customAlert",
		InterstitialKeywords: []string{"next level", "continue", "start", "resume", "play"},
		NextLevelKeywords:    []string{"next level"},
		SuccessPhrase:        "You guessed the password!",
	}
}

// AlertIndicatesSuccess reports whether an alert text announces an accepted
// password.
func (p Page) AlertIndicatesSuccess(alertText string) bool {
	return strings.Contains(alertText, p.SuccessPhrase)
}
