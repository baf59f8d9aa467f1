package credentials

import (
	"regexp"
	"strings"
	"testing"

	"mathquest/internal/validation"
)

func TestGenerateChildPassword(t *testing.T) {
	passwords := make(map[string]bool)
	for i := 0; i < 100; i++ {
		password, err := GenerateChildPassword()
		if err != nil {
			t.Fatalf("GenerateChildPassword() error = %v", err)
		}
		if len(password) != ChildPasswordLength {
			t.Errorf("password length %d, want %d", len(password), ChildPasswordLength)
		}
		if strings.ContainsAny(password, "0O1lI") {
			t.Errorf("password %q contains ambiguous characters", password)
		}
		if err := validation.ValidatePassword(password); err != nil {
			t.Errorf("generated password rejected: %v", err)
		}
		if passwords[password] {
			t.Errorf("duplicate password generated: %s", password)
		}
		passwords[password] = true
	}
}

func TestGenerateChildUsername(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z]+-[a-z]+-[0-9]{2}$`)
	for i := 0; i < 50; i++ {
		username, err := GenerateChildUsername()
		if err != nil {
			t.Fatalf("GenerateChildUsername() error = %v", err)
		}
		if !pattern.MatchString(username) {
			t.Errorf("username %q does not match adjective-noun-NN", username)
		}
		if err := validation.ValidateEmail(ChildEmail(username)); err != nil {
			t.Errorf("ChildEmail(%q) is not a valid email: %v", username, err)
		}
	}
}
