package validator_test

import (
	"fmt"
	"testing"

	"kiama-backend/internal/validator"
)

func TestName(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedError error
	}{
		// valid cases
		{
			name:          "Valid: Simple name",
			input:         "general",
			expectedError: nil,
		},
		{
			name:          "Valid: Name with spaces and hyphens",
			input:         "off-topic chat",
			expectedError: nil,
		},
		{
			name:          "Valid: Name with underscore",
			input:         "mod_only",
			expectedError: nil,
		},
		{
			name:          "Valid: Maximum length (32 chars)",
			input:         "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			expectedError: nil,
		},

		// too long / empty
		{
			name:          "Error: Empty name",
			input:         "",
			expectedError: fmt.Errorf("empty_name"),
		},
		{
			name:          "Error: Too long (33 characters)",
			input:         "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			expectedError: fmt.Errorf("long_name"),
		},

		// bad format
		{
			name:          "Error: Leading space",
			input:         " general",
			expectedError: fmt.Errorf("bad_format"),
		},
		{
			name:          "Error: Trailing hyphen",
			input:         "general-",
			expectedError: fmt.Errorf("bad_format"),
		},
		{
			name:          "Error: Colon in name",
			input:         "gen:eral",
			expectedError: fmt.Errorf("bad_format"),
		},
		{
			name:          "Error: Slash in name",
			input:         "gen/eral",
			expectedError: fmt.Errorf("bad_format"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Name(tc.input)

			if tc.expectedError == nil {
				if err != nil {
					t.Errorf("Name(%q) failed unexpectedly: got error %v, want nil", tc.input, err)
				}
				return
			}

			if err == nil {
				t.Errorf("Name(%q) passed unexpectedly: got nil, want error %v", tc.input, tc.expectedError)
				return
			}

			if err.Error() != tc.expectedError.Error() {
				t.Errorf("Name(%q) got error %q, want error %q", tc.input, err.Error(), tc.expectedError.Error())
			}
		})
	}
}

func TestEmoteName(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedError error
	}{
		{
			name:          "Valid: Simple emote",
			input:         "kappa",
			expectedError: nil,
		},
		{
			name:          "Valid: Emote with underscore and digits",
			input:         "pog_2",
			expectedError: nil,
		},
		{
			name:          "Error: Empty emote name",
			input:         "",
			expectedError: fmt.Errorf("empty_name"),
		},
		{
			name:          "Error: Too long (25 characters)",
			input:         "aaaaaaaaaaaaaaaaaaaaaaaaa",
			expectedError: fmt.Errorf("long_name"),
		},
		{
			name:          "Error: Space in emote name",
			input:         "po g",
			expectedError: fmt.Errorf("bad_format"),
		},
		{
			name:          "Error: Colon in emote name",
			input:         "po:g",
			expectedError: fmt.Errorf("bad_format"),
		},
		{
			name:          "Error: Hyphen in emote name",
			input:         "po-g",
			expectedError: fmt.Errorf("bad_format"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.EmoteName(tc.input)

			if tc.expectedError == nil {
				if err != nil {
					t.Errorf("EmoteName(%q) failed unexpectedly: got error %v, want nil", tc.input, err)
				}
				return
			}

			if err == nil {
				t.Errorf("EmoteName(%q) passed unexpectedly: got nil, want error %v", tc.input, tc.expectedError)
				return
			}

			if err.Error() != tc.expectedError.Error() {
				t.Errorf("EmoteName(%q) got error %q, want error %q", tc.input, err.Error(), tc.expectedError.Error())
			}
		})
	}
}
