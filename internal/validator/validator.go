package validator

import (
	"fmt"
	"regexp"
)

// Name checks channel, section and role names.
func Name(name string) error {
	length := len(name)
	if length == 0 {
		return fmt.Errorf("empty_name")
	} else if length > 32 {
		return fmt.Errorf("long_name")
	}

	const nameRegex = `^[a-zA-Z0-9]([a-zA-Z0-9 _-]*[a-zA-Z0-9])?$`
	if !regexp.MustCompile(nameRegex).MatchString(name) {
		return fmt.Errorf("bad_format")
	}

	return nil
}

// EmoteName checks the token typed between colons in message content, so it
// can never contain a colon or whitespace.
func EmoteName(name string) error {
	length := len(name)
	if length == 0 {
		return fmt.Errorf("empty_name")
	} else if length > 24 {
		return fmt.Errorf("long_name")
	}

	const emoteRegex = `^[a-zA-Z0-9_]+$`
	if !regexp.MustCompile(emoteRegex).MatchString(name) {
		return fmt.Errorf("bad_format")
	}

	return nil
}
