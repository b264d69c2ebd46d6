package xmlpkg

import (
	"fmt"
	"strings"
)

// ValidationResult reports well-formedness of a serialized document.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors,omitempty"`
}

// ValidateXML checks for the XML declaration and streams through the text
// verifying that tags balance. It is a structural check, not a full parser.
func ValidateXML(s string) ValidationResult {
	var errs []string

	if !strings.HasPrefix(strings.TrimLeft(s, " \t\r\n"), "<?xml") {
		errs = append(errs, "missing XML declaration")
	}

	var stack []string
	i := 0
	for i < len(s) {
		if s[i] != '<' {
			i++
			continue
		}
		rest := s[i:]
		switch {
		case strings.HasPrefix(rest, "<![CDATA["):
			end := strings.Index(rest, "]]>")
			if end < 0 {
				errs = append(errs, "unterminated CDATA section")
				return ValidationResult{IsValid: false, Errors: errs}
			}
			i += end + len("]]>")
		case strings.HasPrefix(rest, "<!--"):
			end := strings.Index(rest, "-->")
			if end < 0 {
				errs = append(errs, "unterminated comment")
				return ValidationResult{IsValid: false, Errors: errs}
			}
			i += end + len("-->")
		case strings.HasPrefix(rest, "<?"):
			end := strings.Index(rest, "?>")
			if end < 0 {
				errs = append(errs, "unterminated processing instruction")
				return ValidationResult{IsValid: false, Errors: errs}
			}
			i += end + len("?>")
		default:
			end := strings.IndexByte(rest, '>')
			if end < 0 {
				errs = append(errs, "unterminated tag")
				return ValidationResult{IsValid: false, Errors: errs}
			}
			tag := rest[1:end]
			i += end + 1

			if strings.HasSuffix(tag, "/") {
				continue
			}
			if strings.HasPrefix(tag, "/") {
				name := strings.TrimSpace(tag[1:])
				if len(stack) == 0 {
					errs = append(errs, fmt.Sprintf("closing tag </%s> without opener", name))
					continue
				}
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top != name {
					errs = append(errs, fmt.Sprintf("mismatched tag: expected </%s>, found </%s>", top, name))
				}
				continue
			}
			name := tag
			if sp := strings.IndexAny(name, " \t\r\n"); sp >= 0 {
				name = name[:sp]
			}
			stack = append(stack, name)
		}
	}

	for _, open := range stack {
		errs = append(errs, fmt.Sprintf("unclosed tag <%s>", open))
	}
	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}
