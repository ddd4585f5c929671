// Package security scrubs credentials out of text before it is kept in
// working memory or handed to a completion provider.
package security

import "regexp"

type pattern struct {
	name        string
	strict      bool
	re          *regexp.Regexp
	replacement string
}

// Redactor replaces credential-shaped substrings with fixed markers.
type Redactor struct {
	patterns []pattern
	strict   bool
}

// NewRedactor returns a Redactor. In strict mode loose "password=..."
// style assignments are scrubbed as well.
func NewRedactor(strict bool) *Redactor {
	return &Redactor{patterns: defaultPatterns(), strict: strict}
}

func defaultPatterns() []pattern {
	return []pattern{
		{
			name: "api_key",
			re: regexp.MustCompile(`(` +
				`sk-ant-[a-zA-Z0-9_-]{20,}` +
				`|sk-[a-zA-Z0-9]{20,}` +
				`|sk_(live|test)_[a-zA-Z0-9]{20,}` +
				`|AIza[a-zA-Z0-9_-]{35}` +
				`|gh[pousr]_[a-zA-Z0-9]{36,}` +
				`|github_pat_[a-zA-Z0-9_]{22,}` +
				`)`),
			replacement: "[REDACTED_API_KEY]",
		},
		{
			name:        "bearer",
			re:          regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/-]{20,}=*`),
			replacement: "Bearer [REDACTED]",
		},
		{
			name:        "aws_credential",
			re:          regexp.MustCompile(`AKIA[A-Z0-9]{16}|(?i)aws[_-]?secret[_-]?access[_-]?key\s*[=:]\s*\S+`),
			replacement: "[REDACTED_AWS_CREDENTIAL]",
		},
		{
			name:        "private_key",
			re:          regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE\s+KEY-----`),
			replacement: "[REDACTED_PRIVATE_KEY]",
		},
		{
			name:        "jwt",
			re:          regexp.MustCompile(`eyJ[a-zA-Z0-9_-]{10,}\.eyJ[a-zA-Z0-9_-]{10,}\.[a-zA-Z0-9_-]{10,}`),
			replacement: "[REDACTED_JWT]",
		},
		{
			name:        "database_url",
			re:          regexp.MustCompile(`(?i)(postgres(ql)?|mysql|mongodb(\+srv)?|redis)://[^\s]+:[^\s]+@[^\s]+`),
			replacement: "[REDACTED_DATABASE_URL]",
		},
		{
			// last, so the specific patterns above win
			name:        "assignment",
			strict:      true,
			re:          regexp.MustCompile(`(?i)(password|passwd|secret|token)\s*[=:]\s*[^\s\[]\S*`),
			replacement: "[REDACTED_SECRET]",
		},
	}
}

// Redact returns text with credentials replaced and the names of the
// patterns that fired, in match order.
func (r *Redactor) Redact(text string) (string, []string) {
	var hits []string
	for _, p := range r.patterns {
		if p.strict && !r.strict {
			continue
		}
		if p.re.MatchString(text) {
			hits = append(hits, p.name)
			text = p.re.ReplaceAllString(text, p.replacement)
		}
	}
	return text, hits
}
