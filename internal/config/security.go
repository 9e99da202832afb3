package config

import (
	"fmt"
	"regexp"
	"strings"
)

// SensitivePattern represents a pattern that might indicate sensitive data
type SensitivePattern struct {
	Name        string
	Pattern     *regexp.Regexp
	Description string
}

var sensitivePatterns = []SensitivePattern{
	{
		Name:        "Token",
		Pattern:     regexp.MustCompile(`(?i)(token|auth[_-]?token|access[_-]?token|bearer)\s*=\s*['"][a-zA-Z0-9_-]{15,}['"]`),
		Description: "Potential authentication token detected",
	},
	{
		Name:        "GitHub Token",
		Pattern:     regexp.MustCompile(`(gh[pousr]_[a-zA-Z0-9]{36,}|github_pat_[a-zA-Z0-9_]{22,})`),
		Description: "Potential GitHub token detected",
	},
	{
		Name:        "Password",
		Pattern:     regexp.MustCompile(`(?i)(password|passwd|pwd|passphrase)\s*=\s*['"].+['"]`),
		Description: "Potential password detected",
	},
	{
		Name:        "Private Key",
		Pattern:     regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH |PGP )?PRIVATE KEY( BLOCK)?-----`),
		Description: "Embedded private key detected",
	},
}

// SensitiveDataFinding represents a detected sensitive data instance
type SensitiveDataFinding struct {
	PatternName string
	Description string
	Line        int
	Preview     string // Redacted preview of the match
}

// DetectSensitiveData scans configuration content for potential sensitive data.
// Each line reports at most one finding per pattern.
func DetectSensitiveData(content string) []SensitiveDataFinding {
	var findings []SensitiveDataFinding

	for lineNum, line := range strings.Split(content, "\n") {
		for _, pattern := range sensitivePatterns {
			if pattern.Pattern.MatchString(line) {
				findings = append(findings, SensitiveDataFinding{
					PatternName: pattern.Name,
					Description: pattern.Description,
					Line:        lineNum + 1,
					Preview:     redactSensitiveValue(line),
				})
			}
		}
	}

	return findings
}

// redactSensitiveValue creates a redacted preview of a line with sensitive data
func redactSensitiveValue(line string) string {
	eqIdx := strings.Index(line, "=")
	if eqIdx == -1 {
		if len(line) > 30 {
			return line[:30] + "... [REDACTED]"
		}
		return line + " [REDACTED]"
	}
	return strings.TrimSpace(line[:eqIdx]) + " = [REDACTED]"
}

// FormatSensitiveDataWarning formats findings into a user-friendly warning message
func FormatSensitiveDataWarning(findings []SensitiveDataFinding) string {
	if len(findings) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\nWARNING: Potential sensitive data detected in configuration\n\n")

	for i, finding := range findings {
		sb.WriteString(fmt.Sprintf("%d. %s (line %d)\n", i+1, finding.Description, finding.Line))
		sb.WriteString(fmt.Sprintf("   Preview: %s\n\n", finding.Preview))
	}

	sb.WriteString("Pass release API credentials through GITHUB_TOKEN instead of the config file.\n")

	return sb.String()
}
