// Package rguard mirrors pyguard's tokenizing static policy checker for R
// snippets, with an R-specific banned-call list. The R tool is only
// registered by the runtime when the Rscript binary is detected on PATH
// at startup.
package rguard

import (
	"strings"
	"unicode"

	"github.com/scianalytics/agentcore/pkg/models"
)

var defaultBannedCalls = map[string]bool{
	"system":      true,
	"system2":     true,
	"source":      true,
	"eval":        true,
	"parse":       true,
	"shell":       true,
	"shell.exec":  true,
	"Sys.setenv":  true,
	"dyn.load":    true,
	"file.remove": true,
	"unlink":      true,
}

// Guard checks R snippets against a models.SandboxPolicy.
type Guard struct{}

func New() *Guard { return &Guard{} }

func (g *Guard) MainFilename() string { return "main.R" }

func (g *Guard) Command(mainFile string) []string {
	return []string{"Rscript", "--vanilla", mainFile}
}

func (g *Guard) Check(snippet string, policy models.SandboxPolicy) error {
	lines := strings.Split(snippet, "\n")
	for lineNo, line := range lines {
		stripped := stripComment(line)
		tokens := tokenize(stripped)

		if violation := checkLibrary(tokens, policy, lineNo+1); violation != nil {
			return violation
		}
		for i, tok := range tokens {
			if violation := checkCall(tokens, i, tok, policy, lineNo+1); violation != nil {
				return violation
			}
		}
		// eval(parse(...)) is the canonical R sandbox escape. The
		// single-call checks above already reject it as "call to eval";
		// this check additionally rejects any line that mentions both
		// eval and parse, even when neither is written as a call.
		if strings.Contains(stripped, "eval") && strings.Contains(stripped, "parse") {
			return &models.PolicyViolation{Reason: "eval(parse(...)) pattern", Line: lineNo + 1, Token: "eval(parse("}
		}
	}
	return nil
}

func checkLibrary(tokens []string, policy models.SandboxPolicy, line int) error {
	for i, tok := range tokens {
		if (tok == "library" || tok == "require") && i+1 < len(tokens) && tokens[i+1] == "(" {
			if i+2 < len(tokens) {
				pkg := tokens[i+2]
				if _, allowed := policy.AllowedImports[pkg]; len(policy.AllowedImports) > 0 && !allowed {
					return &models.PolicyViolation{Reason: "library(" + pkg + ")", Line: line, Token: pkg}
				}
			}
		}
	}
	return nil
}

func checkCall(tokens []string, i int, tok string, policy models.SandboxPolicy, line int) error {
	if i+1 >= len(tokens) || tokens[i+1] != "(" {
		return nil
	}
	if defaultBannedCalls[tok] {
		return &models.PolicyViolation{Reason: "call to " + tok, Line: line, Token: tok}
	}
	if _, banned := policy.BannedCalls[tok]; banned {
		return &models.PolicyViolation{Reason: "call to " + tok, Line: line, Token: tok}
	}
	return nil
}

func stripComment(line string) string {
	inString := byte(0)
	for i := 0; i < len(line); i++ {
		c := line[i]
		if inString != 0 {
			if c == inString && (i == 0 || line[i-1] != '\\') {
				inString = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inString = c
		case '#':
			return line[:i]
		}
	}
	return line
}

func tokenize(line string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range line {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.':
			cur.WriteRune(r)
		case r == '(':
			flush()
			tokens = append(tokens, "(")
		default:
			flush()
		}
	}
	flush()
	return tokens
}
