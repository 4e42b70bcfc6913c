// Package pyguard implements a tokenizing static policy checker for Python
// snippets: a hand-written lexical scanner (there is no Python-AST-for-Go
// package anywhere in the retrieved example corpus to wire in instead,
// and a full CPython-grade parser is out of reach without fabricating a
// dependency) that walks tokens rather than a full AST, modeled in shape
// on the allow/deny-list resolution pattern of internal/tools/policy/
// resolver.go and the call-target safety checks of internal/exec/safety.go.
//
// It catches the required cases — banned imports, banned call targets
// including dunder-chain escapes, eval/exec/compile/__import__ and
// network/OS primitives — without claiming full AST-equivalence.
package pyguard

import (
	"strings"
	"unicode"

	"github.com/scianalytics/agentcore/pkg/models"
)

// defaultBannedCalls are rejected regardless of policy configuration —
// the spec names these explicitly as always-banned primitives.
var defaultBannedCalls = map[string]bool{
	"eval":        true,
	"exec":        true,
	"compile":     true,
	"__import__":  true,
	"os.system":   true,
	"os.popen":    true,
	"os.fork":     true,
	"os.exec":     true,
	"subprocess":  true,
	"socket":      true,
	"shutil.rmtree": true,
}

// defaultDunderWhitelist lists the only dunder attribute accesses that are
// not treated as sandbox-escape attempts.
var defaultDunderWhitelist = map[string]bool{
	"__init__": true,
	"__name__": true,
	"__doc__":  true,
	"__len__":  true,
	"__str__":  true,
	"__repr__": true,
}

// Guard checks Python snippets against a models.SandboxPolicy.
type Guard struct{}

// New constructs a Python guard.
func New() *Guard { return &Guard{} }

func (g *Guard) MainFilename() string { return "main.py" }

func (g *Guard) Command(mainFile string) []string {
	return []string{"python3", mainFile}
}

// Check tokenizes the snippet and rejects on: import of a module outside
// the allowed set; calls to banned functions; attribute access chains that
// escape via non-whitelisted dunders. Returns a *models.PolicyViolation
// (carrying line and offending token) on the first violation found.
func (g *Guard) Check(snippet string, policy models.SandboxPolicy) error {
	lines := strings.Split(snippet, "\n")
	for lineNo, line := range lines {
		stripped := stripComment(line)
		tokens := tokenize(stripped)
		if len(tokens) == 0 {
			continue
		}

		if tokens[0] == "import" || tokens[0] == "from" {
			if violation := g.checkImport(tokens, policy, lineNo+1); violation != nil {
				return violation
			}
		}

		for i, tok := range tokens {
			if violation := g.checkCall(tokens, i, tok, policy, lineNo+1); violation != nil {
				return violation
			}
			if violation := g.checkDunderEscape(tok, lineNo+1); violation != nil {
				return violation
			}
		}
	}
	return nil
}

func (g *Guard) checkImport(tokens []string, policy models.SandboxPolicy, line int) error {
	var module string
	if tokens[0] == "import" && len(tokens) > 1 {
		module = tokens[1]
	} else if tokens[0] == "from" && len(tokens) > 1 {
		module = tokens[1]
	}
	module = strings.SplitN(module, ".", 2)[0]
	if module == "" {
		return nil
	}
	if _, allowed := policy.AllowedImports[module]; len(policy.AllowedImports) > 0 && !allowed {
		return &models.PolicyViolation{Reason: "import " + module, Line: line, Token: module}
	}
	if alwaysBannedModule[module] {
		return &models.PolicyViolation{Reason: "import " + module, Line: line, Token: module}
	}
	return nil
}

var alwaysBannedModule = map[string]bool{
	"os":         true,
	"subprocess": true,
	"socket":     true,
	"ctypes":     true,
	"multiprocessing": true,
}

func (g *Guard) checkCall(tokens []string, i int, tok string, policy models.SandboxPolicy, line int) error {
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

func (g *Guard) checkDunderEscape(tok string, line int) error {
	for _, part := range strings.Split(tok, ".") {
		if !strings.HasPrefix(part, "__") || !strings.HasSuffix(part, "__") {
			continue
		}
		if defaultDunderWhitelist[part] {
			continue
		}
		return &models.PolicyViolation{Reason: "dunder attribute access: " + part, Line: line, Token: part}
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

// tokenize splits a line into identifiers, dotted names, and punctuation
// relevant to import/call detection — not a full Python lexer, but enough
// to find import statements and call-site identifiers reliably.
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
