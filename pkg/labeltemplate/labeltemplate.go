package labeltemplate

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Context carries everything a label template may reference for one process.
type Context struct {
	Args []string
	Cwd  string
	Env  map[string]string

	// Port is the detected listening port, 0 when none.
	Port int

	// RegexMatch is the argv element that satisfied the matching rule's
	// argv-regex condition, empty when the rule had none.
	RegexMatch string
}

var (
	placeholderRe = regexp.MustCompile(`\{[^{}]+\}`)
	parenRe       = regexp.MustCompile(`\([^()]*\)`)
	spaceRunRe    = regexp.MustCompile(`\s{2,}`)
)

// emptyMark stands in for a placeholder that resolved empty until the
// cleanup pass runs. NUL cannot occur in argv or env values.
const emptyMark = "\x00"

// Resolve substitutes every recognized placeholder in template against ctx.
// Unrecognized or unresolvable placeholders resolve to the empty string; a
// cleanup pass then drops decoration-only parentheticals left around empty
// substitutions, collapses whitespace runs and trims the result.
func Resolve(template string, ctx Context) string {
	out := placeholderRe.ReplaceAllStringFunc(template, func(ph string) string {
		v := resolvePlaceholder(ph[1:len(ph)-1], ctx)
		if v == "" {
			return emptyMark
		}
		return v
	})
	return cleanup(out)
}

// resolvePlaceholder evaluates the segments of one placeholder body in
// order and returns the first non-empty value. This covers both modifier
// forms like {argv_after:uvicorn|first} and alternative chains like
// {argv_value:-p|argv_value:--port|default:3000}.
func resolvePlaceholder(body string, ctx Context) string {
	for _, seg := range strings.Split(body, "|") {
		kind, arg, _ := strings.Cut(seg, ":")
		var v string
		switch kind {
		case "argv_after":
			v = argvAfter(ctx.Args, arg)
		case "argv_value":
			v = argvValue(ctx.Args, arg)
		case "default":
			v = arg
		case "argv_match_basename":
			v = basename(ctx.RegexMatch)
		case "cwd_basename":
			v = basename(ctx.Cwd)
		case "env":
			v = ctx.Env[arg]
		case "port":
			if ctx.Port > 0 {
				v = strconv.Itoa(ctx.Port)
			}
		case "first":
			// modifier naming argv_after's default occurrence selection
		}
		if v != "" {
			return v
		}
	}
	return ""
}

// argvAfter returns the argv element following the first element that
// contains token as a substring, or "" when token is absent or last.
func argvAfter(args []string, token string) string {
	if token == "" {
		return ""
	}
	for i, a := range args {
		if strings.Contains(a, token) && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// argvValue returns the argv element following an exact-match flag token.
func argvValue(args []string, flag string) string {
	if flag == "" {
		return ""
	}
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func basename(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

// cleanup removes parentheticals that lost their content to empty
// substitutions ("(port )" and friends), then normalizes whitespace.
func cleanup(s string) string {
	s = parenRe.ReplaceAllStringFunc(s, func(group string) string {
		inner := group[1 : len(group)-1]
		if !strings.Contains(inner, emptyMark) {
			return group
		}
		rest := strings.ReplaceAll(inner, emptyMark, "")
		if decorationOnly(rest) {
			return ""
		}
		return "(" + rest + ")"
	})
	s = strings.ReplaceAll(s, emptyMark, "")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// decorationOnly reports whether what is left of a parenthetical carries no
// substituted value of its own, i.e. contains no digit.
func decorationOnly(s string) bool {
	return !strings.ContainsFunc(s, unicode.IsDigit)
}
