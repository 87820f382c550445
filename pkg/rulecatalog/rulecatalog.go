package rulecatalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/procscope/procscope/pkg/snapshot"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"sigs.k8s.io/yaml"
)

// MatchSpec is the declarative match side of a rule. Every present
// sub-condition must hold for the rule to match; omitted sub-conditions are
// not checked.
type MatchSpec struct {
	ProcessName  string `json:"processName,omitempty"`
	ArgvContains string `json:"argvContains,omitempty"`
	ArgvRegex    string `json:"argvRegex,omitempty"`
	EnvContains  string `json:"envContains,omitempty"`
}

// RuleSpec is one catalog entry as it appears in the rules file.
type RuleSpec struct {
	Name     string    `json:"name"`
	Match    MatchSpec `json:"match"`
	Template string    `json:"template"`
	Icon     string    `json:"icon"`
}

// Rule is a compiled catalog entry.
type Rule struct {
	spec   RuleSpec
	argvRe *regexp.Regexp
}

func (r *Rule) Name() string     { return r.spec.Name }
func (r *Rule) Template() string { return r.spec.Template }
func (r *Rule) Icon() string     { return r.spec.Icon }

// HasPortPlaceholder reports whether the rule's template already encodes a
// {port} placeholder, which exempts it from the universal port suffix.
func (r *Rule) HasPortPlaceholder() bool {
	return strings.Contains(r.spec.Template, "{port}")
}

// Match reports whether rec satisfies every specified sub-condition. When
// the rule carries an argv-regex condition and it matched, the second return
// value is the argv element the match landed in (for {argv_match_basename}).
func (r *Rule) Match(rec *snapshot.ProcessRecord) (bool, string) {
	if r.spec.Match.ProcessName != "" && rec.Comm != r.spec.Match.ProcessName {
		return false, ""
	}
	joined := rec.JoinedArgs()
	if r.spec.Match.ArgvContains != "" && !strings.Contains(joined, r.spec.Match.ArgvContains) {
		return false, ""
	}
	regexElem := ""
	if r.argvRe != nil {
		loc := r.argvRe.FindStringIndex(joined)
		if loc == nil {
			return false, ""
		}
		regexElem = elementAt(rec.Args, loc[0])
	}
	if needle := r.spec.Match.EnvContains; needle != "" {
		if !envContains(rec.Env, needle) {
			return false, ""
		}
	}
	return true, regexElem
}

// elementAt maps an offset in the space-joined argv string back to the argv
// element containing it.
func elementAt(args []string, offset int) string {
	pos := 0
	for _, a := range args {
		if offset < pos+len(a) {
			return a
		}
		pos += len(a) + 1 // joining space
	}
	if len(args) > 0 {
		return args[len(args)-1]
	}
	return ""
}

// envContains tests the sub-condition against "KEY=VALUE" pairs. A nil env
// snapshot means the collector could not supply environment data; the
// sub-condition then never matches, it is not an error.
func envContains(env map[string]string, needle string) bool {
	for k, v := range env {
		if strings.Contains(k+"="+v, needle) {
			return true
		}
	}
	return false
}

// Catalog is the ordered, effectively read-only rule list. It is loaded once
// and safe to share across concurrent enrichment invocations.
type Catalog struct {
	rules []*Rule
}

// New compiles specs into a catalog, preserving order. Rules whose regex
// fails to compile are skipped with a diagnostic; the returned error
// aggregates the skips and the catalog stays usable.
func New(specs []RuleSpec) (*Catalog, error) {
	c := &Catalog{rules: make([]*Rule, 0, len(specs))}
	var errs error
	for i, spec := range specs {
		rule := &Rule{spec: spec}
		if spec.Match.ArgvRegex != "" {
			re, err := regexp.Compile(spec.Match.ArgvRegex)
			if err != nil {
				logger.L().Warning("skipping rule with invalid argv regex",
					helpers.String("rule", spec.Name),
					helpers.Int("index", i),
					helpers.Error(err))
				errs = multierr.Append(errs, fmt.Errorf("rule %q (index %d): %w", spec.Name, i, err))
				continue
			}
			rule.argvRe = re
		}
		c.rules = append(c.rules, rule)
	}
	return c, errs
}

// Load parses a YAML rule list and compiles it.
func Load(data []byte) (*Catalog, error) {
	var specs []RuleSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse rule catalog: %w", err)
	}
	return New(specs)
}

// LoadFile reads and compiles the rule catalog at path.
func LoadFile(appFs afero.Fs, path string) (*Catalog, error) {
	data, err := afero.ReadFile(appFs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule catalog: %w", err)
	}
	return Load(data)
}

// FindMatch returns the first rule rec satisfies, in catalog order, together
// with the argv element matched by the rule's regex condition (empty when the
// rule has none). A record matches at most one rule.
func (c *Catalog) FindMatch(rec *snapshot.ProcessRecord) (*Rule, string) {
	for _, rule := range c.rules {
		if ok, regexElem := rule.Match(rec); ok {
			return rule, regexElem
		}
	}
	return nil, ""
}

// Len returns the number of loaded rules.
func (c *Catalog) Len() int {
	return len(c.rules)
}
