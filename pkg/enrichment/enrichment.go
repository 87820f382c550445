package enrichment

import (
	"fmt"
	"strings"

	"github.com/aquilax/truncate"
	"github.com/procscope/procscope/pkg/labeltemplate"
	"github.com/procscope/procscope/pkg/rulecatalog"
	"github.com/procscope/procscope/pkg/snapshot"
)

type engineImpl struct {
	catalog     *rulecatalog.Catalog
	maxLabelLen int
}

var _ Engine = (*engineImpl)(nil)

// NewEngine creates an enrichment engine over a loaded rule catalog.
// maxLabelLen caps resolved labels, 0 disables the cap.
func NewEngine(catalog *rulecatalog.Catalog, maxLabelLen int) Engine {
	return &engineImpl{
		catalog:     catalog,
		maxLabelLen: maxLabelLen,
	}
}

// Enrich resolves the display label and icon category for rec. The raw name
// is the ultimate fallback, so the label is never empty for a named record.
func (e *engineImpl) Enrich(rec *snapshot.ProcessRecord) (string, string) {
	port := rec.DetectedPort()

	label := rec.Comm
	icon := IconCategoryDefault
	portEncoded := false

	if rule, regexElem := e.catalog.FindMatch(rec); rule != nil {
		ctx := labeltemplate.Context{
			Args:       rec.Args,
			Cwd:        rec.Cwd,
			Env:        rec.Env,
			Port:       port,
			RegexMatch: regexElem,
		}
		if resolved := labeltemplate.Resolve(rule.Template(), ctx); resolved != "" {
			label = resolved
		}
		if rule.Icon() != "" {
			icon = rule.Icon()
		}
		portEncoded = rule.HasPortPlaceholder()
	}

	// Universal listening-port suffix, applied exactly once after all other
	// resolution. Rules that already encode a port fragment are exempt.
	if port > 0 && !portEncoded && !strings.Contains(label, "(port ") {
		label = fmt.Sprintf("%s (port %d)", label, port)
	}

	if e.maxLabelLen > 0 {
		label = truncate.Truncate(label, e.maxLabelLen, "…", truncate.PositionEnd)
	}
	if label == "" {
		label = rec.Comm
	}
	return label, icon
}
