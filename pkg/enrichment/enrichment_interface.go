package enrichment

import (
	"github.com/procscope/procscope/pkg/snapshot"
)

// IconCategoryDefault is the icon category for records no rule matched.
const IconCategoryDefault = "generic"

// Engine resolves a display label and icon category for one process record.
// Implementations must be pure over their inputs so concurrent refresh
// cycles can share one engine.
type Engine interface {
	Enrich(rec *snapshot.ProcessRecord) (label string, icon string)
}
