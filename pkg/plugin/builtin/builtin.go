// Package builtin registers the stock scanners. Importing it (usually
// blank) populates the default registry; RegisterAll serves tests that
// build their own registry.
package builtin

import (
	"github.com/collectivehq/collectivist/pkg/plugin"
	"github.com/collectivehq/collectivist/pkg/plugin/documents"
	"github.com/collectivehq/collectivist/pkg/plugin/fallback"
	"github.com/collectivehq/collectivist/pkg/plugin/media"
	"github.com/collectivehq/collectivist/pkg/plugin/obsidian"
	"github.com/collectivehq/collectivist/pkg/plugin/repositories"
)

func init() {
	RegisterAll(plugin.Default())
}

// RegisterAll installs the stock scanners in detection order. The
// fallback goes last so auto-detection always resolves.
func RegisterAll(reg *plugin.Registry) {
	reg.Register(repositories.New())
	reg.Register(obsidian.New())
	reg.Register(documents.New())
	reg.Register(media.New())
	reg.Register(fallback.New())
}
