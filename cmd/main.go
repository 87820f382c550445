package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/procscope/procscope/pkg/collector"
	"github.com/procscope/procscope/pkg/config"
	"github.com/procscope/procscope/pkg/enrichment"
	"github.com/procscope/procscope/pkg/processforest"
	"github.com/procscope/procscope/pkg/projectgroup"
	"github.com/procscope/procscope/pkg/rulecatalog"
	"github.com/spf13/afero"
)

func main() {
	ctx := context.Background()

	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		configDir = "."
	}
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		logger.L().Fatal("load config error", helpers.Error(err))
	}

	appFs := afero.NewOsFs()

	catalog, err := rulecatalog.LoadFile(appFs, cfg.RulesPath)
	if err != nil {
		if catalog == nil {
			logger.L().Fatal("load rule catalog error", helpers.Error(err))
		}
		// individual bad rules were skipped, the catalog is still usable
		logger.L().Warning("rule catalog loaded with skipped rules", helpers.Error(err))
	}
	logger.L().Info("rule catalog loaded", helpers.Int("rules", catalog.Len()))

	procfsCollector, err := collector.NewProcfsCollector(cfg.ProcfsPath)
	if err != nil {
		logger.L().Fatal("procfs collector init error", helpers.Error(err))
	}
	records, err := procfsCollector.Collect(ctx)
	if err != nil {
		logger.L().Fatal("procfs collect error", helpers.Error(err))
	}
	logger.L().Info("snapshot collected", helpers.Int("processes", len(records)))

	engine := enrichment.NewEngine(catalog, cfg.MaxLabelLength)
	builder := processforest.NewBuilder(engine, cfg.RootSentinels)
	forest := builder.BuildForest(records)

	grouper := projectgroup.NewEngine(appFs, cfg.MarkerFiles, cfg.ProjectCacheSize, cfg.ProjectCacheTTL)
	groups := grouper.GroupByProject(forest)

	fmt.Print(processforest.RenderIndented(forest))
	for _, g := range groups {
		name := g.Name
		if name == "" {
			name = g.Root
		}
		fmt.Printf("project %s: %d processes, %s\n",
			name, len(g.PIDs), humanize.Bytes(g.Resources.MemoryBytes))
	}
}
