package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/throwbridge/throwbridge/internal/catalog"
	"github.com/throwbridge/throwbridge/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and the last published catalog",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := configPath()

	fmt.Printf("%s throwbridge Status\n\n", logo)

	fmt.Printf("Config:       %s %s\n", cfgPath, mark(cfgPath))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	dataDir := cfg.DataPath()
	fmt.Printf("Data:         %s %s\n", dataDir, mark(dataDir))
	fmt.Printf("Log file:     %s %s\n", cfg.LogPath(), mark(cfg.LogPath()))
	fmt.Printf("Control Host: %s (plugin %s)\n", cfg.ControlHost.Addr(), cfg.ControlHost.PluginID)
	fmt.Printf("Item Service: %s\n", cfg.ItemService.URL(cfg.ItemService.Port))
	if cfg.Refresh.Schedule != "" {
		fmt.Printf("Refresh:      %s\n", cfg.Refresh.Schedule)
	}
	if cfg.Metrics.Addr != "" {
		fmt.Printf("Metrics:      http://%s/metrics\n", cfg.Metrics.Addr)
	}

	store := catalog.NewStore(dataDir, nil)
	for _, kind := range catalog.Kinds {
		entries := store.ReadSnapshot(kind)
		fmt.Printf("\n%s (%d published, %s):\n", kind.Group(), len(entries), kind.SnapshotFile())
		for _, e := range entries {
			fmt.Printf("  %-32s %s\n", e.Name, e.Identifier)
		}
	}
	return nil
}

func mark(path string) string {
	if _, err := os.Stat(path); err == nil {
		return "✓"
	}
	return "✗"
}
