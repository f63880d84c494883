package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"tagroute/config"
	"tagroute/internal/adapter/filestore"
	"tagroute/internal/adapter/store"
	"tagroute/internal/domain"
	"tagroute/internal/usecase"
)

var importCmd = &cobra.Command{
	Use:   "import [path]",
	Short: "Copy a YAML network into the bolt store",
	Long: `Import the friend lists, preference tables, tag-graphs and indexes found
under path into .tagroute/store.db within the root directory. The store is
replaced, not merged.

Examples:
  tagroute import             # Import store.path
  tagroute import ./net       # Import a specific directory`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	root := GetRootDir()

	path := dataPath(cfg, root)
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	files, err := openFileStore(cfg, path)
	if err != nil {
		return err
	}

	if err := config.EnsureDataDir(root); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := boltPath(cfg, root)
	st, err := store.NewBoltStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if res, err := st.CheckMigration(cfg); err != nil {
		return err
	} else if res.NeedsMigration || res.NeedsRebuild {
		fmt.Printf("Store: %s\n", res.Reason)
	}

	uc := usecase.NewImportUseCase(st, files)
	fmt.Printf("Scanning %s...\n", path)

	bar := progressbar.NewOptions(uc.Files(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Importing[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
	uc.OnFile = func(kind filestore.Kind, addr domain.Addr) {
		bar.Add(1)
		bar.Describe(fmt.Sprintf("[cyan]Importing[reset] %d.%s", addr, kind))
	}

	start := time.Now()
	result, err := uc.Import()
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	bar.Finish()

	if err := st.Migrate(cfg); err != nil {
		return fmt.Errorf("failed to update schema info: %w", err)
	}

	fmt.Printf("\nImport complete in %s:\n", formatDuration(time.Since(start)))
	fmt.Printf("  Friend lists: %d\n", result.Friends)
	fmt.Printf("  PTables:      %d\n", result.PTables)
	fmt.Printf("  Tag-graphs:   %d\n", result.TGraphs)
	fmt.Printf("  Indexes:      %d\n", result.Indexes)

	if len(result.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	fmt.Printf("\nStore written to: %s\n", dbPath)
	return nil
}
