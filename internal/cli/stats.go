package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"tagroute/internal/adapter/filestore"
	"tagroute/internal/domain"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the configured store holds",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	root := GetRootDir()

	if cfg.Store.Kind != "bolt" {
		path := dataPath(cfg, root)
		files, err := openFileStore(cfg, path)
		if err != nil {
			return err
		}
		fmt.Printf("File store: %s\n", path)
		fmt.Printf("  Friend lists: %d\n", len(files.List(filestore.KindFriends)))
		fmt.Printf("  PTables:      %d\n", len(files.List(filestore.KindPTable)))
		fmt.Printf("  Tag-graphs:   %d\n", len(files.List(filestore.KindTGraph)))
		fmt.Printf("  Indexes:      %d\n", len(files.List(filestore.KindIndex)))
		printIdentities(files.List(filestore.KindFriends))
		return nil
	}

	st, err := openBoltStore(cfg, root)
	if err != nil {
		return err
	}
	defer st.Close()

	info, err := st.GetSchemaInfo()
	if err != nil {
		return err
	}
	c, err := st.Counts()
	if err != nil {
		return err
	}
	ids, err := st.ListIdentities()
	if err != nil {
		return err
	}

	fmt.Printf("Bolt store: %s (schema v%d, config %s)\n", boltPath(cfg, root), info.Version, info.ConfigHash)
	fmt.Printf("  Friend lists: %d\n", c.Friends)
	fmt.Printf("  PTables:      %d\n", c.PTables)
	fmt.Printf("  Tag-graphs:   %d (%d nodes)\n", c.TGraphs, c.Nodes)
	fmt.Printf("  Indexes:      %d\n", c.Indexes)
	fmt.Printf("  Arc lists:    %d\n", c.Arcs)
	printIdentities(ids)
	return nil
}

func printIdentities(ids []domain.Addr) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fmt.Printf("  Identities:   %v\n", ids)
}
