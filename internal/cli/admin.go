package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/cvlacsync/internal/cache"
)

var clearConfirmed bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create missing tables and columns",
	Long: `Schema creates the work_items and extracted_facts tables when absent and
adds any missing columns. Existing rows are never touched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		if err := s.EnsureSchema(cmd.Context()); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Schema ready (%s)\n", describeDatabase(cfg.Database))
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <label> <link>",
	Short: "Enqueue a researcher for the next run",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		if err := s.EnsureSchema(cmd.Context()); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		item, err := s.AddItem(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Added #%d %s\n", item.ID, item.Label)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Enqueue researchers listed in a file",
	Long: `Import reads one researcher per line as "label<TAB>link". Blank lines and
lines starting with # are skipped, and repeated links are imported once.

Example:
  cvlacsync import researchers.tsv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open file: %w", err)
		}
		defer func() { _ = f.Close() }()

		entries, err := readEntries(f)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		if err := s.EnsureSchema(cmd.Context()); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		for _, e := range entries {
			if _, err := s.AddItem(cmd.Context(), e.label, e.link); err != nil {
				return fmt.Errorf("add %q: %w", e.label, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d researchers\n", len(entries))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Count work items per status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		counts, err := s.StatusCounts(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return json.NewEncoder(out).Encode(counts)
		}
		fmt.Fprintf(out, "  Pending:    %d\n", counts.Pending)
		fmt.Fprintf(out, "  Processed:  %d\n", counts.Processed)
		fmt.Fprintf(out, "  Total:      %d\n", counts.Total())
		return nil
	},
}

var clearFactsCmd = &cobra.Command{
	Use:   "clear-facts",
	Short: "Delete every extracted fact",
	Long: `Clear-facts empties the extracted_facts table. Work item statuses are not
changed, so processed researchers are not harvested again. Requires --yes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearConfirmed {
			return fmt.Errorf("refusing to delete extracted facts without --yes")
		}
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		if err := s.ClearFacts(cmd.Context()); err != nil {
			return fmt.Errorf("clear facts: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Extracted facts cleared\n")
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the page cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached page",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		c := cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
		if err := c.Clear(); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cache cleared: %s\n", cfg.Cache.Dir)
		return nil
	},
}

func init() {
	clearFactsCmd.Flags().BoolVar(&clearConfirmed, "yes", false, "confirm deletion")
	statusCmd.Flags().Bool("json", false, "print counts as JSON")

	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(schemaCmd, addCmd, importCmd, statusCmd, clearFactsCmd, cacheCmd)
}

type entry struct {
	label string
	link  string
}

// readEntries parses "label<TAB>link" lines, skipping blanks, comments and
// repeated links
func readEntries(r io.Reader) ([]entry, error) {
	var entries []entry
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		label, link, ok := strings.Cut(line, "\t")
		label, link = strings.TrimSpace(label), strings.TrimSpace(link)
		if !ok || label == "" || link == "" {
			return nil, fmt.Errorf("line %d: want \"label<TAB>link\", got %q", lineNo, line)
		}

		if !seen[link] {
			seen[link] = true
			entries = append(entries, entry{label: label, link: link})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return entries, nil
}
