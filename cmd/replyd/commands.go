package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/replyd/autoreply"
)

// --- check ---

var checkCmd = &cobra.Command{
	Use:   "check <text>",
	Short: "Show how a post text would be filtered and classified",
	Long: `Run a text through the keyword filter and, when enabled, the classifier,
without touching the feed or the replied set.

Examples:
  replyd check "mau beli laptop bekas"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		res, err := autoreply.CheckText(cmd.Context(), cfg, strings.Join(args, " "), newLogger(cfg.LogLevel))
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

// --- replied ---

var repliedCmd = &cobra.Command{
	Use:   "replied",
	Short: "Inspect or seed the replied-post set",
}

var repliedListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print replied post ids, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := autoreply.OpenDedupe(cmd.Context(), cfg.Dedupe.Backend, cfg.Dedupe.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		ids := store.IDs()
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(ids) > limit {
			ids = ids[len(ids)-limit:]
		}
		out := cmd.OutOrStdout()
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	},
}

var repliedImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Add post ids to the replied set",
	Long: `Add post ids to the replied set so they are never replied to. The file
is a JSON array of ids or one id per line.

Examples:
  replyd replied import old_replied_ids.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		ids, err := parseIDList(data)
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		store, err := autoreply.OpenDedupe(cmd.Context(), cfg.Dedupe.Backend, cfg.Dedupe.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		before := store.Len()
		for _, id := range ids {
			store.Record(id)
		}
		if err := store.Persist(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d new ids (%d total)\n", store.Len()-before, store.Len())
		return nil
	},
}

func init() {
	repliedListCmd.Flags().Int("limit", 0, "print only the newest N ids")
	repliedCmd.AddCommand(repliedListCmd, repliedImportCmd)
}

// parseIDList accepts a JSON array of strings or numbers, or one id per line.
func parseIDList(data []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var raw []json.Number
		if err := json.Unmarshal(trimmed, &raw); err == nil {
			ids := make([]string, len(raw))
			for i, n := range raw {
				ids[i] = n.String()
			}
			return ids, nil
		}
		var ids []string
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return nil, err
		}
		return ids, nil
	}

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			ids = append(ids, line)
		}
	}
	return ids, sc.Err()
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and print the effective values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config ok\nsearch: %s\n", cfg.BuildSearchURL())
		return printJSON(cmd, cfg)
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
