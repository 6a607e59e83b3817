// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli implements the taskpipe command line interface.
package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/antflydb/taskpipe"
)

// Version is set by the main package at build time.
var Version = "dev"

// taskInfo is the JSON shape of one registry entry.
type taskInfo struct {
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	DefaultModel   string   `json:"default_model"`
	Aliases        []string `json:"aliases,omitempty"`
	NeedsTokenizer bool     `json:"needs_tokenizer"`
	NeedsProcessor bool     `json:"needs_processor"`
}

// NewRootCommand builds the taskpipe CLI.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "taskpipe",
		Short:        "Inspect the taskpipe task registry",
		Version:      Version,
		SilenceUsage: true,
	}

	root.PersistentFlags().Bool("json", false, "emit JSON instead of a table")
	mustBindPFlag("json", root.PersistentFlags().Lookup("json"))

	root.AddCommand(newListCommand())
	return root
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", key, err))
	}
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List supported tasks",
		Long: `List the tasks the registry supports, with their aliases and the
default model used when no model is specified.

Examples:
  # Table output
  taskpipe list

  # JSON output
  taskpipe list --json

  # Filter by category
  taskpipe list --category text`,
		RunE: runList,
	}

	cmd.Flags().String("category", "", "filter by category (text, audio, image, multimodal)")
	mustBindPFlag("category", cmd.Flags().Lookup("category"))
	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	registry := taskpipe.NewRegistry()

	aliasesByTask := make(map[string][]string)
	for alias, canonical := range registry.Aliases() {
		aliasesByTask[canonical] = append(aliasesByTask[canonical], alias)
	}
	for _, aliases := range aliasesByTask {
		sort.Strings(aliases)
	}

	categoryFilter := viper.GetString("category")

	var infos []taskInfo
	for _, name := range registry.Tasks() {
		desc, _ := registry.Describe(name)
		if categoryFilter != "" && string(desc.Category) != categoryFilter {
			continue
		}
		infos = append(infos, taskInfo{
			Name:           desc.Name,
			Category:       string(desc.Category),
			DefaultModel:   desc.DefaultModel,
			Aliases:        aliasesByTask[desc.Name],
			NeedsTokenizer: desc.NeedsTokenizer,
			NeedsProcessor: desc.NeedsProcessor,
		})
	}

	if viper.GetBool("json") {
		data, err := sonic.MarshalIndent(infos, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding task list: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("%-32s %-12s %-24s %s\n", "TASK", "CATEGORY", "ALIASES", "DEFAULT MODEL")
	for _, info := range infos {
		cmd.Printf("%-32s %-12s %-24s %s\n",
			info.Name, info.Category, strings.Join(info.Aliases, ","), info.DefaultModel)
	}
	return nil
}
