package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hanlab/newscrawl/internal/resolver"
)

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the built-in news sources",
		Run: func(*cobra.Command, []string) {
			builtin := resolver.Builtin()
			names := make([]string, 0, len(builtin))
			for name := range builtin {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				src := builtin[name]
				kind := "search page"
				if src.UsesFeed() {
					kind = "feed"
				}
				fmt.Printf("%-14s %s\n", name, kind)
			}
		},
	}
}
