package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fpang/slop-meme-generator/internal/caption"
)

var jsonFlag bool

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the quick-select templates",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if jsonFlag {
			printJSON(caption.Templates)
			return
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tLABEL\tPROMPT\tCAPTION")
		for i, t := range caption.Templates {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s / %s\n", i, t.Label(), t.PromptSeed, t.Caption.Top, t.Caption.Bottom)
		}
		tw.Flush()
	},
}

var captionCmd = &cobra.Command{
	Use:   "caption <prompt>",
	Short: "Show the caption a prompt would get",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pair := caption.NewResolver().Resolve(strings.Join(args, " "))
		if jsonFlag {
			printJSON(pair)
			return
		}
		fmt.Println(pair.Top)
		fmt.Println(pair.Bottom)
	},
}

func init() {
	templatesCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print JSON")
	captionCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print JSON")
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
