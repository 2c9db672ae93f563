package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harun/toolshed/pkg/backend"
	"github.com/harun/toolshed/pkg/catalog"
)

const descriptionWidth = 60

var (
	listType   string
	listSearch string
	listOutput string
)

// toolListing is the printed summary of a tool
type toolListing struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Function    string   `json:"function" yaml:"function"`
	Type        string   `json:"type" yaml:"type"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Inputs      []string `json:"inputs" yaml:"inputs"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tools from the backend",
	Long: `List the tools the backend knows, grouped by type.
--search matches titles, descriptions and types case-insensitively.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listType, "type", "", "only show tools of this type")
	listCmd.Flags().StringVar(&listSearch, "search", "", "filter by text")
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "output format (table, json, yaml)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	switch listOutput {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("invalid output format: %s (must be: table, json, yaml)", listOutput)
	}

	tools, err := fetchTools(cmd.Context())
	if err != nil {
		return err
	}

	tools = catalog.NewRegistry(tools...).Search(listSearch)
	groups := catalog.GroupByType(catalog.FilterByType(tools, listType))

	var listings []toolListing
	for _, group := range groups {
		for _, tool := range group.Tools {
			listings = append(listings, listingOf(tool, group.Type))
		}
	}

	out := cmd.OutOrStdout()
	switch listOutput {
	case "json":
		if listings == nil {
			listings = []toolListing{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(listings)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(listings); err != nil {
			return err
		}
		return enc.Close()
	default:
		return writeTable(out, listings)
	}
}

func fetchTools(ctx context.Context) ([]catalog.Tool, error) {
	client := backend.NewClient(cfg.Backend.URL, cfg.BackendTimeout())
	tools, err := client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", catalog.LoadErrorMessage, err)
	}
	return tools, nil
}

func listingOf(tool catalog.Tool, toolType string) toolListing {
	inputs := make([]string, len(tool.Inputs))
	for i, in := range tool.Inputs {
		inputs[i] = fmt.Sprintf("%s (%s)", in.HumanReadableTitle, in.Type)
	}
	return toolListing{
		ID:          tool.ID.String(),
		Title:       tool.Title(),
		Function:    tool.FunctionTitle,
		Type:        toolType,
		Description: tool.FunctionDescription,
		Inputs:      inputs,
	}
}

func writeTable(out io.Writer, listings []toolListing) error {
	if len(listings) == 0 {
		_, err := fmt.Fprintln(out, "No tools found.")
		return err
	}

	header := color.New(color.Bold).SprintFunc()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header("ID")+"\t"+header("TYPE")+"\t"+header("TITLE")+"\t"+header("DESCRIPTION"))
	for _, l := range listings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.ID, l.Type, l.Title, truncate(l.Description, descriptionWidth))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
