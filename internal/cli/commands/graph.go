package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/dcverify/internal/callgraph"
	"github.com/leapstack-labs/dcverify/internal/cli/output"
	"github.com/leapstack-labs/dcverify/internal/verify"
	"github.com/spf13/cobra"
)

// GraphOutput is the JSON form of the graph command.
type GraphOutput struct {
	Adapters    []AdapterGraph      `json:"adapters"`
	Diagnostics []verify.Diagnostic `json:"diagnostics,omitempty"`
}

// AdapterGraph summarizes one adapter's call graph.
type AdapterGraph struct {
	Name      string       `json:"name"`
	Type      string       `json:"type"`
	FromCache bool         `json:"from_cache"`
	Files     int          `json:"files"`
	Nodes     int          `json:"nodes"`
	Edges     int          `json:"edges"`
	Routes    []RouteEntry `json:"routes"`
}

// RouteEntry is one detected route.
type RouteEntry struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Handler  string `json:"handler"`
	Location string `json:"location"`
}

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show call graph statistics",
		Long: `Build the call graph of every configured adapter and show its size and
detected routes. Chains are not assembled and no contract is checked.`,
		Example: `  # Show graph statistics
  dcverify graph

  # Output as JSON
  dcverify graph --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGraph(cmd, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: text, json, markdown")

	return cmd
}

func runGraph(cmd *cobra.Command, format string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := cmdCtx.Cfg.ValidateAdapters(); err != nil {
		return err
	}

	results, diags, err := cmdCtx.Engine.BuildGraphs(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to build call graphs: %w", err)
	}

	out := GraphOutput{Adapters: make([]AdapterGraph, 0, len(results)), Diagnostics: diags}
	for _, ar := range results {
		out.Adapters = append(out.Adapters, summarizeGraph(ar))
	}

	r := renderer(cmd, cmdCtx.Renderer, format)
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeMarkdown:
		renderGraphMarkdown(r, out)
	default:
		renderGraphText(r, out)
	}
	return nil
}

func summarizeGraph(ar *verify.AdapterResult) AdapterGraph {
	g := ar.Graph
	ag := AdapterGraph{
		Name:      ar.Name,
		Type:      string(ar.Type),
		FromCache: ar.FromCache,
		Files:     len(ar.Files),
		Nodes:     g.NodeCount(),
		Edges:     g.EdgeCount(),
		Routes:    []RouteEntry{},
	}
	for _, id := range g.Routes() {
		n, _ := g.Node(id)
		route := n.(*callgraph.Route)
		entry := RouteEntry{
			Method:   string(route.Method),
			Path:     route.Path,
			Location: route.Location.String(),
		}
		if h, err := g.Handler(route); err == nil {
			entry.Handler = h.Name()
		}
		ag.Routes = append(ag.Routes, entry)
	}
	return ag
}

func renderGraphText(r *output.Renderer, out GraphOutput) {
	r.Header(1, "Call Graphs")

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Adapter", "Files", "Nodes", "Edges", "Routes", "Cached"})
	for _, a := range out.Adapters {
		t.AppendRow(table.Row{a.Name, a.Files, a.Nodes, a.Edges, len(a.Routes), a.FromCache})
	}
	t.Render()

	for _, a := range out.Adapters {
		if len(a.Routes) == 0 {
			continue
		}
		r.Header(2, a.Name)
		rt := table.NewWriter()
		rt.SetOutputMirror(r.Writer())
		rt.SetStyle(table.StyleLight)
		rt.AppendHeader(table.Row{"Method", "Path", "Handler", "Location"})
		for _, route := range a.Routes {
			rt.AppendRow(table.Row{route.Method, route.Path, route.Handler, route.Location})
		}
		rt.Render()
	}

	for _, d := range out.Diagnostics {
		r.Warning(fmt.Sprintf("%s (%s): %s", d.Adapter, d.Kind, d.Message))
	}
}

func renderGraphMarkdown(r *output.Renderer, out GraphOutput) {
	r.Println(output.FormatHeader(1, "Call Graphs"))
	for _, a := range out.Adapters {
		r.Println("")
		r.Println(output.FormatHeader(2, a.Name))
		r.Println("")
		r.Println(output.FormatKeyValue("Files", fmt.Sprintf("%d", a.Files)))
		r.Println(output.FormatKeyValue("Nodes", fmt.Sprintf("%d", a.Nodes)))
		r.Println(output.FormatKeyValue("Edges", fmt.Sprintf("%d", a.Edges)))
		r.Println(output.FormatKeyValue("Cached", fmt.Sprintf("%t", a.FromCache)))
		if len(a.Routes) > 0 {
			r.Println("")
			r.Println(output.FormatHeader(3, "Routes"))
			r.Println("")
			for _, route := range a.Routes {
				r.Printf("- `%s %s` → %s (%s)\n", route.Method, route.Path, route.Handler, route.Location)
			}
		}
	}
	if len(out.Diagnostics) > 0 {
		r.Println("")
		r.Println(output.FormatHeader(2, "Diagnostics"))
		r.Println("")
		for _, d := range out.Diagnostics {
			r.Printf("- %s (%s): %s\n", d.Adapter, d.Kind, d.Message)
		}
	}
}
