// Command litefetch is a small console client for published catalogs: it
// resolves a manifest, bootstraps the engine, and runs searches or raw SQL
// from the terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/litefetch"
	"github.com/hupe1980/litefetch/query"
)

var (
	manifestURL string
	logLevel    string
	spoolDir    string
	concurrency int
	rps         float64
	timeout     time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "litefetch",
	Short:         "Query a published SQLite catalog without a database server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&manifestURL, "manifest", "m", "", "Manifest URL (db-config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&spoolDir, "spool-dir", "", "Directory for the temporary catalog file")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "Parallel chunk downloads (0 = default)")
	rootCmd.PersistentFlags().Float64Var(&rps, "rps", 0, "Chunk request rate limit (0 = unlimited)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall command timeout")
	_ = rootCmd.MarkPersistentFlagRequired("manifest")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(inspectCmd)
}

func openClient() (*litefetch.Client, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	return litefetch.Open(manifestURL,
		litefetch.WithLogger(litefetch.NewTextLogger(level)),
		litefetch.WithSpoolDir(spoolDir),
		litefetch.WithDownloadConcurrency(concurrency),
		litefetch.WithRequestsPerSecond(rps),
	)
}

var (
	searchFacets []string
	searchRanges []string
	searchSort   string
	searchDesc   bool
	searchPage   int
	searchSize   int
	outputJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Run a faceted catalog search",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filters := query.FilterSet{
			Facets: map[string][]string{},
			Ranges: map[string]query.Range{},
		}
		if len(args) == 1 {
			filters.Text = args[0]
		}
		for _, f := range searchFacets {
			name, value, ok := strings.Cut(f, "=")
			if !ok {
				return fmt.Errorf("invalid facet %q, want name=value", f)
			}
			filters.Facets[name] = append(filters.Facets[name], value)
		}
		for _, r := range searchRanges {
			name, bounds, ok := strings.Cut(r, "=")
			if !ok {
				return fmt.Errorf("invalid range %q, want name=min:max", r)
			}
			lo, hi, ok := strings.Cut(bounds, ":")
			if !ok {
				return fmt.Errorf("invalid range bounds %q, want min:max", bounds)
			}
			min, err := strconv.ParseFloat(lo, 64)
			if err != nil {
				return fmt.Errorf("invalid range minimum %q: %w", lo, err)
			}
			max, err := strconv.ParseFloat(hi, 64)
			if err != nil {
				return fmt.Errorf("invalid range maximum %q: %w", hi, err)
			}
			filters.Ranges[name] = query.Range{Min: min, Max: max}
		}

		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := timeoutContext(cmd)
		defer cancel()

		res, err := client.Search(ctx, filters,
			query.Sort{Column: searchSort, Descending: searchDesc},
			query.Page{Number: searchPage, Size: searchSize})
		if err != nil {
			return err
		}

		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(res)
		}
		for _, row := range res.Rows {
			fmt.Printf("%v  %v (%v, %v)\n", row["name"], row["architect"], row["prefecture"], row["completion_year"])
		}
		fmt.Printf("page %d, %d of %d matches\n", res.Page, len(res.Rows), res.Total)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringArrayVar(&searchFacets, "facet", nil, "Facet filter as name=value (repeatable)")
	searchCmd.Flags().StringArrayVar(&searchRanges, "range", nil, "Range filter as name=min:max (repeatable)")
	searchCmd.Flags().StringVar(&searchSort, "sort", "", "Sort column")
	searchCmd.Flags().BoolVar(&searchDesc, "desc", false, "Sort descending")
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "Page number (1-based)")
	searchCmd.Flags().IntVar(&searchSize, "size", 12, "Page size")
	searchCmd.Flags().BoolVar(&outputJSON, "json", false, "Emit JSON instead of text")
}

var queryCmd = &cobra.Command{
	Use:   "query <sql> [param...]",
	Short: "Run raw parameterized SQL against the catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := timeoutContext(cmd)
		defer cancel()

		params := make([]any, 0, len(args)-1)
		for _, a := range args[1:] {
			params = append(params, coerceParam(a))
		}

		res, err := client.Query(ctx, args[0], params...)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(res)
	},
}

// coerceParam lets numeric-looking CLI arguments bind as numbers so integer
// columns match. Everything else stays a string.
func coerceParam(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Bootstrap the engine and report its status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		unsubscribe := client.OnStatusChange(func(s litefetch.Status, d *litefetch.Diagnostic) {
			if d != nil {
				fmt.Printf("status: %s (%s)\n", s, d.Classification)
				return
			}
			fmt.Printf("status: %s\n", s)
		})
		defer unsubscribe()

		ctx, cancel := timeoutContext(cmd)
		defer cancel()

		if err := client.Warm(ctx); err != nil {
			return err
		}

		res, err := client.Query(ctx, "SELECT COUNT(*) AS total FROM sqlite_master WHERE type = 'table'")
		if err != nil {
			return err
		}
		fmt.Printf("tables: %v\n", res.Rows[0]["total"])
		return nil
	},
}

func timeoutContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
