package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/h2a-linkage/internal/census"
	"github.com/h2a-linkage/internal/config"
	"github.com/h2a-linkage/internal/csvio"
	"github.com/h2a-linkage/internal/disclosure"
	"github.com/h2a-linkage/internal/etl"
	"github.com/h2a-linkage/internal/postal"
	"github.com/h2a-linkage/internal/schema"
	"github.com/h2a-linkage/internal/store"
	"github.com/h2a-linkage/internal/symspell"
	"github.com/h2a-linkage/internal/table"
	"github.com/h2a-linkage/internal/violations"
	"github.com/h2a-linkage/internal/web"
)

// Output file names under the output directory
const (
	reconciledFile      = "h2a_combined.csv"
	percentagesFile     = "acs_percentages.csv"
	jobsWithACSFile     = "jobs_with_acs.csv"
	matchesFile         = "matches.csv"
	labelledFile        = "applications_labelled.csv"
	representativesFile = "representatives.csv"
)

var (
	configPath string
	debugFlag  bool
	noStore    bool

	cfg      *config.Config
	st       *store.Store
	pipeline *etl.Pipeline
)

func main() {
	// Create root command
	rootCmd := &cobra.Command{
		Use:   "h2a",
		Short: "H-2A disclosure and investigation linkage",
		Long:  `Reconciles yearly H-2A disclosure files, attaches ACS tract demographics and links employers to WHD investigations`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnv(); err != nil {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			if debugFlag {
				cfg.Debug = true
			}
			if !noStore {
				st, err = store.Open(cmd.Context(), cfg.Database.Driver, cfg.Database.ConnString())
				if err != nil {
					return err
				}
			}
			pipeline = etl.NewPipeline(st, cfg.Debug)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if st != nil {
				st.Close()
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "pipeline config (YAML)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVar(&noStore, "no-store", false, "do not record runs in the database")

	// Add subcommands
	rootCmd.AddCommand(createReconcileCmd())
	rootCmd.AddCommand(createDiffCmd())
	rootCmd.AddCommand(createPercentagesCmd())
	rootCmd.AddCommand(createMatchCmd())
	rootCmd.AddCommand(createLabelCmd())
	rootCmd.AddCommand(createRepresentCmd())
	rootCmd.AddCommand(createRunsCmd())
	rootCmd.AddCommand(createServeCmd())

	// Execute root command
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func outputPath(name string) string {
	return filepath.Join(cfg.Output.Dir, name)
}

func writeOutput(name string, t *table.Table) {
	path := outputPath(name)
	if err := csvio.WriteFile(path, t); err != nil {
		log.Fatalf("Failed to write %s: %v", path, err)
	}
	fmt.Printf("Wrote %d rows to %s\n", t.Len(), path)
}

func readInput(kind, path string) *table.Table {
	if path == "" {
		log.Fatalf("No %s input configured", kind)
	}
	t, err := csvio.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", kind, err)
	}
	return t
}

func readYears() map[int]*table.Table {
	if len(cfg.Inputs.Disclosure) == 0 {
		log.Fatalf("No disclosure files configured")
	}
	years := make(map[int]*table.Table, len(cfg.Inputs.Disclosure))
	for _, y := range cfg.Years() {
		years[y] = readInput(fmt.Sprintf("disclosure %d", y), cfg.Inputs.Disclosure[y])
	}
	return years
}

func printRun(res *etl.StageResult) {
	if res.RunID != "" {
		fmt.Printf("Run %s recorded\n", res.RunID)
	}
}

func createReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Combine the yearly disclosure files under one schema",
		Run: func(cmd *cobra.Command, args []string) {
			policy, err := schema.ParsePolicy(cfg.Reconcile.Policy)
			if err != nil {
				log.Fatalf("Invalid policy: %v", err)
			}
			res, err := pipeline.Reconcile(cmd.Context(), etl.ReconcileInput{
				Years:            readYears(),
				Aliases:          cfg.SchemaAliases(),
				Derived:          cfg.Derivations(),
				Policy:           policy,
				ProvenanceColumn: cfg.Reconcile.ProvenanceColumn,
			})
			if err != nil {
				log.Fatalf("Reconcile failed: %v", err)
			}
			writeOutput(reconciledFile, res.Table)
			printRun(res)
		},
	}
}

func createDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Show column drift across disclosure years",
		Run: func(cmd *cobra.Command, args []string) {
			years := readYears()
			aliases := cfg.SchemaAliases()
			report := map[string]schema.DiffReport{
				"raw":      etl.Diff(years, nil),
				"resolved": etl.Diff(years, &aliases),
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				log.Fatalf("Failed to print report: %v", err)
			}
		},
	}
}

func createPercentagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "percentages",
		Short: "Aggregate ACS counts into tract percentages",
		Long:  `Aggregate ACS counts into tract percentages, pad to the reference tracts and, when a jobs file is configured, attach them to jobs`,
		Run: func(cmd *cobra.Command, args []string) {
			pc := cfg.Percentages
			if len(cfg.Inputs.ACS) == 0 {
				log.Fatalf("No ACS files configured")
			}
			sources := make(map[string]*table.Table, len(cfg.Inputs.ACS))
			names := make([]string, 0, len(cfg.Inputs.ACS))
			for name := range cfg.Inputs.ACS {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				sources[name] = readInput("ACS "+name, cfg.Inputs.ACS[name])
			}

			in := etl.PercentageInput{
				Sources:      sources,
				Excluded:     pc.ExcludedSet(),
				Drop:         pc.Drop,
				GeoColumn:    pc.GeoColumn,
				SourceColumn: pc.SourceColumn,
			}
			if cfg.Inputs.Variables != "" {
				vars, err := census.VariablesFromTable(readInput("variables", cfg.Inputs.Variables), pc.EstimateSuffix)
				if err != nil {
					log.Fatalf("Invalid variables: %v", err)
				}
				in.Variables = vars
			}
			if cfg.Inputs.Reference != "" {
				ref, err := census.ReferenceFromTable(readInput("reference", cfg.Inputs.Reference), pc.ReferenceColumn)
				if err != nil {
					log.Fatalf("Invalid reference: %v", err)
				}
				in.Reference = ref
			}

			res, err := pipeline.Percentages(cmd.Context(), in)
			if err != nil {
				log.Fatalf("Percentages failed: %v", err)
			}
			writeOutput(percentagesFile, res.Table)
			printRun(res.StageResult)

			if cfg.Inputs.Jobs == "" {
				return
			}
			attached, err := pipeline.Attach(cmd.Context(), readInput("jobs", cfg.Inputs.Jobs), pc.GeoColumn, pc.SourceColumn, res.BySource)
			if err != nil {
				log.Fatalf("Attach failed: %v", err)
			}
			writeOutput(jobsWithACSFile, attached.Table)
			printRun(attached)
		},
	}
}

func createMatchCmd() *cobra.Command {
	var fillAddress bool
	var addressColumn, zipColumn string

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Fuzzy match certified applications to WHD investigations",
		Run: func(cmd *cobra.Command, args []string) {
			apps := readInput("applications", cfg.Inputs.Applications)
			registry := readInput("investigations", cfg.Inputs.Investigations)

			cutoff, err := cfg.MatchingSince()
			if err != nil {
				log.Fatalf("Invalid cutoff: %v", err)
			}
			cols := violations.DefaultRegistryColumns
			if fillAddress {
				registry = postal.FillAddress(registry, addressColumn, cols.City, cfg.Matching.RightBlock[0], zipColumn)
			}
			left, right, err := etl.PrepareMatchInputs(apps, registry, cols, cutoff)
			if err != nil {
				log.Fatalf("Failed to prepare inputs: %v", err)
			}
			if cfg.Matching.CorrectCities {
				var corrections []symspell.Correction
				right, corrections, err = etl.CorrectSpellings(left, right, "city", cfg.SpellingConfig())
				if err != nil {
					log.Fatalf("Failed to correct cities: %v", err)
				}
				fmt.Printf("Corrected %d registry city spellings\n", len(corrections))
			}
			fmt.Printf("Matching %d applications against %d investigations\n", left.Len(), right.Len())

			res, err := pipeline.Match(cmd.Context(), left, right, cfg.MatchOptions())
			if err != nil {
				log.Fatalf("Match failed: %v", err)
			}
			fmt.Printf("%d candidate pairs in %d blocks, %d matched\n", res.Match.Candidates, res.Match.Blocks, len(res.Match.Pairs))
			writeOutput(matchesFile, res.Table)
			printRun(res.StageResult)
		},
	}

	cmd.Flags().BoolVar(&fillAddress, "fill-address", false, "fill blank registry city/state/zip from the street address with libpostal")
	cmd.Flags().StringVar(&addressColumn, "address-column", "street_addr_1_txt", "registry street address column")
	cmd.Flags().StringVar(&zipColumn, "zip-column", "zip_cd", "registry postcode column")
	return cmd
}

func createLabelCmd() *cobra.Command {
	var matchesPath, labelColumn string

	cmd := &cobra.Command{
		Use:   "label",
		Short: "Label applications whose employer matched an investigation",
		Run: func(cmd *cobra.Command, args []string) {
			mode, err := violations.ParseMode(cfg.Matching.Mode)
			if err != nil {
				log.Fatalf("Invalid mode: %v", err)
			}
			if matchesPath == "" {
				matchesPath = outputPath(matchesFile)
			}
			apps, err := disclosure.CertifiedOnly(readInput("applications", cfg.Inputs.Applications))
			if err != nil {
				log.Fatalf("Failed to filter applications: %v", err)
			}
			apps, err = disclosure.CleanEmployers(apps)
			if err != nil {
				log.Fatalf("Failed to clean employers: %v", err)
			}
			if labelColumn == "" {
				labelColumn = "is_matched_" + mode.String()
			}

			res, err := pipeline.Label(cmd.Context(), etl.LabelInput{
				Applications: apps,
				Matches:      readInput("matches", matchesPath),
				Mode:         mode,
				Columns:      violations.DefaultColumns,
				LoadSource:   violations.DefaultRegistryColumns.LoadDate,
				AppName:      "name",
				MatchedName:  "name_left",
				LabelColumn:  labelColumn,
			})
			if err != nil {
				log.Fatalf("Label failed: %v", err)
			}
			writeOutput(labelledFile, res.Table)
			printRun(res)
		},
	}

	cmd.Flags().StringVar(&matchesPath, "matches", "", "matches CSV (default: output dir)")
	cmd.Flags().StringVar(&labelColumn, "label-column", "", "label column name (default: is_matched_<mode>)")
	return cmd
}

func createRepresentCmd() *cobra.Command {
	var inPath string

	cmd := &cobra.Command{
		Use:   "represent",
		Short: "Collapse rows to one representative record per employer",
		Run: func(cmd *cobra.Command, args []string) {
			if inPath == "" {
				inPath = outputPath(labelledFile)
			}
			res, err := pipeline.Represent(cmd.Context(), etl.RepresentInput{
				Table:   readInput("represent", inPath),
				GroupBy: cfg.Represent.GroupBy,
				Kinds:   cfg.Represent.Kinds(),
				Layouts: cfg.Represent.DateLayouts,
			})
			if err != nil {
				log.Fatalf("Represent failed: %v", err)
			}
			writeOutput(representativesFile, res.Table)
			printRun(res)
		},
	}

	cmd.Flags().StringVar(&inPath, "in", "", "input CSV (default: labelled applications)")
	return cmd
}

func createRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recorded stage runs",
		Run: func(cmd *cobra.Command, args []string) {
			if st == nil {
				log.Fatalf("Run history needs a database; drop --no-store")
			}
			runs, err := st.Runs(cmd.Context())
			if err != nil {
				log.Fatalf("Failed to list runs: %v", err)
			}
			for _, r := range runs {
				took := "-"
				if r.FinishedAt != nil {
					took = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Printf("%s  %-12s %-8s in=%-8d out=%-8d %s  %s\n",
					r.StartedAt.Format(time.RFC3339), r.Stage, r.Status, r.RowsIn, r.RowsOut, took, r.ID)
				if r.Message != "" {
					fmt.Printf("    %s\n", r.Message)
				}
			}
		},
	}
}

func createServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline stages over HTTP",
		Run: func(cmd *cobra.Command, args []string) {
			server := web.NewServer(web.ConfigFrom(cfg), pipeline, st)
			if err := server.Start(); err != nil {
				log.Fatalf("Server failed: %v", err)
			}
		},
	}
}
