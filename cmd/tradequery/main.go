package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"tradequery/internal/catalog"
	"tradequery/internal/census"
	"tradequery/internal/clean"
	"tradequery/internal/config"
	"tradequery/internal/dimension"
	"tradequery/internal/export"
	"tradequery/internal/logging"
	"tradequery/internal/model"
	"tradequery/internal/query"
	"tradequery/internal/reference"
	"tradequery/internal/retrieval"
	"tradequery/internal/store"
	"tradequery/internal/store/sqlite"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	exitPartial = 3
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(exitUsage)
	}

	switch os.Args[1] {
	case "run":
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		code := run(ctx, os.Args[2:], os.Stdout, os.Stderr)
		cancel()
		os.Exit(code)
	case "endpoints":
		os.Exit(endpoints(os.Args[2:], os.Stdout, os.Stderr))
	default:
		usage(os.Stderr)
		os.Exit(exitUsage)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: tradequery <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  run        resolve, retrieve and export Census international trade data")
	fmt.Fprintln(w, "  endpoints  list supported flow and dimension combinations")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "run options:")
	fmt.Fprintln(w, "  -flow         import or export (required)")
	fmt.Fprintln(w, "  -by           commodity, port or state (required)")
	fmt.Fprintln(w, "  -from, -to    four-digit years, inclusive (required)")
	fmt.Fprintln(w, "  -commodity    HS codes or keywords, ';' separated")
	fmt.Fprintln(w, "  -country      country codes or names, ';' separated")
	fmt.Fprintln(w, "  -district     district codes or names, ';' separated")
	fmt.Fprintln(w, "  -port         port codes or names, ';' separated")
	fmt.Fprintln(w, "  -state        state abbreviations or names, ';' separated")
	fmt.Fprintln(w, "  -hs-level     commodity code length for keyword search")
	fmt.Fprintln(w, "  -concordance  commodity concordance workbook (xlsx)")
	fmt.Fprintln(w, "  -clean        also export a cleaned table")
	fmt.Fprintln(w, "  -by-year      write one file per year")
	fmt.Fprintln(w, "  -out          output directory (default: saved_data)")
	fmt.Fprintln(w, "  -label        file name prefix")
	fmt.Fprintln(w, "  -db           response cache path (empty disables caching)")
	fmt.Fprintln(w, "  -config       YAML config file")
	fmt.Fprintln(w, "  -verbose      debug logging")
}

type runFlags struct {
	configPath  string
	flow        string
	by          string
	key         string
	from        string
	to          string
	commodity   string
	country     string
	district    string
	port        string
	state       string
	hsLevel     int
	concordance string
	referenceIn string
	cleaned     bool
	byYear      bool
	out         string
	label       string
	db          string
	concurrency int
	chunkSize   int
	keepEmpty   bool
	verbose     bool
	logFormat   string
}

func parseRunFlags(args []string, stderr io.Writer) (runFlags, map[string]bool, error) {
	var f runFlags
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.StringVar(&f.flow, "flow", "", "import or export")
	fs.StringVar(&f.by, "by", "", "aggregation dimension: commodity, port or state")
	fs.StringVar(&f.key, "key", "", "Census API key (40 characters)")
	fs.StringVar(&f.from, "from", "", "first year")
	fs.StringVar(&f.to, "to", "", "last year")
	fs.StringVar(&f.commodity, "commodity", "", "HS codes or keywords, ';' separated")
	fs.StringVar(&f.country, "country", "", "country codes or names, ';' separated")
	fs.StringVar(&f.district, "district", "", "district codes or names, ';' separated")
	fs.StringVar(&f.port, "port", "", "port codes or names, ';' separated")
	fs.StringVar(&f.state, "state", "", "state abbreviations or names, ';' separated")
	fs.IntVar(&f.hsLevel, "hs-level", 0, "commodity code length for keyword search (0 = endpoint default)")
	fs.StringVar(&f.concordance, "concordance", "", "commodity concordance workbook (xlsx)")
	fs.StringVar(&f.referenceIn, "reference-dir", "", "directory overriding the built-in reference tables")
	fs.BoolVar(&f.cleaned, "clean", false, "also export a cleaned table")
	fs.BoolVar(&f.byYear, "by-year", false, "write one file per year")
	fs.StringVar(&f.out, "out", "", "output directory")
	fs.StringVar(&f.label, "label", "", "file name prefix")
	fs.StringVar(&f.db, "db", "", "sqlite response cache path")
	fs.IntVar(&f.concurrency, "concurrency", 0, "max in-flight requests")
	fs.IntVar(&f.chunkSize, "chunk-size", 0, "max codes per request and dimension")
	fs.BoolVar(&f.keepEmpty, "keep-empty", false, "write a header-only file when no data is found")
	fs.BoolVar(&f.verbose, "verbose", false, "debug logging")
	fs.StringVar(&f.logFormat, "log-format", "", "text or json")
	if err := fs.Parse(args); err != nil {
		return f, nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

// applyFlags overrides config values with the flags given on the command line.
func applyFlags(cfg *config.Config, f runFlags, set map[string]bool) {
	if set["key"] {
		cfg.API.Key = strings.TrimSpace(f.key)
	}
	if set["out"] {
		cfg.Output.Dir = f.out
	}
	if set["by-year"] {
		cfg.Output.ByYear = f.byYear
	}
	if set["db"] {
		cfg.Cache.Path = f.db
	}
	if set["concurrency"] {
		cfg.Retrieval.Concurrency = f.concurrency
	}
	if set["chunk-size"] {
		cfg.Retrieval.ChunkSize = f.chunkSize
	}
	if set["concordance"] {
		cfg.Reference.Concordance = f.concordance
	}
	if set["reference-dir"] {
		cfg.Reference.Dir = f.referenceIn
	}
	if f.verbose {
		cfg.Log.Level = "debug"
	}
	if set["log-format"] {
		cfg.Log.Format = f.logFormat
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f, set, err := parseRunFlags(args, stderr)
	if err != nil {
		return exitUsage
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return exitUsage
	}
	applyFlags(cfg, f, set)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return exitUsage
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	flow, err := model.ParseFlow(f.flow)
	if err != nil {
		fmt.Fprintln(stderr, "invalid -flow:", err)
		return exitUsage
	}
	dim, err := model.ParseDimension(f.by)
	if err != nil {
		fmt.Fprintln(stderr, "invalid -by:", err)
		return exitUsage
	}

	resolver := query.NewResolver(catalog.New(cfg.API.BaseURL))
	spec, endpoint, err := resolver.Resolve(query.Selection{Flow: flow, Dimension: dim, APIKey: cfg.API.Key})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	periods, err := query.Periods(f.from, f.to)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	tables, err := loadReference(cfg.Reference)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	values := map[model.Dimension][]string{
		model.DimCommodity: parseList(f.commodity),
		model.DimCountry:   parseList(f.country),
		model.DimDistrict:  parseList(f.district),
		model.DimPort:      parseList(f.port),
		model.DimState:     parseList(f.state),
	}
	collector := dimension.NewCollector(tables, logger)
	filters, err := collector.Collect(endpoint.TradeType, endpoint.Dimensions, dimension.Input{Values: values, HSLevel: f.hsLevel})
	if err != nil {
		reportResolveError(stderr, err)
		return exitUsage
	}

	cache, err := openCache(ctx, cfg.Cache, logger)
	if err != nil {
		fmt.Fprintln(stderr, "cache:", err)
		return exitFailure
	}
	defer cache.Close()

	client, err := census.NewWithConfig(census.Config{
		Timeout:         cfg.API.Timeout,
		UserAgent:       cfg.API.UserAgent,
		RateLimitPerSec: cfg.API.RateLimit,
		RateLimitBurst:  cfg.API.Burst,
		MaxRetries:      retriesOrDisabled(cfg.API.MaxRetries),
		CacheTTL:        cfg.Cache.TTL,
	}, cache, logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}

	orchestrator := retrieval.New(client,
		retrieval.WithChunkSize(cfg.Retrieval.ChunkSize),
		retrieval.WithConcurrency(cfg.Retrieval.Concurrency),
		retrieval.WithWildcard(cfg.Retrieval.Wildcard),
		retrieval.WithLogger(logger),
	)

	label := f.label
	if !set["label"] {
		label = defaultLabel(values)
	}

	outcome, err := orchestrator.Retrieve(ctx, spec, periods, filters)
	switch {
	case errors.Is(err, retrieval.ErrNoData):
		fmt.Fprintln(stderr, "no data found for the selected query")
		if f.keepEmpty {
			path, err := export.Export(emptyTable(spec, outcome), spec.TradeType, cfg.Output.Dir, label, false)
			if err != nil {
				fmt.Fprintln(stderr, err)
				return exitFailure
			}
			fmt.Fprintln(stdout, path)
		}
		return exitOK
	case errors.Is(err, retrieval.ErrRetrievalFailed):
		fmt.Fprintln(stderr, err)
		reportFailures(stderr, outcome)
		return exitFailure
	case err != nil:
		fmt.Fprintln(stderr, err)
		return exitFailure
	}

	paths, err := write(outcome.Table, outcome.TradeType, cfg.Output, label, false)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	if f.cleaned {
		cleaned, report, err := clean.Clean(outcome.Table, outcome.TradeType)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitFailure
		}
		logger.WithFields(logrus.Fields{
			"run_id":       outcome.RunID,
			"input":        report.Input,
			"output":       report.Output,
			"placeholder":  report.Placeholder,
			"non_numeric":  report.NonNumeric,
			"shorter_code": report.ShorterCode,
			"duplicates":   report.Duplicates,
		}).Info("table cleaned")
		cleanedPaths, err := write(cleaned, outcome.TradeType, cfg.Output, label, true)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitFailure
		}
		paths = append(paths, cleanedPaths...)
	}
	for _, path := range paths {
		fmt.Fprintln(stdout, path)
	}

	if outcome.Partial() {
		fmt.Fprintf(stderr, "partial result: %d of %d calls failed\n", len(outcome.Failures), outcome.Calls)
		reportFailures(stderr, outcome)
		return exitPartial
	}
	return exitOK
}

// emptyTable returns the no-data table to export. When every call came back
// empty there is no payload header, so the requested variables are used.
func emptyTable(spec model.QuerySpec, outcome *retrieval.Outcome) *model.Table {
	if outcome != nil && outcome.Table != nil && len(outcome.Table.Columns) > 0 {
		return outcome.Table
	}
	columns := parseColumns(spec.Param(catalog.ParamGet))
	return model.NewTable(append(columns, catalog.ParamTime))
}

func parseColumns(value string) []string {
	columns := make([]string, 0)
	for _, column := range strings.Split(value, ",") {
		if column = strings.TrimSpace(column); column != "" {
			columns = append(columns, column)
		}
	}
	return columns
}

func write(table *model.Table, tradeType model.TradeType, out config.OutputConfig, label string, cleaned bool) ([]string, error) {
	if out.ByYear {
		return export.ExportByYear(table, tradeType, out.Dir, label, cleaned)
	}
	path, err := export.Export(table, tradeType, out.Dir, label, cleaned)
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func endpoints(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("endpoints", flag.ContinueOnError)
	fs.SetOutput(stderr)
	baseURL := fs.String("base-url", "", "API base URL")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	for _, endpoint := range catalog.New(*baseURL).Supported() {
		filters := make([]string, 0, len(endpoint.Dimensions))
		for _, spec := range endpoint.Dimensions {
			filters = append(filters, fmt.Sprintf("%s(%s)", spec.Dimension, spec.Param))
		}
		fmt.Fprintf(stdout, "%-9s %s\n", endpoint.TradeType, endpoint.BaseURL)
		fmt.Fprintf(stdout, "          required: %s\n", strings.Join(endpoint.RequiredNames(), ", "))
		fmt.Fprintf(stdout, "          filters:  %s\n", strings.Join(filters, ", "))
	}
	return exitOK
}

func loadReference(cfg config.ReferenceConfig) (*reference.Tables, error) {
	var (
		tables *reference.Tables
		err    error
	)
	if strings.TrimSpace(cfg.Dir) != "" {
		tables, err = reference.LoadDir(cfg.Dir)
	} else {
		tables, err = reference.Default()
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Concordance) == "" {
		return tables, nil
	}

	concordance, err := reference.LoadConcordance(cfg.Concordance)
	if err != nil {
		return nil, err
	}
	withConcordance := *tables
	withConcordance.Concordance = concordance
	return &withConcordance, nil
}

func openCache(ctx context.Context, cfg config.CacheConfig, logger logrus.FieldLogger) (store.Cache, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return &store.NopCache{}, nil
	}
	cache, err := sqlite.New(cfg.Path)
	if err != nil {
		return nil, err
	}
	if cfg.TTL > 0 {
		removed, err := cache.Purge(ctx, cfg.TTL)
		if err != nil {
			logger.WithError(err).Warn("cache purge failed")
		} else if removed > 0 {
			logger.WithField("removed", removed).Debug("purged expired cache entries")
		}
	}
	return cache, nil
}

// retriesOrDisabled maps a configured zero to the client's "no retry" value,
// since the client treats zero as "use the default".
func retriesOrDisabled(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

func reportResolveError(w io.Writer, err error) {
	fmt.Fprintln(w, err)
	var resolveErr *dimension.ResolveError
	if !errors.As(err, &resolveErr) || len(resolveErr.Candidates) == 0 {
		return
	}
	fmt.Fprintf(w, "%q matches more than one %s; pass one of these codes instead:\n", resolveErr.Input, resolveErr.Dimension)
	for _, candidate := range resolveErr.Candidates {
		fmt.Fprintf(w, "  %s  %s\n", candidate.Code, candidate.Name)
	}
}

func reportFailures(w io.Writer, outcome *retrieval.Outcome) {
	if outcome == nil {
		return
	}
	for _, failure := range outcome.Failures {
		fmt.Fprintf(w, "  call %d year=%s status=%d: %v\n", failure.Index, failure.Period, failure.Status, failure.Err)
		fmt.Fprintf(w, "    params: %s\n", census.RedactKey(failure.Params).Encode())
	}
}

// parseList splits a ';' separated flag value. Names such as "BALTIMORE, MD"
// contain commas.
func parseList(value string) []string {
	raw := strings.Split(value, ";")
	items := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		items = append(items, trimmed)
	}
	return items
}

func defaultLabel(values map[model.Dimension][]string) string {
	parts := make([]string, 0, 3)
	for _, dim := range []model.Dimension{model.DimCommodity, model.DimCountry, model.DimDistrict, model.DimPort, model.DimState} {
		if items := values[dim]; len(items) > 0 {
			parts = append(parts, items[0])
		}
	}
	return strings.Join(parts, "_")
}
