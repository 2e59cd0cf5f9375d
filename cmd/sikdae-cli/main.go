// Command sikdae-cli analyzes one card statement file and prints the lunch
// and dinner excess rankings.
//
//	sikdae-cli [-label L] [-sheet S] [-json] [-zip out.zip] <statement.xlsx|statement.csv>
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"sikdae/internal/cli"
	"sikdae/internal/config"
	"sikdae/internal/core"
	"sikdae/internal/export"
	applog "sikdae/internal/log"
	"sikdae/internal/sheets"
	"sikdae/internal/sheets/upload"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	label   string
	sheet   string
	asJSON  bool
	zipPath string
	file    string
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("sikdae-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.label, "label", "", "report label, e.g. 2024-05")
	fs.StringVar(&o.sheet, "sheet", "", "xlsx worksheet to read (default: first sheet)")
	fs.BoolVar(&o.asJSON, "json", false, "print the report as JSON")
	fs.StringVar(&o.zipPath, "zip", "", "also write the CSV export archive to this path")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: sikdae-cli [-label L] [-sheet S] [-json] [-zip out.zip] <statement.xlsx|statement.csv>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return o, errors.New("expected exactly one statement file")
	}
	o.file = fs.Arg(0)
	return o, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		return 2
	}

	cli.LoadEnvFile()
	cfg := config.Load()
	logger := applog.New(cli.LoggerConfig(cfg, applog.ComponentApp, stderr))

	policy := cfg.Policy()
	if err := policy.Validate(); err != nil {
		logger.Error("Invalid meal policy", applog.FieldError, err.Error())
		return 1
	}

	records, stats, err := readStatement(opts.file, opts.sheet)
	if err != nil {
		logger.Error("Failed to read statement", applog.FieldError, err.Error(), "file", opts.file)
		return 1
	}
	report := core.Analyze(records, policy)

	if opts.asJSON {
		err = writeJSON(stdout, opts, stats, report)
	} else {
		err = writeTables(stdout, opts, stats, report, policy)
	}
	if err != nil {
		logger.Error("Failed to write report", applog.FieldError, err.Error())
		return 1
	}

	if opts.zipPath != "" {
		if err := writeZipFile(opts.zipPath, report); err != nil {
			logger.Error("Failed to write export", applog.FieldError, err.Error(), "path", opts.zipPath)
			return 1
		}
		logger.Info("Export written", "path", opts.zipPath)
	}
	return 0
}

func readStatement(path, sheet string) ([]core.ExpenseRecord, sheets.IngestStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sheets.IngestStats{}, fmt.Errorf("open statement: %w", err)
	}
	defer f.Close()
	return upload.ParseSheet(filepath.Base(path), f, sheet)
}

type jsonRank struct {
	Rank   int    `json:"rank"`
	User   string `json:"user"`
	Excess int64  `json:"excess"`
}

type jsonClass struct {
	Rows        int        `json:"rows"`
	TotalExcess int64      `json:"total_excess"`
	Ranking     []jsonRank `json:"ranking"`
}

type jsonReport struct {
	Label  string             `json:"label,omitempty"`
	File   string             `json:"file"`
	Ingest sheets.IngestStats `json:"ingest"`
	Lunch  jsonClass          `json:"lunch"`
	Dinner jsonClass          `json:"dinner"`
}

func toJSONClass(c core.ClassResult) jsonClass {
	out := jsonClass{Rows: c.Rows, TotalExcess: c.TotalExcess(), Ranking: make([]jsonRank, 0, len(c.Excess))}
	for i, e := range c.Excess {
		out.Ranking = append(out.Ranking, jsonRank{Rank: i + 1, User: e.User, Excess: e.Excess})
	}
	return out
}

func writeJSON(w io.Writer, opts options, stats sheets.IngestStats, report core.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{
		Label:  opts.label,
		File:   filepath.Base(opts.file),
		Ingest: stats,
		Lunch:  toJSONClass(report.Lunch),
		Dinner: toJSONClass(report.Dinner),
	})
}

func writeTables(w io.Writer, opts options, stats sheets.IngestStats, report core.Report, policy core.Policy) error {
	title := filepath.Base(opts.file)
	if opts.label != "" {
		title = opts.label + " (" + title + ")"
	}
	fmt.Fprintf(w, "%s\n", title)
	fmt.Fprintf(w, "rows read %d, accepted %d, skipped %d, daily cap %s\n",
		stats.Read, stats.Accepted, stats.Skipped, core.FormatWon(int64(math.Round(policy.DailyCap))))

	for _, c := range []core.ClassResult{report.Lunch, report.Dinner} {
		fmt.Fprintf(w, "\n[%s] %d rows, %d users over the cap, total %s\n",
			c.Class, c.Rows, len(c.Excess), core.FormatWon(c.TotalExcess()))
		if len(c.Excess) == 0 {
			continue
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "순위\t사용자\t초과금액\t")
		for i, e := range c.Excess {
			fmt.Fprintf(tw, "%d\t%s\t%s\t\n", i+1, e.User, core.FormatWon(e.Excess))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func writeZipFile(path string, report core.Report) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close export: %w", cerr)
		}
	}()
	return export.WriteZip(f, report, time.Now())
}
