package main

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hejijunhao/statusreport/internal/config"
	"github.com/hejijunhao/statusreport/internal/engine/compactor"
	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/logging"
	"github.com/hejijunhao/statusreport/internal/metrics"
	"github.com/hejijunhao/statusreport/internal/output"
	"github.com/hejijunhao/statusreport/internal/output/file"
	"github.com/hejijunhao/statusreport/internal/output/multi"
	"github.com/hejijunhao/statusreport/internal/output/stdout"
	"github.com/hejijunhao/statusreport/internal/output/webhook"
	"github.com/hejijunhao/statusreport/internal/pipeline"
	"github.com/hejijunhao/statusreport/internal/store"
)

const dateLayout = "2006-01-02"

var generateFlags struct {
	company    string
	url        string
	companies  string
	start      string
	end        string
	months     int
	skipAI     bool
	provider   string
	summary    bool
	metricsOut string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Fetch, classify and analyze a company's incident history",
	Example: "  statusreport generate --company Acme --url https://status.acme.com --months 6\n" +
		"  statusreport generate --companies companies.yaml --store state.db --format file --output reports.jsonl",
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&generateFlags.company, "company", "", "target company name")
	f.StringVar(&generateFlags.url, "url", "", "target status page URL")
	f.StringVar(&generateFlags.companies, "companies", "", "YAML file with target and peers")
	f.StringVar(&generateFlags.start, "start", "", "range start (YYYY-MM-DD, default: --months before --end)")
	f.StringVar(&generateFlags.end, "end", "", "range end (YYYY-MM-DD, default: today)")
	f.IntVar(&generateFlags.months, "months", 6, "range length when --start is empty")
	f.BoolVar(&generateFlags.skipAI, "skip-ai", false, "classify with the keyword library only")
	f.StringVar(&generateFlags.provider, "provider", "", "AI provider for this run (default: ai.provider)")
	f.BoolVar(&generateFlags.summary, "summary", true, "print a summary table on stderr")
	f.StringVar(&generateFlags.metricsOut, "metrics-out", "", "write run metrics in Prometheus text format to this file")

	f.String("vendor", "auto", "adapter plan: auto, statuspage or generic")
	f.String("format", "stdout", "report sink: stdout, file, both or none")
	f.String("output", "", "report file for --format file or both")
	f.Bool("pretty", false, "indent JSON on stdout")
	f.String("verbosity", "standard", "minimal, standard or full")
	f.String("webhook", "", "POST a run summary to this URL")

	_ = v.BindPFlag("fetch.vendor", f.Lookup("vendor"))
	_ = v.BindPFlag("output.format", f.Lookup("format"))
	_ = v.BindPFlag("output.path", f.Lookup("output"))
	_ = v.BindPFlag("output.pretty", f.Lookup("pretty"))
	_ = v.BindPFlag("engine.verbosity", f.Lookup("verbosity"))
	_ = v.BindPFlag("output.webhook_url", f.Lookup("webhook"))
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	req, err := buildRequest()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	out, err := openOutput(cfg)
	if err != nil {
		st.Close()
		return err
	}

	reg := prometheus.NewRegistry()
	p := pipeline.New(pipeline.FromConfig(cfg), st, out,
		pipeline.WithLogger(logging.New("pipeline")),
		pipeline.WithMetrics(metrics.New(reg)),
	)
	defer p.Close()

	bundle, err := p.GenerateReport(cmd.Context(), req)
	if generateFlags.metricsOut != "" {
		if werr := prometheus.WriteToTextfile(generateFlags.metricsOut, reg); werr != nil {
			logging.New("cli").Warn("writing metrics failed", "path", generateFlags.metricsOut, "err", werr)
		}
	}
	if bundle != nil && generateFlags.summary {
		fmt.Fprintln(cmd.ErrOrStderr(), renderSummary(bundle))
	}
	return err
}

// buildRequest reads the target and peers from flags or a companies file.
func buildRequest() (pipeline.Request, error) {
	req := pipeline.Request{
		Company:  generateFlags.company,
		URL:      generateFlags.url,
		SkipAI:   generateFlags.skipAI,
		Provider: generateFlags.provider,
	}
	if generateFlags.companies != "" {
		cs, err := config.LoadCompanies(generateFlags.companies)
		if err != nil {
			return req, err
		}
		if req.Company == "" {
			req.Company, req.URL = cs.Target.Name, cs.Target.URL
		}
		for _, peer := range cs.Peers {
			req.Peers = append(req.Peers, pipeline.Peer{Name: peer.Name, URL: peer.URL})
		}
	}

	start, end, err := dateRange(generateFlags.start, generateFlags.end, generateFlags.months, time.Now())
	if err != nil {
		return req, err
	}
	req.Start, req.End = start, end
	return req, nil
}

// dateRange resolves the flag values to a UTC range. end is inclusive to
// the last second of its day.
func dateRange(startFlag, endFlag string, months int, now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, time.UTC)
	if endFlag != "" {
		t, err := time.Parse(dateLayout, endFlag)
		if err != nil {
			return time.Time{}, time.Time{}, errs.Configf("--end: %v", err)
		}
		end = t.Add(24*time.Hour - time.Second)
	}
	if startFlag != "" {
		t, err := time.Parse(dateLayout, startFlag)
		if err != nil {
			return time.Time{}, time.Time{}, errs.Configf("--start: %v", err)
		}
		return t, end, nil
	}
	if months <= 0 {
		return time.Time{}, time.Time{}, errs.Configf("--months must be positive")
	}
	day := end.AddDate(0, -months, 0)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC), end, nil
}

func openStore(c config.Config) (store.Store, error) {
	if c.Store.Path == "" {
		return store.NewMemory(), nil
	}
	return store.OpenSQLite(c.Store.Path)
}

// openOutput builds the sinks named by the output settings.
func openOutput(c config.Config) (output.Output, error) {
	verbosity, err := compactor.ParseVerbosity(c.Engine.Verbosity)
	if err != nil {
		return nil, errs.Configf("%v", err)
	}
	var outs []output.Output
	if c.Output.Format == "stdout" || c.Output.Format == "both" {
		outs = append(outs, stdout.New(verbosity, c.Output.Pretty))
	}
	if c.Output.Format == "file" || c.Output.Format == "both" {
		f, err := file.New(c.Output.Path, verbosity,
			file.WithMaxSize(c.Output.MaxSize), file.WithKeep(c.Output.Keep))
		if err != nil {
			return nil, err
		}
		outs = append(outs, f)
	}
	if c.Output.WebhookURL != "" {
		outs = append(outs, webhook.New(c.Output.WebhookURL, webhook.WithToken(c.Output.WebhookToken)))
	}
	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		return outs[0], nil
	default:
		return multi.New(outs...), nil
	}
}
