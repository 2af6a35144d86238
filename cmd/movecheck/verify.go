package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"movecheck/internal/binary"
	"movecheck/internal/bundle"
	"movecheck/internal/config"
	"movecheck/internal/verifier"
	"movecheck/internal/vmerr"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <bundle>...",
	Short: "Verify every module and script of the given bundles",
	Long: `Verify loads the bundles, checks their modules in import order against the
dependency bundles and each other, then checks their scripts.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringSlice("deps", nil, "dependency bundles, added to [dependencies].bundles")
	verifyCmd.Flags().Int("jobs", 0, "max parallel units (0 = config or GOMAXPROCS)")
	verifyCmd.Flags().Uint64("max-value-depth", 0, "maximum value depth at link time (0 = config)")
	verifyCmd.Flags().Bool("no-depth", false, "skip the link-time depth check")
	verifyCmd.Flags().String("ui", "auto", "progress view (auto|on|off)")
	verifyCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	if path != "" {
		return config.Load(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return config.Config{}, err
	}
	return config.Discover(wd)
}

// verifyOptions merges the config with the command flags.
func verifyOptions(cmd *cobra.Command, cfg config.Config) (verifier.Options, []string, error) {
	opts := verifier.Options{
		Jobs:                cfg.Verifier.Jobs,
		MaxValueDepth:       cfg.Verifier.MaxValueDepth,
		CheckDepthAtLink:    cfg.Verifier.CheckDepthAtLink,
		GasBudget:           cfg.Gas.Budget,
		StructLoadCost:      cfg.Gas.StructLoadCost,
		MaxTraversalModules: cfg.Traversal.MaxModules,
	}
	flags := cmd.Flags()
	if flags.Changed("jobs") {
		jobs, err := flags.GetInt("jobs")
		if err != nil {
			return opts, nil, err
		}
		opts.Jobs = jobs
	}
	if flags.Changed("max-value-depth") {
		depth, err := flags.GetUint64("max-value-depth")
		if err != nil {
			return opts, nil, err
		}
		opts.MaxValueDepth = depth
	}
	noDepth, err := flags.GetBool("no-depth")
	if err != nil {
		return opts, nil, err
	}
	if noDepth {
		opts.CheckDepthAtLink = false
	}
	deps, err := flags.GetStringSlice("deps")
	if err != nil {
		return opts, nil, err
	}
	return opts, append(append([]string(nil), cfg.Dependencies.Bundles...), deps...), nil
}

// readBundles merges the bundles at paths into one.
func readBundles(paths []string) (*bundle.Bundle, error) {
	merged := bundle.New()
	for _, path := range paths {
		b, err := bundle.Read(path)
		if err != nil {
			return nil, err
		}
		merged.Modules = append(merged.Modules, b.Modules...)
		merged.Scripts = append(merged.Scripts, b.Scripts...)
	}
	return merged, nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, depPaths, err := verifyOptions(cmd, cfg)
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	format = strings.ToLower(format)
	if format != "pretty" && format != "json" {
		return fmt.Errorf("invalid --format value %q (expected pretty|json)", format)
	}
	uiFlag, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	useUI, err := progressEnabled(uiFlag, format)
	if err != nil {
		return err
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return err
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return err
	}

	deps, err := readBundles(depPaths)
	if err != nil {
		return fmt.Errorf("dependencies: %w", err)
	}
	opts.Dependencies = deps.Modules
	b, err := readBundles(args)
	if err != nil {
		return err
	}

	var report *verifier.Report
	if useUI {
		title := fmt.Sprintf("verifying %s", strings.Join(args, ", "))
		report, err = runVerifyWithUI(cmd.Context(), title, verifier.UnitNames(b), b, opts)
	} else {
		report, err = verifier.VerifyBundle(cmd.Context(), b, opts)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		err = writeJSONReport(out, report)
	default:
		writePrettyReport(out, report, quiet)
		if showTimings {
			fmt.Fprint(out, report.Timings.Summary())
		}
	}
	if err != nil {
		return err
	}
	if report.Failed() > 0 {
		return errUnitsFailed
	}
	return nil
}

func writePrettyReport(w io.Writer, report *verifier.Report, quiet bool) {
	okLabel := color.New(color.FgGreen).Sprint("ok  ")
	failLabel := color.New(color.FgRed, color.Bold).Sprint("FAIL")
	units := make([]verifier.UnitResult, 0, len(report.Modules)+len(report.Scripts))
	units = append(units, report.Modules...)
	units = append(units, report.Scripts...)
	for _, u := range units {
		if u.Err == nil {
			if !quiet {
				fmt.Fprintf(w, "%s %s (%s)\n", okLabel, u.Name, u.Elapsed.Round(time.Microsecond))
			}
			continue
		}
		fmt.Fprintf(w, "%s %s: %v\n", failLabel, u.Name, u.Err)
	}
	failed := report.Failed()
	summary := fmt.Sprintf("%d units verified, %d failed", len(units), failed)
	if failed > 0 {
		summary = color.New(color.FgRed).Sprint(summary)
	}
	fmt.Fprintln(w, summary)
}

type unitPayload struct {
	Kind      string  `json:"kind"`
	Name      string  `json:"name"`
	OK        bool    `json:"ok"`
	Code      string  `json:"code,omitempty"`
	Category  string  `json:"category,omitempty"`
	Location  string  `json:"location,omitempty"`
	Error     string  `json:"error,omitempty"`
	ElapsedMS float64 `json:"elapsed_ms"`
	GasSpent  uint64  `json:"gas_spent,omitempty"`
}

type reportPayload struct {
	Units   []unitPayload         `json:"units"`
	Failed  int                   `json:"failed"`
	Timings verifier.TimingReport `json:"timings"`
	// Published lists the module ids linked into the store, dependencies included.
	Published []string `json:"published"`
}

func writeJSONReport(w io.Writer, report *verifier.Report) error {
	payload := reportPayload{Failed: report.Failed(), Timings: report.Timings.Report()}
	add := func(kind string, u verifier.UnitResult) {
		p := unitPayload{
			Kind:      kind,
			Name:      u.Name,
			OK:        u.Err == nil,
			ElapsedMS: float64(u.Elapsed) / float64(time.Millisecond),
			GasSpent:  u.GasSpent,
		}
		if u.Err != nil {
			code := vmerr.CodeOf(u.Err)
			p.Code = code.String()
			p.Category = code.Category().String()
			p.Error = u.Err.Error()
			if loc, ok := locationOf(u.Err); ok {
				p.Location = loc
			}
		}
		payload.Units = append(payload.Units, p)
	}
	for _, u := range report.Modules {
		add("module", u)
	}
	for _, u := range report.Scripts {
		add("script", u)
	}
	payload.Published = publishedIDs(report.Store.Modules())
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func locationOf(err error) (string, bool) {
	var located *vmerr.Error
	if !errors.As(err, &located) {
		return "", false
	}
	return located.Location.String(), true
}

func publishedIDs(modules []*binary.CompiledModule) []string {
	ids := make([]string, 0, len(modules))
	for _, m := range modules {
		ids = append(ids, m.SelfID().String())
	}
	return ids
}
