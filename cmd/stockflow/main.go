package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/stockflow/internal/analysis"
	"github.com/san-kum/stockflow/internal/automation"
	"github.com/san-kum/stockflow/internal/config"
	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/experiment"
	"github.com/san-kum/stockflow/internal/export"
	"github.com/san-kum/stockflow/internal/logging"
	"github.com/san-kum/stockflow/internal/metrics"
	"github.com/san-kum/stockflow/internal/model"
	"github.com/san-kum/stockflow/internal/optim"
	"github.com/san-kum/stockflow/internal/sim"
	"github.com/san-kum/stockflow/internal/storage"
	"github.com/san-kum/stockflow/internal/tui"
	"github.com/san-kum/stockflow/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	logLevel   string
	logFormat  string
	theme      string

	algorithm string
	dt        float64
	duration  float64
	seed      uint64

	series    []string
	rows      int
	noSave    bool
	live      bool
	frameRate int

	runs      int
	firstSeed uint64
	parallel  int

	params    []string
	metric    string
	objective string
	maximize  bool

	output string
	width  int
	height int

	phaseX       string
	phaseY       string
	sectionOf    string
	sectionLevel float64

	logger = zap.NewNop()
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "stockflow",
		Short:         "system dynamics and agent based simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			viz.SetTheme(theme)
			// the stepper owns the terminal
			if cmd.Name() == "step" {
				return nil
			}
			l, err := logging.New(logLevel, logFormat)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", config.DefaultLogFormat, "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", viz.ThemeCyberpunk.Name, "color theme ("+strings.Join(viz.ThemeNames(), ", ")+")")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run a sample model or model file and store the results",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addModelFlags(runCmd)
	runCmd.Flags().StringSliceVar(&series, "series", nil, "primitives to show (default all)")
	runCmd.Flags().IntVar(&rows, "rows", 11, "rows of the results table")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().BoolVar(&live, "live", false, "redraw values while running")
	runCmd.Flags().IntVar(&frameRate, "fps", 20, "frame rate of --live")

	stepCmd := &cobra.Command{
		Use:   "step [model]",
		Short: "step a model interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE:  stepSimulation,
	}
	addModelFlags(stepCmd)
	stepCmd.Flags().StringSliceVar(&series, "series", nil, "primitives to watch (default all)")

	ensembleCmd := &cobra.Command{
		Use:   "ensemble [model]",
		Short: "run a model over consecutive seeds and summarize the spread",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEnsemble,
	}
	addModelFlags(ensembleCmd)
	ensembleCmd.Flags().IntVar(&runs, "runs", config.DefaultRuns, "number of runs")
	ensembleCmd.Flags().Uint64Var(&firstSeed, "first-seed", 1, "seed of the first run")
	ensembleCmd.Flags().IntVar(&parallel, "parallel", 0, "runs in flight (default number of CPUs)")
	ensembleCmd.Flags().StringSliceVar(&series, "series", nil, "primitives to summarize (default all numeric)")

	checkCmd := &cobra.Command{
		Use:   "check [model]",
		Short: "compile a model and report the first error",
		Args:  cobra.MaximumNArgs(1),
		RunE:  checkModel,
	}
	addModelFlags(checkCmd)

	mapCmd := &cobra.Command{
		Use:   "map [model]",
		Short: "run a model and draw its agent populations",
		Args:  cobra.MaximumNArgs(1),
		RunE:  mapAgents,
	}
	addModelFlags(mapCmd)
	mapCmd.Flags().IntVar(&width, "width", 60, "map width in characters")
	mapCmd.Flags().StringVarP(&output, "output", "o", "", "also write the map as SVG")

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "grid search parameters against a metric of a series",
		Long: `Runs the model once per combination of parameter values. Parameters are
top-level primitives given as name=lo:hi:step or name=v1,v2,...`,
		Args: cobra.MaximumNArgs(1),
		RunE: sweepModel,
	}
	addModelFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVarP(&params, "param", "p", nil, "parameter range (repeatable)")
	sweepCmd.Flags().StringVar(&objective, "objective", "", "series to score")
	sweepCmd.Flags().StringVar(&metric, "metric", "final", "metric ("+strings.Join(metrics.Names(), ", ")+")")
	sweepCmd.Flags().BoolVar(&maximize, "maximize", false, "maximize instead of minimize")
	_ = sweepCmd.MarkFlagRequired("objective")
	_ = sweepCmd.MarkFlagRequired("param")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot stored series",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&series, "series", nil, "primitives to plot (default first six)")
	plotCmd.Flags().IntVar(&height, "height", 12, "plot height")
	plotCmd.Flags().IntVar(&width, "width", 80, "plot width")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "write the stored series as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "write the metadata and series of a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "draw stored series as an SVG chart",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringSliceVar(&series, "series", nil, "primitives to draw (default first six)")
	exportSVGCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	exportSVGCmd.Flags().IntVar(&width, "width", 800, "image width")
	exportSVGCmd.Flags().IntVar(&height, "height", 400, "image height")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "draw one stored series against another",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePortrait,
	}
	phaseCmd.Flags().StringVar(&phaseX, "x", "", "series on the horizontal axis")
	phaseCmd.Flags().StringVar(&phaseY, "y", "", "series on the vertical axis")
	phaseCmd.Flags().StringVar(&sectionOf, "section", "", "only mark points where this series crosses --level upward")
	phaseCmd.Flags().Float64Var(&sectionLevel, "level", 0, "crossing level of --section")
	phaseCmd.Flags().IntVar(&width, "width", 60, "portrait width")
	phaseCmd.Flags().IntVar(&height, "height", 20, "portrait height")
	_ = phaseCmd.MarkFlagRequired("x")
	_ = phaseCmd.MarkFlagRequired("y")

	batchCmd := &cobra.Command{
		Use:   "batch [scenario.yaml]",
		Short: "run every step of a scenario file and store the results",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().StringVar(&configFile, "config", "", "base config file path (yaml)")

	deleteCmd := &cobra.Command{
		Use:   "delete [run_id]",
		Short: "delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list sample models and their presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	rootCmd.AddCommand(runCmd, stepCmd, ensembleCmd, checkCmd, mapCmd, sweepCmd, listCmd, plotCmd,
		phaseCmd, batchCmd, exportCSVCmd, exportJSONCmd, exportSVGCmd, deleteCmd, presetsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "override the algorithm (euler, rk4)")
	cmd.Flags().Float64Var(&dt, "dt", 0, "override the time step")
	cmd.Flags().Float64Var(&duration, "time", 0, "override the time length")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed")
}

// loadConfig layers defaults, the config file, the preset and the flags, in
// that order.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if len(args) > 0 {
		cfg.Model = args[0]
	}
	if preset != "" {
		p := config.GetPreset(cfg.Model, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(cfg.Model))
		}
		cfg.Apply(p)
	}

	flags := cmd.Flags()
	if flags.Changed("algorithm") {
		cfg.Algorithm = algorithm
	}
	if flags.Changed("dt") {
		cfg.TimeStep = dt
	}
	if flags.Changed("time") {
		cfg.TimeLength = duration
	}
	if flags.Changed("seed") {
		s := seed
		cfg.Seed = &s
	}
	if cmd.Root().PersistentFlags().Changed("data") || cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if flags.Lookup("runs") != nil {
		if flags.Changed("runs") || cfg.Ensemble.Runs <= 0 {
			cfg.Ensemble.Runs = runs
		}
		if flags.Changed("first-seed") {
			cfg.Ensemble.FirstSeed = firstSeed
		}
		if flags.Changed("parallel") {
			cfg.Ensemble.Parallel = parallel
		}
	}
	return cfg, nil
}

func setup(cmd *cobra.Command, args []string) (*config.Config, *experiment.Experiment, error) {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return nil, nil, err
	}
	exp := experiment.New(cfg, logger)
	if err := exp.Setup(); err != nil {
		return nil, nil, err
	}
	return cfg, exp, nil
}

func modelName(exp *experiment.Experiment, cfg *config.Config) string {
	if name := exp.Model().Name; name != "" {
		return name
	}
	return cfg.Model
}

// resolveIDs maps primitive ids or names to recorded ids.
func resolveIDs(names map[string]string, order []string, wanted []string) ([]string, error) {
	var out []string
	for _, w := range wanted {
		if _, ok := names[w]; ok {
			out = append(out, w)
			continue
		}
		found := false
		for _, id := range order {
			if strings.EqualFold(names[id], w) {
				out = append(out, id)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no recorded primitive %q", w)
		}
	}
	return out, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, exp, err := setup(cmd, args)
	if err != nil {
		return err
	}
	name := modelName(exp, cfg)

	var res *sim.Results
	if live {
		res, err = tui.Watch(cmd.Context(), os.Stdout, name, exp.Simulation(), nil, frameRate)
	} else {
		fmt.Printf("running %s...\n", name)
		res, err = exp.Run(cmd.Context())
	}
	if err != nil {
		return err
	}

	ids, err := resolveIDs(res.Names, res.IDs(), series)
	if err != nil {
		return err
	}
	fmt.Println(viz.ResultsTable(res, ids, rows))

	if noSave {
		return nil
	}
	st := storage.New(cfg.DataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(exp.Metadata(), res)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func stepSimulation(cmd *cobra.Command, args []string) error {
	cfg, exp, err := setup(cmd, args)
	if err != nil {
		return err
	}
	var ids []string
	if len(series) > 0 {
		run, err := exp.Simulation().Start()
		if err != nil {
			return err
		}
		if ids, err = resolveIDs(run.Results().Names, run.Results().IDs(), series); err != nil {
			return err
		}
	}
	return tui.RunStepper(modelName(exp, cfg), exp.Simulation(), ids)
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	cfg, exp, err := setup(cmd, args)
	if err != nil {
		return err
	}
	fmt.Printf("running %d seeds of %s...\n", cfg.Ensemble.Runs, modelName(exp, cfg))
	ens, err := exp.Ensemble(cmd.Context())
	if err != nil {
		return err
	}
	if len(ens.Members) == 0 {
		return fmt.Errorf("no runs")
	}

	first := ens.Members[0].Results
	ids, err := resolveIDs(first.Names, first.IDs(), series)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		for _, id := range first.IDs() {
			if _, ok := first.Last(id).(float64); ok {
				ids = append(ids, id)
			}
		}
	}

	for _, id := range ids {
		band := ens.Band(id)
		n := len(band.Times) - 1
		if n < 0 {
			continue
		}
		graph, err := viz.Plot([]viz.Line{
			{Name: "mean", Values: band.Mean},
			{Name: "min", Values: band.Min},
			{Name: "max", Values: band.Max},
		}, viz.PlotOptions{Caption: first.Names[id]})
		if err != nil {
			continue
		}
		fmt.Println(graph)
		fmt.Printf("  final %s: %s ± %s (min %s, max %s)\n\n",
			first.Names[id], viz.FormatValue(band.Mean[n]), viz.FormatValue(band.StdDev[n]),
			viz.FormatValue(band.Min[n]), viz.FormatValue(band.Max[n]))
	}
	return nil
}

func checkModel(cmd *cobra.Command, args []string) error {
	_, exp, err := setup(cmd, args)
	if err != nil {
		if p := dynamo.PayloadOf(err); p != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(p)
		}
		return err
	}
	ts := exp.Simulation().TimeSettings()
	fmt.Printf("ok: %d primitives, %g %s in steps of %g (%s)\n",
		len(exp.Model().Primitives), ts.Length, ts.Units, ts.Step, ts.Algorithm)
	return nil
}

func mapAgents(cmd *cobra.Command, args []string) error {
	_, exp, err := setup(cmd, args)
	if err != nil {
		return err
	}
	run, err := exp.Simulation().Start()
	if err != nil {
		return err
	}
	for run.Phase() != dynamo.Finished {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		if err := run.Step(); err != nil {
			return err
		}
	}

	drawn := 0
	for _, p := range exp.Model().Primitives {
		if p.Kind != model.Agents || p.Parent != "" {
			continue
		}
		agents, err := run.Agents(p.ID)
		if err != nil {
			return err
		}
		w, h := p.Width, p.Height
		if w <= 0 || h <= 0 {
			w, h = 200, 100
		}
		cols := max(width, 10)
		rowCount := max(int(float64(cols)*h/w/2), 4)
		fmt.Println(viz.Title.Render(p.Label()) + viz.Subtle.Render(fmt.Sprintf("  t=%g", run.Time())))
		fmt.Println(viz.AgentMap(agents, w, h, cols, rowCount))

		if output != "" && drawn == 0 {
			svg := export.CanvasToSVG(viz.AgentCanvas(agents, w, h, cols, rowCount), 4)
			if err := os.WriteFile(output, []byte(svg), 0644); err != nil {
				return err
			}
			fmt.Printf("saved to %s\n", output)
		}
		drawn++
	}
	if drawn == 0 {
		return fmt.Errorf("model has no agent populations")
	}
	return nil
}

// parseParam reads name=lo:hi:step or name=v1,v2,...
func parseParam(s string) (string, []float64, error) {
	name, raw, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", nil, fmt.Errorf("parameter %q: want name=lo:hi:step or name=v1,v2", s)
	}
	if parts := strings.Split(raw, ":"); len(parts) == 3 {
		var bounds [3]float64
		for i, p := range parts {
			x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return "", nil, fmt.Errorf("parameter %q: %w", s, err)
			}
			bounds[i] = x
		}
		vals, err := optim.Range(bounds[0], bounds[1], bounds[2])
		return name, vals, err
	}
	var vals []float64
	for _, p := range strings.Split(raw, ",") {
		x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return "", nil, fmt.Errorf("parameter %q: %w", s, err)
		}
		vals = append(vals, x)
	}
	return name, vals, nil
}

func sweepModel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	base, err := cfg.LoadModel()
	if err != nil {
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	var names []string
	var ranges [][]float64
	for _, p := range params {
		name, vals, err := parseParam(p)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, vals)
	}

	g := optim.NewGridSearch(names, ranges, append(opts, sim.WithLogger(logger))...)
	best, val, trials, err := g.Search(cmd.Context(), base, optim.Objective{Series: objective, Metric: metric, Maximize: maximize})
	for _, tr := range trials {
		var parts []string
		for _, n := range names {
			parts = append(parts, fmt.Sprintf("%s=%g", n, tr.Params[n]))
		}
		if tr.Err != nil {
			fmt.Printf("  %s  %s\n", strings.Join(parts, " "), viz.StatusFailed.Render(tr.Err.Error()))
			continue
		}
		fmt.Printf("  %s  %s\n", strings.Join(parts, " "), viz.FormatValue(tr.Value))
	}
	if err != nil {
		return err
	}

	var parts []string
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s=%g", n, best[n]))
	}
	fmt.Printf("\nbest: %s  %s of %s = %s\n", strings.Join(parts, " "), metric, objective, viz.FormatValue(val))
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	fmt.Println(viz.RunsTable(runs))
	return nil
}

func loadRun(id string) (*storage.RunMetadata, *storage.Series, error) {
	st := storage.New(dataDir)
	runID, err := st.Resolve(id)
	if err != nil {
		return nil, nil, err
	}
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	data, err := st.LoadSeries(runID)
	if err != nil {
		return nil, nil, err
	}
	return meta, data, nil
}

// storedLines picks the series to draw, at most six by default.
func storedLines(meta *storage.RunMetadata, data *storage.Series) ([]viz.Line, error) {
	ids, err := resolveIDs(meta.Names, data.Columns, series)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids = data.Columns
		if len(ids) > 6 {
			ids = ids[:6]
		}
	}
	lines := make([]viz.Line, len(ids))
	for i, id := range ids {
		lines[i] = viz.Line{Name: meta.Names[id], Values: data.Values[id]}
	}
	return lines, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, data, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if len(data.Times) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d\n\n", len(data.Times))

	lines, err := storedLines(meta, data)
	if err != nil {
		return err
	}
	caption := fmt.Sprintf("%g to %g %s", data.Times[0], data.Times[len(data.Times)-1], meta.TimeUnits)
	graph, err := viz.Plot(lines, viz.PlotOptions{Height: height, Width: width, Caption: caption})
	if err != nil {
		return err
	}
	fmt.Println(graph)
	return nil
}

func phasePortrait(cmd *cobra.Command, args []string) error {
	meta, data, err := loadRun(args[0])
	if err != nil {
		return err
	}
	wanted := []string{phaseX, phaseY}
	if sectionOf != "" {
		wanted = append(wanted, sectionOf)
	}
	ids, err := resolveIDs(meta.Names, data.Columns, wanted)
	if err != nil {
		return err
	}
	xs, ys := data.Values[ids[0]], data.Values[ids[1]]

	var p *analysis.PhasePortrait2D
	if sectionOf != "" {
		p = analysis.NewSection(xs, ys, data.Values[ids[2]], sectionLevel)
	} else {
		p = analysis.NewPhasePortrait(xs, ys)
	}
	if len(p.Points) == 0 {
		return fmt.Errorf("no points to draw")
	}

	minX, maxX, minY, maxY := p.Bounds()
	fmt.Println(viz.Title.Render(fmt.Sprintf("%s vs %s", meta.Names[ids[1]], meta.Names[ids[0]])))
	fmt.Print(viz.Panel.Render(p.ToASCII(width, height)))
	fmt.Println()
	fmt.Println(viz.Subtle.Render(fmt.Sprintf("x %.4g..%.4g  y %.4g..%.4g  %d points",
		minX, maxX, minY, maxY, len(p.Points))))
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	base, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	st := storage.New(base.DataDir)
	if err := st.Init(); err != nil {
		return err
	}

	results, err := automation.RunScenario(cmd.Context(), scenario, base, st, logger)
	metas := make([]storage.RunMetadata, len(results))
	for i, r := range results {
		metas[i] = r.Meta
	}
	if len(metas) > 0 {
		fmt.Println(viz.RunsTable(metas))
	}
	return err
}

func outputWriter() (io.WriteCloser, error) {
	if output == "" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(output)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runID, err := st.Resolve(args[0])
	if err != nil {
		return err
	}
	in, err := st.OpenSeries(runID)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := outputWriter()
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	return errors.Join(err, out.Close())
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, data, err := loadRun(args[0])
	if err != nil {
		return err
	}
	out, err := outputWriter()
	if err != nil {
		return err
	}

	// NaN has no JSON form
	values := make(map[string][]*float64, len(data.Values))
	for id, xs := range data.Values {
		col := make([]*float64, len(xs))
		for i := range xs {
			if xs[i] == xs[i] {
				col[i] = &xs[i]
			}
		}
		values[id] = col
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	err = enc.Encode(struct {
		*storage.RunMetadata
		Times  []float64             `json:"times"`
		Series map[string][]*float64 `json:"series"`
	}{meta, data.Times, values})
	return errors.Join(err, out.Close())
}

func exportSVG(cmd *cobra.Command, args []string) error {
	meta, data, err := loadRun(args[0])
	if err != nil {
		return err
	}
	lines, err := storedLines(meta, data)
	if err != nil {
		return err
	}
	svg, err := export.SeriesToSVG(data.Times, lines, width, height)
	if err != nil {
		return err
	}
	out, err := outputWriter()
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, svg)
	return errors.Join(err, out.Close())
}

func deleteRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runID, err := st.Resolve(args[0])
	if err != nil {
		return err
	}
	if err := st.Delete(runID); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", runID)
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	names := config.SampleNames()
	if len(args) > 0 {
		if _, ok := config.Samples[args[0]]; !ok {
			return fmt.Errorf("unknown sample model: %s (available: %v)", args[0], names)
		}
		names = args
	}
	for _, name := range names {
		m := config.Samples[name]()
		fmt.Printf("%s %s\n", viz.Title.Render(name), viz.Subtle.Render(m.Name))
		for _, p := range config.ListPresets(name) {
			cfg := config.GetPreset(name, p)
			var parts []string
			if cfg.Algorithm != "" {
				parts = append(parts, "algorithm="+cfg.Algorithm)
			}
			if cfg.TimeStep > 0 {
				parts = append(parts, fmt.Sprintf("dt=%g", cfg.TimeStep))
			}
			if cfg.TimeLength > 0 {
				parts = append(parts, fmt.Sprintf("time=%g", cfg.TimeLength))
			}
			if cfg.Seed != nil {
				parts = append(parts, fmt.Sprintf("seed=%d", *cfg.Seed))
			}
			fmt.Printf("  %-10s %s\n", p, strings.Join(parts, " "))
		}
	}
	return nil
}
