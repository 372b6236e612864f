package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Noofbiz/tablefeed/datasets"
	"github.com/Noofbiz/tablefeed/simple"
	"github.com/Noofbiz/tablefeed/tokenizer"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// windowSet holds windows already drawn from the sampler, with token ids
// remapped to a dense range so the bigram table stays small.
type windowSet struct {
	inputs  [][]int64
	targets [][]int64
}

func (w *windowSet) Len() int { return len(w.inputs) }

func (w *windowSet) Example(i int) ([]int64, []int64, error) {
	return w.inputs[i], w.targets[i], nil
}

// draws is every window drawn in one run with the draw statistics the
// report is built from.
type draws struct {
	windows      windowSet
	chunkSizes   []int
	columns      []int
	totalColumns []int
	attempts     []int
}

func (d *draws) add(smp *datasets.Sample, chunkSize int) {
	d.windows.inputs = append(d.windows.inputs, smp.Input)
	d.windows.targets = append(d.windows.targets, smp.Target)
	d.chunkSizes = append(d.chunkSizes, chunkSize)
	d.columns = append(d.columns, smp.Columns)
	d.totalColumns = append(d.totalColumns, smp.TotalColumns)
	d.attempts = append(d.attempts, smp.Attempts)
}

func (d *draws) Len() int { return d.windows.Len() }

// sample draws n windows, logging and skipping failed draws.
func sample(sampler *datasets.ChunkSampler, n int) *draws {
	d := &draws{}
	failures := 0
	start := time.Now()
	for i := range n {
		smp, err := sampler.Sample()
		if err != nil {
			failures++
			log.Printf("warning: sample %d failed: %v", i, err)
			continue
		}
		d.add(smp, sampler.ChunkSize())
	}
	log.Printf("Drew %d windows in %v (%d failed), final chunk size %d",
		d.Len(), time.Since(start), failures, sampler.ChunkSize())
	return d
}

// densify rewrites every id of sets in place to its rank among the distinct
// ids seen and returns how many there were.
func densify(sets ...*windowSet) int {
	dense := map[int64]int64{}
	remap := func(ids []int64) {
		for i, id := range ids {
			d, ok := dense[id]
			if !ok {
				d = int64(len(dense))
				dense[id] = d
			}
			ids[i] = d
		}
	}
	for _, s := range sets {
		for i := range s.inputs {
			remap(s.inputs[i])
			remap(s.targets[i])
		}
	}
	return len(dense)
}

func main() {
	configPath := flag.String("config", "", "path to JSON sampler config (optional); explicit flags override it")
	dataPath := flag.String("data", datasets.DefaultDataPath, "directory holding the source files")
	extension := flag.String("ext", datasets.DefaultExtension, "source file extension")
	recursive := flag.Bool("recursive", false, "also search subdirectories of -data")
	tokenizerPath := flag.String("tokenizer", datasets.DefaultTokenizerPath, "tokenizer.json path or tiktoken:<encoding>")
	blockSize := flag.Int("block-size", 256, "window length in tokens")
	chunkSize := flag.Int("chunk-size", datasets.DefaultChunkSize, "initial chunk budget in characters")
	labelColumn := flag.Int("label-column", 0, "position of the row label column to drop (-1 keeps all columns)")
	fileHeader := flag.Bool("file-header", false, "take column names from the file's first line instead of each chunk's")

	samples := flag.Int("samples", 200, "number of windows to draw")
	outDir := flag.String("out", "plots", "output directory for generated plots")
	bigramSteps := flag.Int("bigram-steps", 200, "SGD steps for the bigram baseline (0 disables it)")
	bigramMaxVocab := flag.Int("bigram-max-vocab", 4096, "skip the bigram baseline when more distinct tokens are seen")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed for the bigram baseline")
	cachePath := flag.String("cache", "", "gob file for saving/loading drawn windows (optional)")
	cacheForce := flag.Bool("cache-force", false, "if true, draw again and overwrite an existing cache")
	verbose := flag.Bool("v", false, "log chunk growth at debug level")
	printEffectiveConfig := flag.Bool("print-effective-config", false, "print the effective (JSON+CLI merged) configuration and exit")

	flag.Parse()

	var cfg datasets.Config
	if *configPath != "" {
		var err error
		if cfg, err = datasets.LoadConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		log.Printf("Loaded sampler config from %s", *configPath)
	}

	// Without a JSON file every flag applies; with one, only the flags given
	// on the command line override it.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	apply := func(name string) bool { return *configPath == "" || set[name] }

	if apply("data") {
		cfg.DataPath = *dataPath
	}
	if apply("ext") {
		cfg.Extension = *extension
	}
	if apply("recursive") {
		cfg.Recursive = *recursive
	}
	if apply("tokenizer") {
		cfg.TokenizerPath = *tokenizerPath
	}
	if apply("block-size") || cfg.BlockSize == 0 {
		cfg.BlockSize = *blockSize
	}
	if apply("chunk-size") {
		cfg.ChunkSize = *chunkSize
	}
	if apply("label-column") {
		cfg.LabelColumn = *labelColumn
	}
	if apply("file-header") {
		cfg.FileHeader = *fileHeader
	}
	cfg = cfg.WithDefaults()

	if *printEffectiveConfig {
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			log.Fatalf("failed to marshal effective config: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	var d *draws
	if *cachePath != "" && !*cacheForce {
		var err error
		if d, err = loadDraws(*cachePath, cfg); err != nil {
			log.Printf("Cache load failed (%v). Drawing and will attempt to save to %s", err, *cachePath)
		} else {
			log.Printf("Loaded %d drawn windows from %s", d.Len(), *cachePath)
		}
	}
	if d == nil {
		tok, err := tokenizer.Open(cfg.TokenizerPath)
		if err != nil {
			log.Fatalf("failed to load tokenizer: %v", err)
		}
		sampler, err := datasets.NewChunkSampler(cfg, tok)
		if err != nil {
			log.Fatalf("failed to create sampler: %v", err)
		}
		level := slog.LevelInfo
		if *verbose {
			level = slog.LevelDebug
		}
		sampler.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		log.Printf("Sampling %d windows of %d tokens from %d files in %s",
			*samples, sampler.BlockSize, len(sampler.Files()), cfg.DataPath)

		d = sample(sampler, *samples)
		if d.Len() > 0 && *cachePath != "" {
			if err := saveDraws(*cachePath, d, cfg); err != nil {
				log.Printf("warning: failed to save drawn windows to %s: %v", *cachePath, err)
			} else {
				log.Printf("Saved drawn windows to %s", *cachePath)
			}
		}
	}
	if d.Len() == 0 {
		log.Fatalf("no windows drawn")
	}

	budgets := make(plotter.XYs, d.Len())
	subsets := make([]float64, d.Len())
	fractions := make([]float64, d.Len())
	attempts := make([]float64, d.Len())
	for i := range d.Len() {
		budgets[i] = plotter.XY{X: float64(i), Y: float64(d.chunkSizes[i])}
		subsets[i] = float64(d.columns[i])
		fractions[i] = float64(d.columns[i]) / float64(d.totalColumns[i])
		attempts[i] = float64(d.attempts[i])
	}

	sorted := append([]float64(nil), subsets...)
	sort.Float64s(sorted)
	log.Printf("Subset size: mean=%.2f std=%.2f median=%.0f p90=%.0f max=%.0f",
		stat.Mean(subsets, nil), stat.StdDev(subsets, nil),
		stat.Quantile(0.5, stat.Empirical, sorted, nil),
		stat.Quantile(0.9, stat.Empirical, sorted, nil),
		sorted[len(sorted)-1])
	log.Printf("Kept column fraction: mean=%.3f; attempts per window: mean=%.2f",
		stat.Mean(fractions, nil), stat.Mean(attempts, nil))

	var losses plotter.XYs
	if *bigramSteps > 0 {
		losses = trainBigram(&d.windows, *bigramSteps, *bigramMaxVocab, *seed)
	}

	if err := ensureDir(*outDir); err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}
	if err := plotChunkSize(*outDir, budgets); err != nil {
		log.Fatalf("failed to generate chunk size plot: %v", err)
	}
	if err := plotSubsetSizes(*outDir, subsets); err != nil {
		log.Fatalf("failed to generate subset size plot: %v", err)
	}
	if len(losses) > 0 {
		if err := plotLoss(*outDir, losses); err != nil {
			log.Fatalf("failed to generate loss plot: %v", err)
		}
	}
	log.Printf("Plots written to %s", *outDir)
}

// trainBigram holds out a tenth of the windows, trains the bigram baseline
// on the rest and returns the per-step training loss.
func trainBigram(windows *windowSet, steps, maxVocab int, seed int64) plotter.XYs {
	n := windows.Len()
	hold := max(n/10, 1)
	if n-hold < 1 {
		log.Printf("Too few windows (%d) for the bigram baseline", n)
		return nil
	}
	train := &windowSet{inputs: windows.inputs[hold:], targets: windows.targets[hold:]}
	eval := &windowSet{inputs: windows.inputs[:hold], targets: windows.targets[:hold]}
	vocab := densify(eval, train)
	if vocab > maxVocab {
		log.Printf("Skipping bigram baseline: %d distinct tokens exceeds %d", vocab, maxVocab)
		return nil
	}

	model, err := simple.NewModel(simple.Config{VocabSize: vocab, Steps: steps, Seed: seed})
	if err != nil {
		log.Fatalf("failed to create model: %v", err)
	}
	before, err := model.CrossEntropy(eval.inputs, eval.targets)
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}
	log.Printf("Training bigram baseline on %d windows (vocab=%d, steps=%d)...", train.Len(), vocab, steps)
	start := time.Now()
	trainLosses, err := model.TrainWithDataset(train)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	log.Printf("Training completed in %v", time.Since(start))
	after, err := model.CrossEntropy(eval.inputs, eval.targets)
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}
	log.Printf("Held-out cross-entropy: before=%.4f after=%.4f nats (uniform %.4f)", before, after, math.Log(float64(vocab)))

	xys := make(plotter.XYs, len(trainLosses))
	for i, l := range trainLosses {
		xys[i] = plotter.XY{X: float64(i), Y: l}
	}
	return xys
}

// plotChunkSize writes the shared chunk budget after every sample.
func plotChunkSize(outDir string, budgets plotter.XYs) error {
	p := plot.New()
	p.Title.Text = "Chunk size per sample"
	p.X.Label.Text = "sample"
	p.Y.Label.Text = "characters"

	line, err := plotter.NewLine(budgets)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 20, G: 80, B: 200, A: 255}
	line.Width = vg.Points(1)
	p.Add(line, plotter.NewGrid())

	return p.Save(8*vg.Inch, 4*vg.Inch, filepath.Join(outDir, "chunk_size.png"))
}

// plotSubsetSizes writes a histogram of the number of columns kept.
func plotSubsetSizes(outDir string, subsets []float64) error {
	p := plot.New()
	p.Title.Text = "Columns kept per window"
	p.X.Label.Text = "columns"
	p.Y.Label.Text = "windows"

	bins := 1
	for _, v := range subsets {
		bins = max(bins, int(v))
	}
	h, err := plotter.NewHist(plotter.Values(subsets), min(bins, 50))
	if err != nil {
		return err
	}
	h.FillColor = color.RGBA{R: 200, G: 30, B: 30, A: 180}
	p.Add(h)

	return p.Save(6*vg.Inch, 4*vg.Inch, filepath.Join(outDir, "subset_sizes.png"))
}

// plotLoss writes the bigram training loss curve.
func plotLoss(outDir string, losses plotter.XYs) error {
	p := plot.New()
	p.Title.Text = "Bigram baseline training loss"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "cross-entropy (nats)"

	line, err := plotter.NewLine(losses)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 40, G: 120, B: 40, A: 255}
	line.Width = vg.Points(1)
	p.Add(line, plotter.NewGrid())

	return p.Save(8*vg.Inch, 4*vg.Inch, filepath.Join(outDir, "bigram_loss.png"))
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
