// cdbg-clean reads a binary .ctx graph, estimates or applies a coverage
// cleaning threshold, prunes tips and low-coverage supernodes, and writes
// the cleaned graph back out. It is a thin driver over graphfile and clean;
// all of the cleaning logic lives in those packages.
package main

import (
	"fmt"
	"os"

	"v.io/x/lib/cmdline"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/grailbio/cdbg/clean"
	"github.com/grailbio/cdbg/graph"
	"github.com/grailbio/cdbg/graphfile"
	"github.com/grailbio/cdbg/khash"
	"github.com/grailbio/cdbg/loadstats"
)

func newCmdClean() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "clean",
		Short:    "Clean a binary graph of tips and low-coverage supernodes",
		ArgsName: "input.ctx output.ctx",
	}
	color := cmd.Flags.Int("color", 0, "Color whose coverage drives cleaning decisions")
	threads := cmd.Flags.Int("threads", 1, "Number of threads to use for supernode iteration and pruning")
	minKeepTip := cmd.Flags.Int("min-keep-tip", 0, "Remove tip supernodes shorter than this many kmers (0 disables)")
	covgThreshold := cmd.Flags.Uint64("covg-threshold", 0, "Remove supernodes with mean coverage below this (0: estimate automatically)")
	covgHistPath := cmd.Flags.String("covg-hist", "", "Write the before-cleaning coverage histogram CSV here (\"-\" for stdout)")
	lenHistPath := cmd.Flags.String("len-hist", "", "Write the before-cleaning supernode length histogram CSV here (\"-\" for stdout)")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("clean takes input.ctx and output.ctx, but got %v", argv)
		}
		return runClean(argv[0], argv[1], *color, *threads, *minKeepTip, *covgThreshold, *covgHistPath, *lenHistPath)
	})
	return cmd
}

func writeHistogram(path string, write func(*os.File) error) error {
	if path == "" {
		return nil
	}
	if path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return write(f)
}

func runClean(inPath, outPath string, color, threads, minKeepTip int, covgThreshold uint64, covgHistPath, lenHistPath string) error {
	ctx := vcontext.Background()

	hdr, err := graphfile.Probe(ctx, inPath)
	if err != nil {
		return err
	}
	if color < 0 || color >= hdr.NumColors() {
		return fmt.Errorf("color %d out of range [0,%d)", color, hdr.NumColors())
	}

	table := khash.New(int(hdr.KmerSize), 1<<20)
	g := graph.New(table, hdr.NumColors())
	stats := &loadstats.LoadingStats{}
	if err := graphfile.Load(ctx, inPath, g, graphfile.LoadPrefs{}, stats); err != nil {
		return err
	}
	stats.PrintSummary(table.CountKmers())

	threshold := covgThreshold
	var hist *clean.Histograms
	if threshold == 0 || covgHistPath != "" || lenHistPath != "" {
		est, h, err := clean.GetThreshold(g, threads, color)
		hist = h
		if threshold == 0 {
			if err != nil {
				return err
			}
			if est > 0 {
				threshold = uint64(est)
			}
		}
	}

	if err := writeHistogram(covgHistPath, func(f *os.File) error {
		if hist == nil {
			return nil
		}
		return clean.WriteCovgHistogram(f, hist.CovgInit, hist.MeanCovgInit)
	}); err != nil {
		return err
	}
	if err := writeHistogram(lenHistPath, func(f *os.File) error {
		if hist == nil {
			return nil
		}
		return clean.WriteLenHistogram(f, hist.LenInit, int(hdr.KmerSize))
	}); err != nil {
		return err
	}

	cstats, _ := clean.Clean(g, threads, threshold, minKeepTip, color)
	log.Printf("[clean] removed %d tip(s), %d low-coverage supernode(s), %d of both",
		cstats.NumTips, cstats.NumLowCovgSupernodes, cstats.NumTipAndLowSupernodes)

	for i := range hdr.Colors {
		hdr.Colors[i].IsGraphCleaned = true
		hdr.Colors[i].HasLowCovgSupernodesRemoved = hdr.Colors[i].HasLowCovgSupernodesRemoved || threshold > 0
		hdr.Colors[i].IsTipClippingApplied = hdr.Colors[i].IsTipClippingApplied || minKeepTip > 0
		hdr.Colors[i].LowCovgSupernodesThresh = uint32(threshold)
	}

	n, err := graphfile.Save(ctx, outPath, g, hdr)
	if err != nil {
		return err
	}
	log.Printf("[clean] wrote %d kmer(s) to %s", n, outPath)
	return nil
}

func newCmdView() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "view",
		Short:    "Print a .ctx file's header",
		ArgsName: "path",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("view takes one pathname argument, but got %v", argv)
		}
		return runView(argv[0])
	})
	return cmd
}

func runView(path string) error {
	hdr, err := graphfile.Probe(vcontext.Background(), path)
	if err != nil {
		return err
	}
	fmt.Printf("kmer_size: %d\n", hdr.KmerSize)
	fmt.Printf("words_per_kmer: %d\n", hdr.WordsPerKmer)
	fmt.Printf("num_colors: %d\n", hdr.NumColors())
	for i, c := range hdr.Colors {
		fmt.Printf("color %d: sample=%q mean_read_length=%d total_sequence=%d cleaned=%v\n",
			i, c.SampleName, c.MeanReadLength, c.TotalSequence, c.IsGraphCleaned)
	}
	return nil
}

func newCmdMerge() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "merge",
		Short:    "Union the kmers of multiple .ctx files into one",
		ArgsName: "output.ctx input.ctx...",
	}
	intersectName := cmd.Flags.String("intersect-name", "", "Record this name as the intersection name in the output header")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) < 2 {
			return fmt.Errorf("merge takes output.ctx and at least one input.ctx, but got %v", argv)
		}
		return graphfile.Merge(vcontext.Background(), argv[0], argv[1:], nil, *intersectName)
	})
	return cmd
}

func main() {
	cleanup := grail.Init()
	defer cleanup()

	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(&cmdline.Command{
		Name:  "cdbg-clean",
		Short: "Clean, inspect, and merge colored de Bruijn graph files",
		Children: []*cmdline.Command{
			newCmdClean(),
			newCmdView(),
			newCmdMerge(),
		},
	})
}

