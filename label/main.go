package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/DeafMist/extract-label/internal/config"
	"github.com/DeafMist/extract-label/internal/dedupe"
	"github.com/DeafMist/extract-label/internal/logger"
	"github.com/DeafMist/extract-label/internal/nlp"
	"github.com/DeafMist/extract-label/internal/pipeline"
)

const stdio = "-"

func main() {
	_ = godotenv.Load(".env")

	log := logger.NewTo(os.Stderr, "label").With(slog.String("run_id", uuid.NewString()))
	cfg, err := config.LoadLabel()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newRootCmd(cfg, log).ExecuteContext(ctx); err != nil {
		log.Error("label failed", slog.Any("err", err))
		os.Exit(1)
	}
}

type runOptions struct {
	input  string
	output string
	cfg    config.Label
}

func newRootCmd(cfg *config.Label, log *slog.Logger) *cobra.Command {
	opts := runOptions{cfg: *cfg}

	cmd := &cobra.Command{
		Use:   "label --input <file|dir|-> --output <file|dir|->",
		Short: "Attach date-aligned extractive labels to document/summary records",
		Long: `label reads line-delimited JSON records with "document" and "summary" (or "summ")
paragraph lists and writes one record per line with summ, document, sentence and
extract_label fields.

If --input is a directory, every *.json file in it is labelled into the --output
directory under the same name. "-" reads stdin or writes stdout.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lab, err := nlp.NewProcessor(opts.cfg.Limits)
			if err != nil {
				return fmt.Errorf("init nlp: %w", err)
			}
			return run(cmd.Context(), lab, opts, cmd.InOrStdin(), cmd.OutOrStdout(), log)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "input file, directory of *.json files, or - for stdin")
	f.StringVarP(&opts.output, "output", "o", "", "output file, directory, or - for stdout")
	f.IntVarP(&opts.cfg.Workers, "workers", "w", cfg.Workers, "number of labelling goroutines")
	f.DurationVar(&opts.cfg.RecordTimeout, "timeout", cfg.RecordTimeout, "per-record labelling timeout (0 disables)")
	f.BoolVar(&opts.cfg.Dedupe, "dedupe", cfg.Dedupe, "drop records whose document and summary were already written")
	f.IntVar(&opts.cfg.ProgressEvery, "progress-every", cfg.ProgressEvery, "log progress every N records (0 disables)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func run(ctx context.Context, lab pipeline.Labeler, opts runOptions, stdin io.Reader, stdout io.Writer, log *slog.Logger) error {
	if opts.cfg.Workers <= 0 {
		return errors.New("--workers must be positive")
	}
	if opts.cfg.RecordTimeout < 0 {
		return errors.New("--timeout cannot be negative")
	}

	if opts.input == stdio {
		return labelStream(ctx, lab, opts, stdin, opts.output, stdout, log.With(slog.String("input", "stdin")))
	}

	info, err := os.Stat(opts.input)
	if err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if !info.IsDir() {
		return labelFile(ctx, lab, opts, opts.input, opts.output, stdout, log)
	}

	if opts.output == stdio {
		return errors.New("directory input needs an output directory")
	}
	outInfo, err := os.Stat(opts.output)
	if err != nil {
		return fmt.Errorf("stat output directory: %w", err)
	}
	if !outInfo.IsDir() {
		return fmt.Errorf("output %s is not a directory", opts.output)
	}
	if same, err := sameDir(opts.input, opts.output); err != nil {
		return err
	} else if same {
		return errors.New("output directory must differ from input directory")
	}

	files, err := filepath.Glob(filepath.Join(opts.input, "*.json"))
	if err != nil {
		return fmt.Errorf("list inputs: %w", err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		log.Warn("no *.json files found", slog.String("dir", opts.input))
		return nil
	}

	for _, in := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := filepath.Join(opts.output, filepath.Base(in))
		if err := labelFile(ctx, lab, opts, in, out, stdout, log); err != nil {
			return err
		}
	}
	return nil
}

func labelFile(ctx context.Context, lab pipeline.Labeler, opts runOptions, in, out string, stdout io.Writer, log *slog.Logger) error {
	f, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	return labelStream(ctx, lab, opts, f, out, stdout, log.With(slog.String("input", in)))
}

func labelStream(ctx context.Context, lab pipeline.Labeler, opts runOptions, in io.Reader, out string, stdout io.Writer, log *slog.Logger) error {
	var (
		dst      io.Writer = stdout
		closeOut func() error
	)
	if out != stdio {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		dst, closeOut = f, f.Close
	}

	bw := bufio.NewWriterSize(dst, 1<<20)
	popts := pipeline.Options{
		Workers:       opts.cfg.Workers,
		RecordTimeout: opts.cfg.RecordTimeout,
		ProgressEvery: opts.cfg.ProgressEvery,
	}
	if opts.cfg.Dedupe {
		popts.Dedupe = dedupe.NewCache(opts.cfg.DedupeCapacity, 0)
	}

	stats, err := pipeline.Run(ctx, in, bw, lab, popts, log.With(slog.String("output", out)))
	if ferr := bw.Flush(); err == nil && ferr != nil {
		err = fmt.Errorf("flush output: %w", ferr)
	}
	if closeOut != nil {
		if cerr := closeOut(); err == nil && cerr != nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}
	if err != nil {
		return fmt.Errorf("label %s: %w", out, err)
	}
	log.Debug("file done", slog.Int("written", stats.Written), slog.Int("failed", stats.Failed))
	return nil
}

func sameDir(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ai, bi), nil
}
