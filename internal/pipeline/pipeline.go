// Package pipeline labels line-delimited JSON records on a pool of workers.
//
// Records are independent, so workers share nothing but the Labeler. Results are
// written in input order: a finished record waits in a pending buffer until every
// record before it has been written or skipped.
package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/extract-label/internal/dedupe"
	"github.com/DeafMist/extract-label/internal/models"
	"github.com/DeafMist/extract-label/internal/processing"
)

// ErrRecordTimeout is reported for records that exceed Options.RecordTimeout.
var ErrRecordTimeout = errors.New("record timed out")

const maxLineSize = 64 * 1024 * 1024

// Labeler turns one record into its extractive labels.
type Labeler interface {
	Process(rec models.Record) (models.OutputRecord, error)
}

// Options tune a Run.
type Options struct {
	Workers       int
	RecordTimeout time.Duration
	// Dedupe drops records whose ID was already written. Nil disables it.
	Dedupe        *dedupe.Cache
	ProgressEvery int
}

// Stats summarise a Run. Read counts non-blank lines handed to workers, also when
// the run stops early.
type Stats struct {
	Read       int `json:"read"`
	Written    int `json:"written"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
}

type job struct {
	seq  int
	line []byte
}

type result struct {
	seq int
	id  string
	out models.OutputRecord
	err error
}

// Run reads records from in, labels them and writes one JSON line per record to out.
// Records that fail to decode, validate or finish in time are logged and skipped.
// Run stops at the first read or write error.
func Run(ctx context.Context, in io.Reader, out io.Writer, lab Labeler, opts Options, log *slog.Logger) (Stats, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job, opts.Workers)
	results := make(chan result, opts.Workers)

	var read int
	g.Go(func() error {
		defer close(jobs)
		n, err := scan(gctx, in, jobs)
		read = n
		return err
	})

	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for j := range jobs {
				r := label(gctx, lab, j, opts.RecordTimeout)
				select {
				case results <- r:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	w := &emitter{
		enc:   json.NewEncoder(out),
		opts:  opts,
		log:   log,
		start: time.Now(),
	}
	pending := make(map[int]result)
	next := 0
	var werr error

	for r := range results {
		if werr != nil {
			continue
		}
		pending[r.seq] = r
		for {
			cur, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if werr = w.emit(cur); werr != nil {
				cancel()
				break
			}
		}
	}

	gerr := g.Wait()
	w.stats.Read = read
	if werr != nil {
		return w.stats, werr
	}
	if gerr != nil {
		return w.stats, gerr
	}
	log.Info("labelling finished",
		slog.Int("read", w.stats.Read),
		slog.Int("written", w.stats.Written),
		slog.Int("failed", w.stats.Failed),
		slog.Int("duplicates", w.stats.Duplicates),
		slog.Duration("elapsed", time.Since(w.start)),
	)
	return w.stats, nil
}

// scan feeds non-blank lines to jobs and returns how many it handed over.
func scan(ctx context.Context, in io.Reader, jobs chan<- job) (int, error) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	seq := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return seq, err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		j := job{seq: seq, line: append([]byte(nil), line...)}
		select {
		case jobs <- j:
			seq++
		case <-ctx.Done():
			return seq, ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return seq, fmt.Errorf("read records: %w", err)
	}
	return seq, nil
}

func label(ctx context.Context, lab Labeler, j job, timeout time.Duration) result {
	var rec models.Record
	if err := json.Unmarshal(j.line, &rec); err != nil {
		return result{seq: j.seq, err: fmt.Errorf("%w: %v", processing.ErrMalformedRecord, err)}
	}
	id := processing.BuildRecordID(rec)

	out, err := processWithTimeout(ctx, lab, rec, timeout)
	return result{seq: j.seq, id: id, out: out, err: err}
}

// processWithTimeout bounds one record's latency. The labelling goroutine of a timed-out
// record runs to completion in the background; its result is discarded.
func processWithTimeout(ctx context.Context, lab Labeler, rec models.Record, timeout time.Duration) (models.OutputRecord, error) {
	if timeout <= 0 {
		return lab.Process(rec)
	}

	type outcome struct {
		out models.OutputRecord
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := lab.Process(rec)
		done <- outcome{out: out, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.out, o.err
	case <-timer.C:
		return models.OutputRecord{}, fmt.Errorf("%w after %s", ErrRecordTimeout, timeout)
	case <-ctx.Done():
		return models.OutputRecord{}, ctx.Err()
	}
}

type emitter struct {
	enc   *json.Encoder
	opts  Options
	log   *slog.Logger
	stats Stats
	start time.Time
}

func (e *emitter) emit(r result) error {
	defer e.progress(r.seq + 1)

	if r.err != nil {
		e.stats.Failed++
		e.log.Warn("skip record", slog.Int("seq", r.seq), slog.Any("err", r.err))
		return nil
	}
	if e.opts.Dedupe != nil && !e.opts.Dedupe.TryMark(r.id) {
		e.stats.Duplicates++
		e.log.Debug("duplicate record", slog.Int("seq", r.seq), slog.String("id", r.id))
		return nil
	}
	if err := e.enc.Encode(r.out); err != nil {
		return fmt.Errorf("write record %d: %w", r.seq, err)
	}
	e.stats.Written++
	return nil
}

func (e *emitter) progress(done int) {
	if e.opts.ProgressEvery <= 0 || done%e.opts.ProgressEvery != 0 {
		return
	}
	attrs := []any{
		slog.Int("done", done),
		slog.Int("written", e.stats.Written),
		slog.Int("failed", e.stats.Failed),
	}
	if elapsed := time.Since(e.start); elapsed > 0 {
		attrs = append(attrs, slog.Float64("records_per_sec", float64(done)/elapsed.Seconds()))
	}
	e.log.Info("labelling progress", attrs...)
}
