package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/DeafMist/extract-label/internal/dedupe"
	"github.com/DeafMist/extract-label/internal/logger"
	"github.com/DeafMist/extract-label/internal/models"
	"github.com/DeafMist/extract-label/internal/pipeline"
	"github.com/DeafMist/extract-label/internal/processing"
)

// echoLabeler copies the record ID into Summ, sleeping a little for odd IDs so that
// workers finish out of order.
type echoLabeler struct {
	release chan struct{}
}

func (e echoLabeler) Process(rec models.Record) (models.OutputRecord, error) {
	if rec.Document == nil || rec.Summary == nil {
		return models.OutputRecord{}, processing.ErrMalformedRecord
	}
	if rec.ID == "slow" {
		<-e.release
	}
	if n, err := strconv.Atoi(rec.ID); err == nil && n%2 == 1 {
		time.Sleep(time.Duration(n%5) * time.Millisecond)
	}
	return models.OutputRecord{
		Summ:         []string{rec.ID},
		Document:     rec.Document,
		Sentence:     []string{},
		ExtractLabel: []int{},
	}, nil
}

func line(id string) string {
	return fmt.Sprintf(`{"id":%q,"document":["d"],"summary":["s"]}`, id)
}

func decodeIDs(t *testing.T, out *bytes.Buffer) []string {
	t.Helper()
	var ids []string
	dec := json.NewDecoder(out)
	for dec.More() {
		var rec models.OutputRecord
		require.NoError(t, dec.Decode(&rec))
		ids = append(ids, rec.Summ[0])
	}
	return ids
}

func TestRunPreservesInputOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	var in strings.Builder
	var want []string
	for i := 0; i < 200; i++ {
		id := strconv.Itoa(i)
		want = append(want, id)
		in.WriteString(line(id) + "\n")
	}

	var out bytes.Buffer
	stats, err := pipeline.Run(context.Background(), strings.NewReader(in.String()), &out, echoLabeler{},
		pipeline.Options{Workers: 8, ProgressEvery: 50}, logger.Discard())
	require.NoError(t, err)
	require.Equal(t, pipeline.Stats{Read: 200, Written: 200}, stats)
	require.Equal(t, want, decodeIDs(t, &out))
}

func TestRunSkipsBadRecords(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := strings.Join([]string{
		line("0"),
		"",
		"{not json",
		`{"id":"missing-summary","document":["d"]}`,
		"   ",
		`{"id":"summ-alias","document":["d"],"summ":["s"]}`,
		line("1"),
	}, "\n")

	var out bytes.Buffer
	stats, err := pipeline.Run(context.Background(), strings.NewReader(in), &out, echoLabeler{},
		pipeline.Options{Workers: 3}, logger.Discard())
	require.NoError(t, err)
	require.Equal(t, pipeline.Stats{Read: 5, Written: 3, Failed: 2}, stats)
	require.Equal(t, []string{"0", "summ-alias", "1"}, decodeIDs(t, &out))
}

func TestRunDedupeKeepsFirst(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := strings.Join([]string{line("7"), line("8"), line("7"), line("9"), line("8")}, "\n")

	var out bytes.Buffer
	stats, err := pipeline.Run(context.Background(), strings.NewReader(in), &out, echoLabeler{},
		pipeline.Options{Workers: 4, Dedupe: dedupe.NewCache(10, 0)}, logger.Discard())
	require.NoError(t, err)
	require.Equal(t, 2, stats.Duplicates)
	require.Equal(t, []string{"7", "8", "9"}, decodeIDs(t, &out))
}

func TestRunRecordTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	lab := echoLabeler{release: make(chan struct{})}
	defer close(lab.release)

	in := strings.Join([]string{line("0"), line("slow"), line("2")}, "\n")

	var out bytes.Buffer
	stats, err := pipeline.Run(context.Background(), strings.NewReader(in), &out, lab,
		pipeline.Options{Workers: 2, RecordTimeout: 20 * time.Millisecond}, logger.Discard())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, []string{"0", "2"}, decodeIDs(t, &out))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestRunStopsOnWriteError(t *testing.T) {
	defer goleak.VerifyNone(t)

	var in strings.Builder
	for i := 0; i < 100; i++ {
		in.WriteString(line(strconv.Itoa(i)) + "\n")
	}

	_, err := pipeline.Run(context.Background(), strings.NewReader(in.String()), failingWriter{}, echoLabeler{},
		pipeline.Options{Workers: 4}, logger.Discard())
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
}

// gatedLabeler finishes record "0" only once three other records are in flight and
// holds those until release is closed.
type gatedLabeler struct {
	started chan struct{}
	release chan struct{}
}

func (g gatedLabeler) Process(rec models.Record) (models.OutputRecord, error) {
	if rec.ID == "0" {
		for i := 0; i < 3; i++ {
			<-g.started
		}
	} else {
		g.started <- struct{}{}
		<-g.release
	}
	return models.OutputRecord{Summ: []string{rec.ID}}, nil
}

type releasingWriter struct {
	release chan struct{}
}

func (w releasingWriter) Write([]byte) (int, error) {
	close(w.release)
	return 0, errors.New("disk full")
}

func TestRunCountsReadAfterWriteError(t *testing.T) {
	defer goleak.VerifyNone(t)

	var in strings.Builder
	for i := 0; i < 100; i++ {
		in.WriteString(line(strconv.Itoa(i)) + "\n")
	}
	release := make(chan struct{})
	lab := gatedLabeler{started: make(chan struct{}, 100), release: release}

	stats, err := pipeline.Run(context.Background(), strings.NewReader(in.String()), releasingWriter{release: release}, lab,
		pipeline.Options{Workers: 4}, logger.Discard())
	require.Error(t, err)
	require.Zero(t, stats.Written)
	require.GreaterOrEqual(t, stats.Read, 4)
}

func TestRunCanceled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var in strings.Builder
	for i := 0; i < 100; i++ {
		in.WriteString(line(strconv.Itoa(i)) + "\n")
	}

	var out bytes.Buffer
	_, err := pipeline.Run(ctx, strings.NewReader(in.String()), &out, echoLabeler{},
		pipeline.Options{Workers: 2}, logger.Discard())
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunEmptyInput(t *testing.T) {
	defer goleak.VerifyNone(t)

	var out bytes.Buffer
	stats, err := pipeline.Run(context.Background(), strings.NewReader(""), &out, echoLabeler{},
		pipeline.Options{}, logger.Discard())
	require.NoError(t, err)
	require.Equal(t, pipeline.Stats{}, stats)
	require.Zero(t, out.Len())
}
