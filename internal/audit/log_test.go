package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRecordAssignsMonotonicSeq(t *testing.T) {
	log := NewLog(NewInMemoryStore(), testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := log.Record(ctx, Entry{Actor: "pipeline", Action: ActionStageStarted, Subject: "cand-1"})
		require.NoError(t, err)
	}

	entries, err := log.List(ctx, "cand-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestRecordConcurrentSeqUnique(t *testing.T) {
	log := NewLog(NewInMemoryStore(), testLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = log.Record(ctx, Entry{Actor: "pipeline", Action: ActionAnswerSubmitted, Subject: "cand-1"})
		}()
	}
	wg.Wait()

	entries, err := log.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 50)

	seen := make(map[uint64]bool)
	for _, e := range entries {
		assert.False(t, seen[e.Seq], "duplicate seq %d", e.Seq)
		seen[e.Seq] = true
	}
}

type failingStore struct{}

func (failingStore) Append(context.Context, Entry) error { return errors.New("disk full") }
func (failingStore) List(context.Context, string, int) ([]Entry, error) {
	return nil, nil
}

func TestRecordFailsClosedOnStoreError(t *testing.T) {
	log := NewLog(failingStore{}, testLogger())

	err := log.Record(context.Background(), Entry{Actor: "pipeline", Action: ActionPipelineStarted, Subject: "cand-1"})
	require.Error(t, err)
}

func TestListFiltersBySubjectAndLimit(t *testing.T) {
	log := NewLog(NewInMemoryStore(), testLogger())
	ctx := context.Background()

	require.NoError(t, log.Record(ctx, Entry{Actor: "a", Action: ActionPipelineStarted, Subject: "cand-1"}))
	require.NoError(t, log.Record(ctx, Entry{Actor: "a", Action: ActionPipelineStarted, Subject: "cand-2"}))
	require.NoError(t, log.Record(ctx, Entry{Actor: "a", Action: ActionStagePassed, Subject: "cand-1"}))

	entries, err := log.List(ctx, "cand-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionPipelineStarted, entries[0].Action)
	assert.Equal(t, ActionStagePassed, entries[1].Action)

	limited, err := log.List(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

type recordingSink struct {
	mu      sync.Mutex
	entries []Entry
	done    chan struct{}
	want    int
}

func (s *recordingSink) Publish(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if len(s.entries) == s.want {
		close(s.done)
	}
	return nil
}

func TestWorkerDrainsOutboxToSink(t *testing.T) {
	log := NewLog(NewInMemoryStore(), testLogger())
	sink := &recordingSink{done: make(chan struct{}), want: 3}
	worker := NewWorker(log, sink, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	for i := 0; i < 3; i++ {
		require.NoError(t, log.Record(ctx, Entry{Actor: "pipeline", Action: ActionStagePassed, Subject: "cand-1"}))
	}

	<-sink.done
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.entries, 3)
}
