package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/accidentwatch/internal/database"
	"github.com/TobiSchelling/accidentwatch/internal/metrics"
	"github.com/TobiSchelling/accidentwatch/internal/pipeline"
)

type fakeStore struct {
	mu       sync.Mutex
	inserted []string
	finished []database.Run
}

func (s *fakeStore) InsertRun(id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, id)
	return nil
}

func (s *fakeStore) FinishRun(run database.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, run)
	return nil
}

// blockingJob runs until release is closed, then returns result.
func blockingJob(started chan<- struct{}, release <-chan struct{}, result *pipeline.Result) Job {
	return func(_ context.Context, hooks pipeline.Hooks) *pipeline.Result {
		hooks.Progress("Step 1/6: Collecting articles...")
		close(started)
		<-release
		return result
	}
}

func TestStartRunsJobAndRecordsResult(t *testing.T) {
	store := &fakeStore{}
	result := &pipeline.Result{Completed: true, Outcome: pipeline.OutcomeSuccess, Message: "Success", Records: 4, Duplicates: 1}
	started := make(chan struct{})
	release := make(chan struct{})
	r := New(blockingJob(started, release, result), WithStore(store), WithMetrics(metrics.New()))

	id, err := r.Start()
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	<-started

	st := r.Status()
	assert.True(t, st.IsRunning)
	assert.Equal(t, 50, st.Progress)
	assert.Equal(t, "Step 1/6: Collecting articles...", st.CurrentStep)
	assert.Equal(t, id, st.RunID)
	require.NotNil(t, st.StartTime)
	require.NotNil(t, st.Duration)
	assert.Nil(t, st.LastResult)

	close(release)
	r.Wait()

	st = r.Status()
	assert.False(t, st.IsRunning)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, "Completed successfully", st.CurrentStep)
	assert.Same(t, result, st.LastResult)
	assert.Empty(t, st.Errors)

	require.Equal(t, []string{id}, store.inserted)
	require.Len(t, store.finished, 1)
	assert.Equal(t, pipeline.OutcomeSuccess, store.finished[0].Outcome)
	assert.Equal(t, 4, store.finished[0].Records)
	assert.Equal(t, 1, store.finished[0].Duplicates)
}

func TestStartRejectsConcurrentRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r := New(blockingJob(started, release, &pipeline.Result{Outcome: pipeline.OutcomeSuccess}))

	_, err := r.Start()
	require.NoError(t, err)
	<-started

	_, err = r.Start()
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	r.Wait()

	// a finished runner accepts a new run
	again := New(func(context.Context, pipeline.Hooks) *pipeline.Result {
		return &pipeline.Result{Outcome: pipeline.OutcomeSuccess}
	})
	_, err = again.Start()
	require.NoError(t, err)
	again.Wait()
	_, err = again.Start()
	assert.NoError(t, err)
	again.Wait()
}

func TestStopIdleRunner(t *testing.T) {
	r := New(func(context.Context, pipeline.Hooks) *pipeline.Result { return nil })
	assert.ErrorIs(t, r.Stop(), ErrNotRunning)

	st := r.Status()
	assert.False(t, st.IsRunning)
	assert.Nil(t, st.StartTime)
	assert.Nil(t, st.Duration)
	assert.Equal(t, []string{}, st.Errors)
}

func TestStopSetsFlagSeenByJob(t *testing.T) {
	started := make(chan struct{})
	sawStop := make(chan bool, 1)
	r := New(func(_ context.Context, hooks pipeline.Hooks) *pipeline.Result {
		close(started)
		deadline := time.Now().Add(5 * time.Second)
		for !hooks.Stopped() && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		sawStop <- hooks.Stopped()
		return &pipeline.Result{Completed: true, Outcome: pipeline.OutcomeSummaryOnly, Error: pipeline.ErrStopped.Error()}
	})

	_, err := r.Start()
	require.NoError(t, err)
	<-started
	require.NoError(t, r.Stop())

	// still in flight until the job returns
	_, err = r.Start()
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	r.Wait()
	assert.True(t, <-sawStop)
	st := r.Status()
	assert.False(t, st.IsRunning)
	assert.Equal(t, "Stopped by user", st.CurrentStep)
	assert.Equal(t, []string{"stopped by user"}, st.Errors)
}

func TestErrorsCappedToLastTen(t *testing.T) {
	var errs []string
	for i := range 15 {
		errs = append(errs, fmt.Sprintf("error %d", i))
	}
	r := New(func(context.Context, pipeline.Hooks) *pipeline.Result {
		return &pipeline.Result{Completed: true, Outcome: pipeline.OutcomePartial, Errors: errs}
	})
	_, err := r.Start()
	require.NoError(t, err)
	r.Wait()

	st := r.Status()
	require.Len(t, st.Errors, MaxErrors)
	assert.Equal(t, "error 5", st.Errors[0])
	assert.Equal(t, "error 14", st.Errors[9])
}

func TestJobPanicIsReported(t *testing.T) {
	store := &fakeStore{}
	r := New(func(context.Context, pipeline.Hooks) *pipeline.Result {
		panic("database closed")
	}, WithStore(store))

	_, err := r.Start()
	require.NoError(t, err)
	r.Wait()

	st := r.Status()
	assert.False(t, st.IsRunning)
	assert.Equal(t, []string{"Unexpected thread error: database closed"}, st.Errors)
	assert.Equal(t, "Failed with error: database closed", st.CurrentStep)
	assert.Nil(t, st.LastResult)
	require.Len(t, store.finished, 1)
	assert.Equal(t, pipeline.OutcomeFailed, store.finished[0].Outcome)
}

func TestRunHistoryInDatabase(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer db.Close()

	r := New(func(context.Context, pipeline.Hooks) *pipeline.Result {
		return &pipeline.Result{Completed: true, Outcome: pipeline.OutcomeSuccess, Message: "Success", Records: 2}
	}, WithStore(db))
	id, err := r.Start()
	require.NoError(t, err)
	r.Wait()

	runs, err := db.RecentRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, pipeline.OutcomeSuccess, runs[0].Outcome)
	assert.Equal(t, 2, runs[0].Records)
	assert.NotNil(t, runs[0].FinishedAt)
}
