package workload

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Konsultn-Engineering/stormweaver/database"
	"github.com/Konsultn-Engineering/stormweaver/metadata"
)

func fakeConnectorFactory(counts *sync.Map) func(name string) ConnectorFunc {
	return func(name string) ConnectorFunc {
		return func() (database.Client, error) {
			n, _ := counts.LoadOrStore(name, 0)
			counts.Store(name, n.(int)+1)
			return &scriptedClient{}, nil
		}
	}
}

func testWorkload(t *testing.T, params Params) (*Workload, *sync.Map) {
	t.Helper()
	var counts sync.Map
	w, err := NewWorkload(params, fakeConnectorFactory(&counts),
		metadata.New(), pingRegistry(t), testLogger())
	require.NoError(t, err)
	return w, &counts
}

func TestWorkloadBuildsNamedWorkers(t *testing.T) {
	params := DefaultParams()
	params.NumberOfWorkers = 3
	params.Seed = 7

	w, _ := testWorkload(t, params)

	assert.Equal(t, 3, w.WorkerCount())
	assert.NotEmpty(t, w.RunID())

	first, err := w.Worker(1)
	require.NoError(t, err)
	assert.Equal(t, "Worker 1", first.Name())
	assert.True(t, first.PossibleActions().Has("ping"))

	last, err := w.Worker(3)
	require.NoError(t, err)
	assert.Equal(t, "Worker 3", last.Name())

	_, err = w.Worker(0)
	assert.Error(t, err)
	_, err = w.Worker(4)
	assert.Error(t, err)
}

func TestWorkloadZeroRepeatBuildsNoWorkers(t *testing.T) {
	params := DefaultParams()
	params.RepeatTimes = 0

	w, _ := testWorkload(t, params)
	assert.Equal(t, 0, w.WorkerCount())
}

func TestWorkloadRunAndWait(t *testing.T) {
	params := DefaultParams()
	params.NumberOfWorkers = 2
	params.DurationInSeconds = 0
	params.Seed = 3

	w, _ := testWorkload(t, params)

	w.Run()
	done := make(chan struct{})
	go func() {
		w.WaitCompletion()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workload did not finish")
	}
}

func TestWorkloadReconnectWorkers(t *testing.T) {
	params := DefaultParams()
	params.NumberOfWorkers = 2
	params.Seed = 3

	w, counts := testWorkload(t, params)
	require.NoError(t, w.ReconnectWorkers())

	for _, name := range []string{"Worker 1", "Worker 2"} {
		n, ok := counts.Load(name)
		require.True(t, ok)
		assert.Equal(t, 2, n.(int))
	}
}
