package systems

import (
	"errors"
	"sync"
	"testing"

	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/engine/renderer/metadata"
)

func TestJobSystemRunsWork(t *testing.T) {
	js, err := NewJobSystem(2, 8)
	if err != nil {
		t.Fatalf("NewJobSystem: %v", err)
	}
	defer js.Shutdown()

	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make(map[string]interface{})

	for _, name := range []string{"a", "b", "c"} {
		wg.Add(1)
		name := name
		err := js.Submit(metadata.JobTask{
			Name: name,
			OnStart: func() (interface{}, error) {
				return name + "_done", nil
			},
			OnComplete: func(result interface{}) {
				mu.Lock()
				results[name] = result
				mu.Unlock()
				wg.Done()
			},
		})
		if err != nil {
			t.Fatalf("Submit %q: %v", name, err)
		}
	}
	wg.Wait()

	for _, name := range []string{"a", "b", "c"} {
		if results[name] != name+"_done" {
			t.Fatalf("job %q result = %v, want %q", name, results[name], name+"_done")
		}
	}
}

func TestJobSystemFailureCallback(t *testing.T) {
	js, err := NewJobSystem(1, 4)
	if err != nil {
		t.Fatalf("NewJobSystem: %v", err)
	}
	defer js.Shutdown()

	boom := errors.New("decode failed")
	failed := make(chan error, 1)
	err = js.Submit(metadata.JobTask{
		Name: "broken",
		OnStart: func() (interface{}, error) {
			return nil, boom
		},
		OnFailure: func(err error) {
			failed <- err
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if got := <-failed; !errors.Is(got, boom) {
		t.Fatalf("OnFailure got %v, want %v", got, boom)
	}
}

func TestJobSystemRejectsSubmitAfterShutdown(t *testing.T) {
	js, err := NewJobSystem(1, 4)
	if err != nil {
		t.Fatalf("NewJobSystem: %v", err)
	}
	if err := js.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	err = js.Submit(metadata.JobTask{
		Name:    "late",
		OnStart: func() (interface{}, error) { return nil, nil },
	})
	if !errors.Is(err, core.ErrShutdownInProgress) {
		t.Fatalf("Submit after shutdown = %v, want ErrShutdownInProgress", err)
	}
}

func TestJobSystemRejectsBadConfig(t *testing.T) {
	if _, err := NewJobSystem(0, 4); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("zero workers: err = %v, want ErrNoWorkers", err)
	}
	if _, err := NewJobSystem(1, -1); !errors.Is(err, ErrNegativeChannelSize) {
		t.Fatalf("negative channel: err = %v, want ErrNegativeChannelSize", err)
	}
}
