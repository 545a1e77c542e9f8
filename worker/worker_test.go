// These tests drive the shared work loop with scripted components.
package worker

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/WIPACrepo/lta/config"
)

// a component whose DoWorkClaim pops from a scripted list of outcomes
type scriptedComponent struct {
	outcomes []bool
	calls    int
	err      error
}

func (c *scriptedComponent) Type() string { return "scripted" }
func (c *scriptedComponent) Name() string { return "scripted-f00f" }
func (c *scriptedComponent) DoWorkClaim(ctx context.Context) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	if len(c.outcomes) == 0 {
		return false, nil
	}
	outcome := c.outcomes[0]
	c.outcomes = c.outcomes[1:]
	return outcome, nil
}

func loopConfig() *config.Config {
	return &config.Config{
		RunUntilNoWork:           true,
		WorkSleepDurationSeconds: 0,
	}
}

// tests that the loop drains available work and exits on the first empty
// pop when run_until_no_work is set
func TestRunUntilNoWork(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	component := &scriptedComponent{outcomes: []bool{true, true, true}}
	worker := New(component, loopConfig(), nil)

	err := worker.Run(context.Background())
	assert.Nil(err)
	// three records plus the empty pop that ended the loop
	assert.Equal(4, component.calls)
}

// tests that run_once_and_die exits after a single claim
func TestRunOnceAndDie(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	component := &scriptedComponent{outcomes: []bool{true, true}}
	conf := loopConfig()
	conf.RunUntilNoWork = false
	conf.RunOnceAndDie = true
	worker := New(component, conf, nil)

	err := worker.Run(context.Background())
	assert.Nil(err)
	assert.Equal(1, component.calls)
}

// tests that a failed cycle surfaces the error in batch mode, where an
// operator is watching the exit status
func TestRunSurfacesErrorsInBatchMode(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	boom := errors.New("the LTA DB is away")
	component := &scriptedComponent{err: boom}
	worker := New(component, loopConfig(), nil)

	err := worker.Run(context.Background())
	assert.ErrorIs(err, boom)
}

// a component whose first claim fails, after which it cancels the loop
type flakyComponent struct {
	calls  int
	cancel context.CancelFunc
}

func (c *flakyComponent) Type() string { return "flaky" }
func (c *flakyComponent) Name() string { return "flaky-0ff0" }
func (c *flakyComponent) DoWorkClaim(ctx context.Context) (bool, error) {
	c.calls++
	if c.calls == 1 {
		return false, errors.New("the LTA DB is away")
	}
	c.cancel()
	return false, nil
}

// tests that a long-running replica survives a failed cycle and keeps
// claiming on the next one
func TestRunSurvivesWorkErrors(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	component := &flakyComponent{cancel: cancel}
	conf := &config.Config{WorkSleepDurationSeconds: 0}
	worker := New(component, conf, nil)

	err := worker.Run(ctx)
	assert.ErrorIs(err, context.Canceled)
	// the loop came back for another cycle after the failure
	assert.GreaterOrEqual(component.calls, 2)
}

// tests that the drain semaphore stops the loop before any work is claimed
func TestDrainSemaphore(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	wd, err := os.Getwd()
	assert.Nil(err)
	defer os.Chdir(wd)
	err = os.Chdir(t.TempDir())
	assert.Nil(err)

	assert.False(Draining("scripted"))
	err = os.WriteFile(DrainSemaphore("scripted"), nil, 0o644)
	assert.Nil(err)
	assert.True(Draining("scripted"))

	component := &scriptedComponent{outcomes: []bool{true}}
	worker := New(component, loopConfig(), nil)
	err = worker.Run(context.Background())
	assert.Nil(err)
	assert.Zero(component.calls)
}

// tests the shape of the liveness report
func TestStatusReport(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	component := &scriptedComponent{}
	worker := New(component, loopConfig(), nil)
	_, err := worker.doWork(context.Background())
	assert.Nil(err)

	report := worker.statusReport()
	inner, found := report["scripted-f00f"].(map[string]any)
	assert.True(found)
	assert.NotEmpty(inner["timestamp"])
	assert.NotEmpty(inner["last_work_begin"])
	assert.NotEmpty(inner["last_work_end"])
	assert.Equal(true, inner["ok"])
}
