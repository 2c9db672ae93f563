package daemon

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) service(name string, startErr error) Service {
	return Service{
		Name: name,
		Start: func(context.Context) error {
			r.add("start " + name)
			return startErr
		},
		Stop: func(context.Context) error {
			r.add("stop " + name)
			return nil
		},
	}
}

func TestDaemon_StartStopOrder(t *testing.T) {
	rec := &recorder{}
	d := New("test", t.TempDir(), zerolog.Nop())
	d.Add(rec.service("a", nil))
	d.Add(rec.service("b", nil))
	d.Add(Service{Name: "passive"})

	require.NoError(t, d.Start(context.Background()))
	assert.True(t, d.PIDFile().IsRunning())

	status := d.Status()
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, []string{"a", "b", "passive"}, status.Services)

	assert.Error(t, d.Start(context.Background()))

	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, rec.list())
	assert.False(t, d.PIDFile().IsRunning())
	assert.False(t, d.Status().Running)

	assert.Error(t, d.Stop(context.Background()))
}

func TestDaemon_StartFailureRollsBack(t *testing.T) {
	rec := &recorder{}
	d := New("test", t.TempDir(), zerolog.Nop())
	d.Add(rec.service("a", nil))
	d.Add(rec.service("b", errors.New("boom")))
	d.Add(rec.service("c", nil))

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start b")

	assert.Equal(t, []string{"start a", "start b", "stop a"}, rec.list())
	assert.False(t, d.PIDFile().IsRunning())
}

func TestDaemon_StopJoinsErrors(t *testing.T) {
	d := New("test", t.TempDir(), zerolog.Nop())
	d.Add(Service{Name: "bad", Stop: func(context.Context) error { return errors.New("stuck") }})

	require.NoError(t, d.Start(context.Background()))
	err := d.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: stuck")
}

func TestDaemon_WaitReturnsOnContext(t *testing.T) {
	rec := &recorder{}
	d := New("test", t.TempDir(), zerolog.Nop())
	d.Add(rec.service("a", nil))
	require.NoError(t, d.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, d.Wait(ctx))
	assert.Equal(t, []string{"start a", "stop a"}, rec.list())
	assert.False(t, d.Status().Running)
}

func TestDaemon_WaitReturnsServiceFailure(t *testing.T) {
	d := New("test", t.TempDir(), zerolog.Nop())
	stopped := make(chan struct{})
	d.Add(Service{
		Name:  "server",
		Serve: func() error { return errors.New("address in use") },
		Stop: func(context.Context) error {
			close(stopped)
			return nil
		},
	})
	require.NoError(t, d.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := d.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server: address in use")

	select {
	case <-stopped:
	default:
		t.Fatal("service was not stopped")
	}
}
