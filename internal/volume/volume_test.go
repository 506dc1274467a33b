package volume

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-3, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{7.5, 1},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%v): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogController(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := NewLogController(zap.New(core))

	require.NoError(t, c.Raise(0.5))

	entries := logs.FilterMessage("volume raise").All()
	require.Len(t, entries, 1)
	assert.Equal(t, 0.5, entries[0].ContextMap()["signal"])
}

func TestFakeController(t *testing.T) {
	f := NewFakeController()
	require.NoError(t, f.Raise(0.1))

	f.RaiseError = errors.New("boom")
	assert.EqualError(t, f.Raise(0.2), "boom")
	assert.Equal(t, []float64{0.1, 0.2}, f.Calls())

	f.Reset()
	assert.Empty(t, f.Calls())
}

func TestRateLimitedController(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	fake := NewFakeController()
	c := NewRateLimitedController(fake, 100*time.Millisecond, clock)

	require.NoError(t, c.Raise(0.1)) // forwarded
	now = now.Add(50 * time.Millisecond)
	require.NoError(t, c.Raise(0.2)) // dropped
	now = now.Add(50 * time.Millisecond)
	require.NoError(t, c.Raise(0.3)) // forwarded, 100ms since last

	assert.Equal(t, []float64{0.1, 0.3}, fake.Calls())
}

func TestRateLimitedControllerZeroInterval(t *testing.T) {
	fake := NewFakeController()
	c := NewRateLimitedController(fake, 0, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Raise(0.5))
	}
	assert.Len(t, fake.Calls(), 5)
}

type fakeSwitch struct {
	on  bool
	err error
}

func (s *fakeSwitch) Read() (bool, error) { return s.on, s.err }

func TestGatedController(t *testing.T) {
	fake := NewFakeController()
	sw := &fakeSwitch{}
	c := NewGatedController(fake, sw)

	require.NoError(t, c.Raise(0.1))
	assert.Empty(t, fake.Calls(), "disarmed switch must suppress raise")

	sw.on = true
	require.NoError(t, c.Raise(0.2))
	assert.Equal(t, []float64{0.2}, fake.Calls())

	sw.err = errors.New("line busy")
	err := c.Raise(0.3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read arm switch")
	assert.Equal(t, []float64{0.2}, fake.Calls(), "read error must fail closed")
}

type fakeCommandPublisher struct {
	signals []float64
	times   []time.Time
	err     error
}

func (p *fakeCommandPublisher) PublishVolume(signal float64, at time.Time) error {
	if p.err != nil {
		return p.err
	}
	p.signals = append(p.signals, signal)
	p.times = append(p.times, at)
	return nil
}

func TestMQTTController(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	pub := &fakeCommandPublisher{}
	c := NewMQTTController(pub, func() time.Time { return at })

	require.NoError(t, c.Raise(0.75))
	assert.Equal(t, []float64{0.75}, pub.signals)
	assert.Equal(t, []time.Time{at}, pub.times)

	pub.err = errors.New("not connected")
	assert.ErrorContains(t, c.Raise(0.8), "publish volume command")
}

func TestCommandControllerSubstitutesValue(t *testing.T) {
	c, err := NewCommandController([]string{"pactl", "set-sink-volume", "@DEFAULT_SINK@", "{value}"}, time.Second)
	require.NoError(t, err)

	var gotName string
	var gotArgs []string
	c.run = func(ctx context.Context, name string, args ...string) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok, "expected a deadline on the command context")
		gotName = name
		gotArgs = args
		return nil
	}

	require.NoError(t, c.Raise(0.5))
	assert.Equal(t, "pactl", gotName)
	assert.Equal(t, []string{"set-sink-volume", "@DEFAULT_SINK@", "0.500"}, gotArgs)
}

func TestCommandControllerDefaults(t *testing.T) {
	c, err := NewCommandController(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultCommand, c.argv)
	assert.Equal(t, DefaultCommandTimeout, c.timeout)
}

func TestCommandControllerEmptyProgram(t *testing.T) {
	_, err := NewCommandController([]string{""}, 0)
	assert.Error(t, err)
}

func TestCommandControllerWrapsError(t *testing.T) {
	c, err := NewCommandController([]string{"amixer"}, 0)
	require.NoError(t, err)
	c.run = func(ctx context.Context, name string, args ...string) error {
		return errors.New("exit status 1")
	}

	err = c.Raise(0.1)
	require.Error(t, err)
	assert.Equal(t, "raise volume: exit status 1", err.Error())
}
