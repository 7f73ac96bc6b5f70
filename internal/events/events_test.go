package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type named string

func (n named) EventName() string { return string(n) }

func TestBatchFlushesOnce(t *testing.T) {
	var rec Recorder
	var b Batch
	b.Add(named("Transfer"))
	b.Add(named("TransferShares"))

	b.Flush(&rec)
	b.Flush(&rec)

	assert.Equal(t, []Event{named("Transfer"), named("TransferShares")}, rec.Events())
}

func TestBatchDiscardedWithoutSink(t *testing.T) {
	var rec Recorder
	var b Batch
	b.Add(named("Issued"))
	b.Flush(nil)
	b.Flush(&rec)

	assert.Empty(t, rec.Events())
}

func TestFanoutSkipsNil(t *testing.T) {
	var a, c Recorder
	var calls int
	f := Fanout{&a, nil, SinkFunc(func(evts ...Event) { calls += len(evts) }), &c}

	f.Publish(named("Approval"), named("Transfer"))

	assert.Len(t, a.Events(), 2)
	assert.Len(t, c.Events(), 2)
	assert.Equal(t, 2, calls)
	assert.Len(t, a.Named("Approval"), 1)

	a.Reset()
	assert.Empty(t, a.Events())
}
