package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitterOnEmit(t *testing.T) {
	var e Emitter
	var got []Event
	e.On("change", func(evt Event) { got = append(got, evt) })

	e.Emit("change", map[string]any{"key": "x", "value": 1.0})
	e.Emit("other", nil)

	assert.Len(t, got, 1)
	assert.Equal(t, "change", got[0].Channel)
	assert.Equal(t, "x", got[0].Get("key"))
	assert.True(t, got[0].Has("value"))
	assert.False(t, got[0].Has("nosuch"))
	assert.Nil(t, got[0].Get("nosuch"))
}

func TestEmitterMultipleHandlers(t *testing.T) {
	var e Emitter
	var a, b int
	e.On("c", func(Event) { a++ })
	e.On("c", func(Event) { b++ })
	e.Emit("c", nil)
	e.Emit("c", nil)
	assert.Equal(t, 2, a)
	assert.Equal(t, 2, b)
}

func TestEmitterOff(t *testing.T) {
	var e Emitter
	var fired int
	sub := e.On("c", func(Event) { fired++ })
	keep := 0
	e.On("c", func(Event) { keep++ })

	e.Off(sub)
	e.Emit("c", nil)
	assert.Equal(t, 0, fired)
	assert.Equal(t, 1, keep)

	e.OffChannel("c")
	e.Emit("c", nil)
	assert.Equal(t, 1, keep)
}

func TestEmitterOffAll(t *testing.T) {
	var e Emitter
	var fired int
	e.On("a", func(Event) { fired++ })
	e.On("b", func(Event) { fired++ })
	e.OffAll()
	e.Emit("a", nil)
	e.Emit("b", nil)
	assert.Equal(t, 0, fired)

	// the emitter keeps working after OffAll
	e.On("a", func(Event) { fired++ })
	e.Emit("a", nil)
	assert.Equal(t, 1, fired)
}

func TestEmitterUnsubscribeDuringEmit(t *testing.T) {
	var e Emitter
	var fired int
	var sub Subscription
	sub = e.On("c", func(Event) {
		fired++
		e.Off(sub)
	})
	e.Emit("c", nil)
	e.Emit("c", nil)
	assert.Equal(t, 1, fired)
}

func TestEmitterSubscribeDuringEmit(t *testing.T) {
	var e Emitter
	var late int
	e.On("c", func(Event) {
		e.On("c", func(Event) { late++ })
	})
	e.Emit("c", nil)
	// the handler added mid-emit only sees later events
	assert.Equal(t, 0, late)
	e.OffAll()
}
