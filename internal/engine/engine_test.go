package engine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fluxgear/internal/ir"
	"github.com/roach88/fluxgear/internal/msgtype"
	"github.com/roach88/fluxgear/internal/testutil"
)

func TestNew_StateIsReducerOfInit(t *testing.T) {
	reducer := func(s int, m Message) int {
		if m.Type == Init {
			return s * 2
		}
		return s
	}

	e, err := New(Config[int]{InitialState: 21, Reducer: reducer, Logger: quietLogger()})
	require.NoError(t, err)

	assert.Equal(t, reducer(21, Message{Type: Init}), e.State())
}

func TestNew_DefaultsAreIdentityPipeline(t *testing.T) {
	e, err := New(Config[ir.Object]{Logger: quietLogger()})
	require.NoError(t, err)
	assert.Nil(t, e.State())

	require.NoError(t, e.Dispatch(Message{Type: tEvent, Payload: ir.Object{"x": ir.Int(1)}}))
	assert.Nil(t, e.State())
}

func TestNew_InitRunsConsumerBeforeReturning(t *testing.T) {
	var r testutil.Recorder
	e, err := New(recorded(&r, Config[int]{}))
	require.NoError(t, err)

	assert.Equal(t, []string{"transform:INIT", "consume:INIT", "reduce:INIT"}, r.Strings())
	assert.Equal(t, 0, e.State())
}

func TestNew_InitFailureReturnsError(t *testing.T) {
	boom := errors.New("boom")
	e, err := New(Config[int]{
		Consumer: func(m Message, _ DispatchOptions[int]) error {
			if m.Type == Init {
				return boom
			}
			return nil
		},
		Logger: quietLogger(),
	})

	require.Error(t, err)
	assert.Nil(t, e)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, CodeStageFailed, CodeOf(err))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config[int]{MaxMessages: -1})
	assert.ErrorContains(t, err, "max messages")

	_, err = New(Config[int]{Observers: []Observer{nil}})
	assert.ErrorContains(t, err, "observer 0 is nil")
}

func TestDispatch_MissingTypeFails(t *testing.T) {
	var r testutil.Recorder
	e, err := New(recorded(&r, Config[int]{InitialState: 7, Reducer: func(s int, _ Message) int { return s + 1 }}))
	require.NoError(t, err)
	before := e.State()
	r.Reset()

	err = e.Dispatch(Event{})
	require.Error(t, err)
	assert.True(t, IsInvalidEvent(err))
	assert.Equal(t, CodeInvalidEvent, CodeOf(err))

	err = e.Dispatch(Event{Payload: ir.Object{"type": ir.String("EVENT")}})
	assert.True(t, IsInvalidEvent(err), "a payload field named type is not a type")

	assert.Equal(t, before, e.State())
	assert.Empty(t, r.Calls(), "invalid events must not enter the pipeline")
}

func TestDispatch_EqualStateProducesNoChange(t *testing.T) {
	var r testutil.Recorder
	notified := 0

	// Each reduce returns a fresh map with the same contents.
	e, err := New(recorded(&r, Config[ir.Object]{
		InitialState: ir.Object{"n": ir.Int(1)},
		Reducer: func(ir.Object, Message) ir.Object {
			return ir.Object{"n": ir.Int(1)}
		},
	}))
	require.NoError(t, err)
	e.Subscribe(func() { notified++ })

	require.NoError(t, e.Dispatch(Message{Type: tEvent}))

	assert.Zero(t, r.Count("consume", "CHANGE"))
	assert.Zero(t, r.Count("reduce", "CHANGE"))
	assert.Zero(t, notified)
}

func TestDispatch_StateIsLatestReducedValue(t *testing.T) {
	var last ir.Object
	e, err := New(Config[ir.Object]{
		InitialState: ir.Object{"n": ir.Int(1)},
		Reducer: func(ir.Object, Message) ir.Object {
			last = ir.Object{"n": ir.Int(1)}
			return last
		},
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, e.Dispatch(Message{Type: tEvent}))

	// Structurally equal, but the cell holds the new map rather than the old one.
	assert.Equal(t, reflect.ValueOf(last).Pointer(), reflect.ValueOf(e.State()).Pointer())
}

func TestDispatch_DifferentStateProducesOneChange(t *testing.T) {
	var r testutil.Recorder
	notified := 0

	e, err := New(recorded(&r, Config[int]{Reducer: countOn(tEvent)}))
	require.NoError(t, err)
	e.Subscribe(func() { notified++ })
	r.Reset()

	require.NoError(t, e.Dispatch(Message{Type: tEvent}))

	assert.Equal(t, []string{
		"transform:EVENT",
		"consume:EVENT", "reduce:EVENT",
		"consume:CHANGE", "reduce:CHANGE",
	}, r.Strings())
	assert.Equal(t, 1, notified)
	assert.Equal(t, 1, e.State())
}

func TestDispatch_ChangeIsSingleLevel(t *testing.T) {
	type counters struct{ Events, Changes int }

	var r testutil.Recorder
	notified := 0
	e, err := New(recorded(&r, Config[counters]{
		Reducer: func(s counters, m Message) counters {
			switch m.Type {
			case tEvent:
				s.Events++
			case Change:
				// CHANGE alters state again; no second CHANGE may follow.
				s.Changes++
			}
			return s
		},
	}))
	require.NoError(t, err)
	e.Subscribe(func() { notified++ })

	require.NoError(t, e.Dispatch(Message{Type: tEvent}))
	require.NoError(t, e.Dispatch(Message{Type: tEvent}))

	assert.Equal(t, 2, r.Count("consume", "CHANGE"))
	assert.Equal(t, counters{Events: 2, Changes: 2}, e.State())
	assert.Equal(t, 2, notified)
}

func TestDispatch_TransformOutputRoutedOnce(t *testing.T) {
	var r testutil.Recorder
	e, err := New(recorded(&r, Config[int]{
		Transformer: func(ev Event) Sequence {
			if ev.Type == tEvent {
				return Of(Message{Type: tMsg1}, Message{Type: tMsg2})
			}
			return Of(ev)
		},
	}))
	require.NoError(t, err)
	r.Reset()

	require.NoError(t, e.Dispatch(Message{Type: tEvent}))

	assert.Equal(t, []string{"EVENT"}, r.Types("transform"))
	assert.Equal(t, []string{"MESSAGE1", "MESSAGE2"}, r.Types("consume"))
	assert.Equal(t, []string{"MESSAGE1", "MESSAGE2"}, r.Types("reduce"))
	assert.Equal(t, []string{
		"transform:EVENT",
		"consume:MESSAGE1", "reduce:MESSAGE1",
		"consume:MESSAGE2", "reduce:MESSAGE2",
	}, r.Strings())
}

func TestDispatch_EmptyAndNilSequences(t *testing.T) {
	var r testutil.Recorder
	e, err := New(recorded(&r, Config[int]{
		Transformer: func(ev Event) Sequence {
			switch ev.Type {
			case tMsg1:
				return Empty()
			case tMsg2:
				return nil
			}
			return Of(ev)
		},
	}))
	require.NoError(t, err)
	r.Reset()

	require.NoError(t, e.Dispatch(Message{Type: tMsg1}))
	require.NoError(t, e.Dispatch(Message{Type: tMsg2}))
	assert.Equal(t, []string{"transform:MESSAGE1", "transform:MESSAGE2"}, r.Strings())
}

func TestDispatch_ConsumeInterleavesWithProduction(t *testing.T) {
	var r testutil.Recorder
	consumed := map[msgtype.Type]bool{}

	e, err := New(recorded(&r, Config[int]{
		Transformer: func(ev Event) Sequence {
			if ev.Type != tEvent {
				return Of(ev)
			}
			return Generate(func(yield func(Message) bool) error {
				r.Record("produce", tMsg1)
				if !yield(Message{Type: tMsg1}) {
					return nil
				}
				// The effect of MESSAGE1 is visible before MESSAGE2 is produced.
				if !consumed[tMsg1] {
					return errors.New("MESSAGE1 not consumed yet")
				}
				r.Record("produce", tMsg2)
				yield(Message{Type: tMsg2})
				return nil
			})
		},
		Consumer: func(m Message, _ DispatchOptions[int]) error {
			consumed[m.Type] = true
			return nil
		},
	}))
	require.NoError(t, err)
	r.Reset()

	require.NoError(t, e.Dispatch(Message{Type: tEvent}))
	assert.Equal(t, []string{
		"transform:EVENT",
		"produce:MESSAGE1", "consume:MESSAGE1", "reduce:MESSAGE1",
		"produce:MESSAGE2", "consume:MESSAGE2", "reduce:MESSAGE2",
	}, r.Strings())
}

func TestDispatch_ConsumerSeesPreReduceState(t *testing.T) {
	var seen []int
	e, err := New(Config[int]{
		Transformer: func(ev Event) Sequence {
			if ev.Type == tEvent {
				return Of(Message{Type: tMsg1}, Message{Type: tMsg2})
			}
			return Of(ev)
		},
		Consumer: func(m Message, o DispatchOptions[int]) error {
			seen = append(seen, o.State())
			return nil
		},
		Reducer: countOn(tMsg1, tMsg2),
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	seen = nil

	require.NoError(t, e.Dispatch(Message{Type: tEvent}))

	// MESSAGE1 sees 0, MESSAGE2 sees the committed 1, CHANGE sees 2.
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestDispatchOptions_Accessors(t *testing.T) {
	deps := map[string]any{"db": "conn"}
	props := map[string]any{"version": 3}

	var got DispatchOptions[int]
	e, err := New(Config[int]{
		Dependencies: deps,
		APIProps:     props,
		Consumer: func(_ Message, o DispatchOptions[int]) error {
			got = o
			return nil
		},
		Reducer: countOn(tEvent),
		Logger:  quietLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, deps, got.Dependencies())
	assert.Equal(t, props, got.APIProps())
	assert.NotNil(t, got.Logger())

	// Accessors are live: a retained bundle sees later state.
	require.NoError(t, e.Dispatch(Message{Type: tEvent}))
	require.NoError(t, e.Dispatch(Message{Type: tEvent}))
	assert.Equal(t, 2, got.State())
}

func TestDispatchOptions_SynchronousDispatchFails(t *testing.T) {
	var (
		syncErr error
		saved   DispatchOptions[int]
	)
	e, err := New(Config[int]{
		Consumer: func(m Message, o DispatchOptions[int]) error {
			if m.Type == tEvent {
				saved = o
				syncErr = o.Dispatch(Message{Type: tPing})
			}
			return nil
		},
		Reducer: countOn(tPing),
		Logger:  quietLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, e.Dispatch(Message{Type: tEvent}))

	require.Error(t, syncErr)
	assert.True(t, IsReentrant(syncErr))
	assert.Equal(t, CodeReentrantDispatch, CodeOf(syncErr))
	assert.Equal(t, 0, e.State(), "rejected dispatch must not run")

	// A later turn on another goroutine succeeds with the same handle.
	done := make(chan error, 1)
	go func() { done <- saved.Dispatch(Message{Type: tPing}) }()
	require.NoError(t, <-done)
	assert.Equal(t, 1, e.State())
}

func TestDispatch_DirectReentryFromConsumerFails(t *testing.T) {
	var (
		eng      *Engine[int]
		innerErr error
	)
	eng, err := New(Config[int]{
		Consumer: func(m Message, _ DispatchOptions[int]) error {
			if m.Type == tEvent {
				innerErr = eng.Dispatch(Message{Type: tPing})
			}
			return nil
		},
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, eng.Dispatch(Message{Type: tEvent}))
	assert.ErrorIs(t, innerErr, ErrReentrantDispatch)
}

func TestDispatch_ConcurrentDispatchIsRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	e, err := New(Config[int]{
		Consumer: func(m Message, _ DispatchOptions[int]) error {
			if m.Type == tSlow {
				close(entered)
				<-release
			}
			return nil
		},
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	slow := make(chan error, 1)
	go func() { slow <- e.Dispatch(Message{Type: tSlow}) }()
	<-entered

	err = e.Dispatch(Message{Type: tEvent})
	assert.True(t, IsReentrant(err))

	close(release)
	require.NoError(t, <-slow)
	require.NoError(t, e.Dispatch(Message{Type: tEvent}))
}

func TestScenario_EventTransformedIntoTwoMessages(t *testing.T) {
	var r testutil.Recorder
	e, err := New(recorded(&r, Config[int]{
		Transformer: func(ev Event) Sequence {
			if ev.Type == tEvent {
				return Of(Message{Type: tMsg1}, Message{Type: tMsg2})
			}
			return Of(ev)
		},
	}))
	require.NoError(t, err)

	require.NoError(t, e.Dispatch(Message{Type: tEvent}))

	assert.Zero(t, r.Count("consume", "EVENT"))
	assert.Zero(t, r.Count("reduce", "EVENT"))
	assert.Zero(t, r.Count("transform", "MESSAGE1"))
	assert.Zero(t, r.Count("transform", "MESSAGE2"))
	assert.Equal(t, []string{"INIT", "MESSAGE1", "MESSAGE2"}, r.Types("consume"))
}

func TestScenario_InitialFalseIdentityReducer(t *testing.T) {
	var r testutil.Recorder
	e, err := New(recorded(&r, Config[bool]{InitialState: false}))
	require.NoError(t, err)
	assert.False(t, e.State())

	require.NoError(t, e.Dispatch(Message{Type: tEvent}))
	assert.False(t, e.State())
	assert.Zero(t, r.Count("consume", "CHANGE"))
}

func TestScenario_ReducerAlwaysTrue(t *testing.T) {
	var r testutil.Recorder
	e, err := New(recorded(&r, Config[bool]{
		InitialState: false,
		Reducer:      func(bool, Message) bool { return true },
	}))
	require.NoError(t, err)
	assert.True(t, e.State())
	assert.Equal(t, 1, r.Count("consume", "CHANGE"), "CHANGE fires at INIT")

	notified := 0
	e.Subscribe(func() { notified++ })
	require.NoError(t, e.Dispatch(Message{Type: tEvent}))
	require.NoError(t, e.Dispatch(Message{Type: tEvent}))

	assert.True(t, e.State())
	assert.Equal(t, 1, r.Count("consume", "CHANGE"), "later no-op dispatches never fire CHANGE")
	assert.Zero(t, notified)
}

func TestDispatch_TransformErrorKeepsCommittedState(t *testing.T) {
	boom := errors.New("producer failed")
	var r testutil.Recorder
	notified := 0

	e, err := New(recorded(&r, Config[int]{
		Transformer: func(ev Event) Sequence {
			if ev.Type != tEvent {
				return Of(ev)
			}
			return Generate(func(yield func(Message) bool) error {
				yield(Message{Type: tMsg1})
				return boom
			})
		},
		Reducer: countOn(tMsg1),
	}))
	require.NoError(t, err)
	e.Subscribe(func() { notified++ })

	err = e.Dispatch(Message{Type: tEvent})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageTransform, se.Stage)
	assert.Equal(t, tEvent, se.Type)

	assert.Equal(t, 1, e.State(), "MESSAGE1 stays committed")
	assert.Zero(t, r.Count("consume", "CHANGE"))
	assert.Zero(t, notified)
}

func TestDispatch_ConsumerErrorStopsBatch(t *testing.T) {
	boom := errors.New("consume failed")
	var r testutil.Recorder

	e, err := New(recorded(&r, Config[int]{
		Transformer: func(ev Event) Sequence {
			if ev.Type == tEvent {
				return Of(Message{Type: tMsg1}, Message{Type: tMsg2}, Message{Type: tMsg3})
			}
			return Of(ev)
		},
		Consumer: func(m Message, _ DispatchOptions[int]) error {
			if m.Type == tMsg2 {
				return boom
			}
			return nil
		},
		Reducer: countOn(tMsg1, tMsg2, tMsg3),
	}))
	require.NoError(t, err)

	err = e.Dispatch(Message{Type: tEvent})
	assert.ErrorIs(t, err, boom)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageConsume, se.Stage)
	assert.Equal(t, tMsg2, se.Type)

	assert.Equal(t, 1, e.State())
	assert.Zero(t, r.Count("consume", "MESSAGE3"))
	assert.Zero(t, r.Count("reduce", "MESSAGE2"))
}

func TestDispatch_ZeroTypedDerivedMessage(t *testing.T) {
	e, err := New(Config[int]{
		Transformer: func(ev Event) Sequence {
			if ev.Type == tEvent {
				return Of(Message{})
			}
			return Of(ev)
		},
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	err = e.Dispatch(Message{Type: tEvent})
	assert.ErrorIs(t, err, ErrInvalidMessage)
	assert.True(t, IsStageError(err))
	assert.False(t, IsInvalidEvent(err))
}

func TestDispatch_PanicsBecomeStageErrors(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config[int]
		stage Stage
	}{
		{
			name: "transformer",
			cfg: Config[int]{Transformer: func(ev Event) Sequence {
				if ev.Type == tEvent {
					panic("transform exploded")
				}
				return Of(ev)
			}},
			stage: StageTransform,
		},
		{
			name: "generator",
			cfg: Config[int]{Transformer: func(ev Event) Sequence {
				if ev.Type != tEvent {
					return Of(ev)
				}
				return Generate(func(yield func(Message) bool) error {
					yield(Message{Type: tMsg1})
					panic("generator exploded")
				})
			}},
			stage: StageTransform,
		},
		{
			name: "consumer",
			cfg: Config[int]{Consumer: func(m Message, _ DispatchOptions[int]) error {
				if m.Type == tEvent {
					panic(errors.New("consume exploded"))
				}
				return nil
			}},
			stage: StageConsume,
		},
		{
			name: "reducer",
			cfg: Config[int]{Reducer: func(s int, m Message) int {
				if m.Type == tEvent {
					panic("reduce exploded")
				}
				return s
			}},
			stage: StageReduce,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Logger = quietLogger()
			e, err := New(tt.cfg)
			require.NoError(t, err)

			err = e.Dispatch(Message{Type: tEvent})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrStagePanic)
			assert.ErrorContains(t, err, "exploded")

			var se *StageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.stage, se.Stage)

			// The in-flight flag is released after a panic.
			require.NoError(t, e.Dispatch(Message{Type: tPing}))
		})
	}
}

func TestSubscribe_OrderAndUnsubscribe(t *testing.T) {
	var r testutil.Recorder
	e, err := New(Config[int]{Reducer: countOn(tEvent), Logger: quietLogger()})
	require.NoError(t, err)

	e.Subscribe(func() { r.Record("sub", tMsg1) })
	unsub := e.Subscribe(func() { r.Record("sub", tMsg2) })
	e.Subscribe(func() { r.Record("sub", tMsg3) })
	assert.Equal(t, 3, e.Subscribers())

	require.NoError(t, e.Dispatch(Message{Type: tEvent}))
	assert.Equal(t, []string{"MESSAGE1", "MESSAGE2", "MESSAGE3"}, r.Types("sub"))

	unsub()
	unsub()
	assert.Equal(t, 2, e.Subscribers())

	r.Reset()
	require.NoError(t, e.Dispatch(Message{Type: tEvent}))
	assert.Equal(t, []string{"MESSAGE1", "MESSAGE3"}, r.Types("sub"))

	assert.Panics(t, func() { e.Subscribe(nil) })
}

func TestSubscribe_UnsubscribeDuringNotification(t *testing.T) {
	var r testutil.Recorder
	e, err := New(Config[int]{Reducer: countOn(tEvent), Logger: quietLogger()})
	require.NoError(t, err)

	var unsubSecond func()
	e.Subscribe(func() {
		r.Record("sub", tMsg1)
		unsubSecond()
	})
	unsubSecond = e.Subscribe(func() { r.Record("sub", tMsg2) })

	// The notification in progress works on a snapshot.
	require.NoError(t, e.Dispatch(Message{Type: tEvent}))
	assert.Equal(t, []string{"MESSAGE1", "MESSAGE2"}, r.Types("sub"))

	r.Reset()
	require.NoError(t, e.Dispatch(Message{Type: tEvent}))
	assert.Equal(t, []string{"MESSAGE1"}, r.Types("sub"))
}

func TestSubscriber_PanicStopsLaterSubscribers(t *testing.T) {
	var r testutil.Recorder
	e, err := New(Config[int]{Reducer: countOn(tEvent), Logger: quietLogger()})
	require.NoError(t, err)

	e.Subscribe(func() { r.Record("sub", tMsg1) })
	e.Subscribe(func() { panic("subscriber exploded") })
	e.Subscribe(func() { r.Record("sub", tMsg3) })

	err = e.Dispatch(Message{Type: tEvent})
	require.Error(t, err)
	assert.Equal(t, CodeSubscriberFailed, CodeOf(err))
	assert.ErrorIs(t, err, ErrSubscriberPanic)
	assert.ErrorContains(t, err, "subscriber 1 failed")

	assert.Equal(t, []string{"MESSAGE1"}, r.Types("sub"), "subscribers after the failing one are skipped")
	assert.Equal(t, 1, e.State(), "state stays committed")

	// The engine remains usable.
	err = e.Dispatch(Message{Type: tEvent})
	assert.Equal(t, CodeSubscriberFailed, CodeOf(err))
	assert.Equal(t, 2, e.State())
}

func TestSubscriber_DispatchDuringNotificationIsRejected(t *testing.T) {
	var inner error
	var e *Engine[int]
	e, err := New(Config[int]{Reducer: countOn(tEvent), Logger: quietLogger()})
	require.NoError(t, err)

	e.Subscribe(func() { inner = e.Dispatch(Message{Type: tPing}) })
	require.NoError(t, e.Dispatch(Message{Type: tEvent}))
	assert.True(t, IsReentrant(inner))
}

func TestQuota_StopsRunawayGenerator(t *testing.T) {
	stopped := false
	e, err := New(Config[int]{
		Transformer: func(ev Event) Sequence {
			if ev.Type != tEvent {
				return Of(ev)
			}
			return Generate(func(yield func(Message) bool) error {
				for yield(Message{Type: tTick}) {
				}
				stopped = true
				return nil
			})
		},
		Reducer:     countOn(tTick),
		MaxMessages: 3,
		Logger:      quietLogger(),
	})
	require.NoError(t, err)

	err = e.Dispatch(Message{Type: tEvent})
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
	assert.Equal(t, CodeMessagesExceeded, CodeOf(err))

	var qe *MessagesExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 4, qe.Messages)
	assert.Equal(t, 3, qe.Limit)
	assert.Equal(t, tTick, qe.Type)

	assert.Equal(t, 3, e.State(), "messages within the limit stay committed")
	assert.True(t, stopped, "generator released after abort")
}

func TestQuota_ChangeDoesNotCount(t *testing.T) {
	e, err := New(Config[int]{
		Reducer:     countOn(tEvent),
		MaxMessages: 1,
		Logger:      quietLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, e.Dispatch(Message{Type: tEvent}))
	assert.Equal(t, 1, e.State())
}

func TestEngines_AreIndependent(t *testing.T) {
	a, err := New(Config[int]{Reducer: countOn(tEvent), Logger: quietLogger()})
	require.NoError(t, err)
	b, err := New(Config[int]{Reducer: countOn(tEvent), Logger: quietLogger()})
	require.NoError(t, err)

	aNotified := 0
	a.Subscribe(func() { aNotified++ })

	require.NoError(t, b.Dispatch(Message{Type: tEvent}))
	require.NoError(t, b.Dispatch(Message{Type: tEvent}))

	assert.Equal(t, 0, a.State())
	assert.Equal(t, 2, b.State())
	assert.Zero(t, aNotified)
}

func TestReservedTypes_DistinctFromUserTypes(t *testing.T) {
	user := msgtype.Define("INIT", "CHANGE")

	assert.NotEqual(t, user.Get("INIT"), Init)
	assert.NotEqual(t, user.Get("CHANGE"), Change)
	assert.Equal(t, "INIT", Init.String())
	assert.True(t, IsReserved(Init))
	assert.True(t, IsReserved(Change))
	assert.False(t, IsReserved(user.Get("INIT")))

	reserved := Reserved()
	assert.Equal(t, []string{"CHANGE", "INIT"}, reserved.Names())

	// Mutating the copy leaves the engine's types alone.
	delete(reserved, "INIT")
	assert.Equal(t, Init, Reserved().Get("INIT"))
}

func TestReservedTypes_UserInitIsOrdinary(t *testing.T) {
	user := msgtype.Define("INIT")
	var r testutil.Recorder
	e, err := New(recorded(&r, Config[int]{Reducer: countOn(Init)}))
	require.NoError(t, err)
	assert.Equal(t, 1, e.State())

	require.NoError(t, e.Dispatch(Message{Type: user.Get("INIT")}))
	assert.Equal(t, 1, e.State(), "a user INIT is not the reserved INIT")
}
