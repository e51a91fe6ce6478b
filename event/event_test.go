// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testEventType EventType = "test.event"

func TestEventBus_SubscribePublish(t *testing.T) {
	eb := NewEventBus(prometheus.NewRegistry())
	defer eb.Stop()

	subId, evtCh := eb.Subscribe(testEventType)
	require.NotEqual(t, EventSubscriberId(0), subId)

	eb.Publish(testEventType, NewEvent(testEventType, "hello"))

	select {
	case evt := <-evtCh:
		assert.Equal(t, testEventType, evt.Type)
		assert.Equal(t, "hello", evt.Data)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	eb := NewEventBus(nil)
	defer eb.Stop()

	const numSubs = 5
	chans := make([]<-chan Event, numSubs)
	for i := range numSubs {
		_, chans[i] = eb.Subscribe(testEventType)
	}

	eb.Publish(testEventType, NewEvent(testEventType, 42))

	for i, ch := range chans {
		select {
		case evt := <-ch:
			assert.Equal(t, 42, evt.Data, "subscriber %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber %d did not receive event", i)
		}
	}
}

func TestEventBus_SubscribeFunc(t *testing.T) {
	eb := NewEventBus(nil)
	defer eb.Stop()

	var received atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)
	eb.SubscribeFunc(testEventType, func(evt Event) {
		received.Add(1)
		wg.Done()
	})

	for range 3 {
		eb.Publish(testEventType, NewEvent(testEventType, nil))
	}

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for handler calls")
	}
	assert.Equal(t, int32(3), received.Load())
}

func TestEventBus_Unsubscribe(t *testing.T) {
	eb := NewEventBus(nil)
	defer eb.Stop()

	subId, evtCh := eb.Subscribe(testEventType)
	eb.Unsubscribe(testEventType, subId)

	// Channel should be closed
	_, ok := <-evtCh
	assert.False(t, ok, "channel should be closed after unsubscribe")

	// Publishing after unsubscribe should not panic
	eb.Publish(testEventType, NewEvent(testEventType, nil))
}

func TestEventBus_PublishNoSubscribers(t *testing.T) {
	eb := NewEventBus(nil)
	defer eb.Stop()
	// Should not panic or block
	eb.Publish(testEventType, NewEvent(testEventType, "nobody home"))
}

func TestEventBus_Stop(t *testing.T) {
	eb := NewEventBus(nil)

	_, ch1 := eb.Subscribe(testEventType)
	_, ch2 := eb.Subscribe(EventType("other.event"))

	eb.Stop()

	_, ok := <-ch1
	assert.False(t, ok, "channel 1 should be closed after stop")
	_, ok = <-ch2
	assert.False(t, ok, "channel 2 should be closed after stop")

	// Bus remains usable after Stop
	_, ch3 := eb.Subscribe(testEventType)
	eb.Publish(testEventType, NewEvent(testEventType, "again"))
	select {
	case evt := <-ch3:
		assert.Equal(t, "again", evt.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("bus should still deliver after Stop")
	}
	eb.Stop()
}

func TestEventBus_ConcurrentPublishSubscribe(t *testing.T) {
	eb := NewEventBus(prometheus.NewRegistry())
	defer eb.Stop()

	var wg sync.WaitGroup
	done := make(chan struct{})

	// Consumers drain their channels until closed
	for range 4 {
		_, ch := eb.Subscribe(testEventType)
		wg.Add(1)
		go func(ch <-chan Event) {
			defer wg.Done()
			for range ch {
			}
		}(ch)
	}

	// Publishers
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					eb.Publish(testEventType, NewEvent(testEventType, nil))
				}
			}
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(done)
	eb.Stop()

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-time.After(5 * time.Second):
		t.Fatal("potential deadlock in concurrent publish/subscribe")
	}
}
