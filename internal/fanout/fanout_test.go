package fanout

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastOrderingPerSubscriber(t *testing.T) {
	ch := NewChannel(KindSignal)

	var mu sync.Mutex
	var received []int
	sub := NewSubscriber(1, KindSignal, func(msg Message) error {
		mu.Lock()
		received = append(received, int(msg.Binary[0]))
		mu.Unlock()
		return nil
	})
	ch.Add(sub)

	for i := 0; i < 50; i++ {
		ch.Broadcast(Message{Binary: []byte{byte(i)}})
	}
	sub.Close()

	require.Len(t, received, 50)
	for i, v := range received {
		assert.Equal(t, i, v)
	}
}

// TestSlowSubscriberEviction is scenario S5: a fast subscriber drains
// everything while a slow one never reads; the slow one is evicted within
// send_queue_depth_limit messages and the producer never blocks.
func TestSlowSubscriberEviction(t *testing.T) {
	ch := NewChannel(KindSignal)

	var fastMu sync.Mutex
	var fastReceived int
	fast := NewSubscriber(1, KindSignal, func(msg Message) error {
		fastMu.Lock()
		fastReceived++
		fastMu.Unlock()
		return nil
	})
	ch.Add(fast)

	block := make(chan struct{})
	slow := NewSubscriberWithLimits(2, KindSignal, func(msg Message) error {
		<-block // never unblocks during this test
		return nil
	}, 8, 0)
	ch.Add(slow)

	const total = 10000
	start := time.Now()
	for i := 0; i < total; i++ {
		ch.Broadcast(Message{Binary: []byte{0, 1, 2, 3}})
	}
	elapsed := time.Since(start)

	close(block)
	fast.Close()

	assert.Less(t, elapsed, 2*time.Second, "producer must not stall on a slow subscriber")
	assert.Eventually(t, func() bool { return !slow.Alive() }, time.Second, time.Millisecond)

	fastMu.Lock()
	defer fastMu.Unlock()
	assert.Equal(t, total, fastReceived)
}

func TestChannelConcurrentMembershipDuringBroadcast(t *testing.T) {
	ch := NewChannel(KindMain)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			s := NewSubscriber(id, KindMain, func(Message) error { return nil })
			ch.Add(s)
			for j := 0; j < 20; j++ {
				ch.Broadcast(Message{JSON: map[string]int{"j": j}})
			}
			ch.Remove(id)
		}(uint64(i + 1))
	}
	wg.Wait()
	assert.Equal(t, 0, ch.Len())
}

func TestPlaneChannelRouting(t *testing.T) {
	p := NewPlane()
	assert.Same(t, p.Main, p.Channel(KindMain))
	assert.Same(t, p.Signal, p.Channel(KindSignal))
	assert.Same(t, p.ScannerAudio, p.Channel(KindScannerAudio))
}
