package broker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSub struct {
	id, identity string
	full         bool

	mu  sync.Mutex
	got []Envelope
}

func (f *fakeSub) ID() string       { return f.id }
func (f *fakeSub) Identity() string { return f.identity }
func (f *fakeSub) Deliver(env Envelope) bool {
	if f.full {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, env)
	return true
}

func (f *fakeSub) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func TestBroker_Publish(t *testing.T) {
	t.Run("should return zero when topic has no subscribers", func(t *testing.T) {
		b := New()
		require.Equal(t, 0, b.Publish("chat_alice_bob", Envelope{Payload: []byte("x")}))
		require.Empty(t, b.Topics())
	})

	t.Run("should reach every subscriber at the moment of the call", func(t *testing.T) {
		req := require.New(t)
		b := New()
		a := &fakeSub{id: "s1", identity: "alice"}
		bo := &fakeSub{id: "s2", identity: "bob"}
		b.Join("chat_alice_bob", a)
		b.Join("chat_alice_bob", bo)

		req.Equal(2, b.Publish("chat_alice_bob", Envelope{Payload: []byte("hi")}))
		req.Equal(1, a.count())
		req.Equal(1, bo.count())

		b.Leave("chat_alice_bob", bo)
		req.Equal(1, b.Publish("chat_alice_bob", Envelope{Payload: []byte("again")}))
		req.Equal(1, bo.count())
	})

	t.Run("should exclude by session and by identity", func(t *testing.T) {
		req := require.New(t)
		b := New()
		a1 := &fakeSub{id: "s1", identity: "alice"}
		a2 := &fakeSub{id: "s2", identity: "alice"}
		bo := &fakeSub{id: "s3", identity: "bob"}
		for _, s := range []*fakeSub{a1, a2, bo} {
			b.Join("voice_call_alice_bob", s)
		}

		req.Equal(2, b.Publish("voice_call_alice_bob", Envelope{}, ExcludeSession("s1")))
		req.Equal(0, a1.count())

		req.Equal(1, b.Publish("voice_call_alice_bob", Envelope{Sender: "alice"}, ExcludeIdentity("alice")))
		req.Equal(1, a2.count())
		req.Equal(2, bo.count())
	})

	t.Run("should not count subscribers with full queues", func(t *testing.T) {
		b := New()
		b.Join("t", &fakeSub{id: "s1", identity: "alice", full: true})
		b.Join("t", &fakeSub{id: "s2", identity: "bob"})
		require.Equal(t, 1, b.Publish("t", Envelope{}))
	})
}

func TestBroker_JoinLeave(t *testing.T) {
	t.Run("should be idempotent", func(t *testing.T) {
		req := require.New(t)
		b := New()
		s := &fakeSub{id: "s1", identity: "alice"}

		req.True(b.Join("t", s))
		req.False(b.Join("t", s))
		req.Equal(1, b.Subscribers("t"))

		req.True(b.Leave("t", s))
		req.False(b.Leave("t", s))
		req.Equal(0, b.Subscribers("t"))
	})

	t.Run("should remove empty topic and fire hooks", func(t *testing.T) {
		req := require.New(t)
		b := New()
		var emptied []string
		b.OnEmpty(func(topic string) { emptied = append(emptied, topic) })

		s1 := &fakeSub{id: "s1", identity: "alice"}
		s2 := &fakeSub{id: "s2", identity: "bob"}
		b.Join("voice_call_alice_bob", s1)
		b.Join("voice_call_alice_bob", s2)

		b.Leave("voice_call_alice_bob", s1)
		req.Empty(emptied)
		req.Equal([]string{"voice_call_alice_bob"}, b.Topics())

		b.Leave("voice_call_alice_bob", s2)
		req.Equal([]string{"voice_call_alice_bob"}, emptied)
		req.Empty(b.Topics())
	})

	t.Run("should list distinct identities", func(t *testing.T) {
		b := New()
		b.Join("t", &fakeSub{id: "s1", identity: "bob"})
		b.Join("t", &fakeSub{id: "s2", identity: "alice"})
		b.Join("t", &fakeSub{id: "s3", identity: "bob"})
		require.Equal(t, []string{"alice", "bob"}, b.identities("t"))
	})
}

func TestBroker_SendTo(t *testing.T) {
	req := require.New(t)
	b := New()
	a := &fakeSub{id: "s1", identity: "alice"}
	bo := &fakeSub{id: "s2", identity: "bob"}
	b.Join("t", a)
	b.Join("t", bo)

	req.True(b.SendTo("t", "s2", Envelope{Payload: []byte("direct")}))
	req.Equal(0, a.count())
	req.Equal(1, bo.count())

	req.False(b.SendTo("t", "missing", Envelope{}))
	req.False(b.SendTo("other", "s2", Envelope{}))
}

func TestBroker_ConcurrentPublishAndLeave(t *testing.T) {
	b := New()
	subs := make([]*fakeSub, 50)
	for i := range subs {
		subs[i] = &fakeSub{id: string(rune('a' + i)), identity: "u"}
		b.Join("t", subs[i])
	}

	var wg sync.WaitGroup
	for i := range subs {
		wg.Add(2)
		go func(s *fakeSub) {
			defer wg.Done()
			b.Publish("t", Envelope{})
		}(subs[i])
		go func(s *fakeSub) {
			defer wg.Done()
			b.Leave("t", s)
		}(subs[i])
	}
	wg.Wait()
	require.Empty(t, b.Topics())
}

func TestTopicNames(t *testing.T) {
	req := require.New(t)
	req.Equal("chat_alice_bob", ChatTopic("alice", "bob"))
	req.Equal(ChatTopic("alice", "bob"), ChatTopic("bob", "alice"))
	req.Equal("voice_call_alice_bob", VoiceTopic("bob", "alice"))
	req.Equal("notifications_carol", NotificationTopic("carol"))
	req.Equal("chat_alice_alice", ChatTopic("alice", "alice"))

	req.True(IsVoiceTopic("voice_call_alice_bob"))
	req.False(IsVoiceTopic("chat_alice_bob"))
	req.False(IsVoiceTopic("voice_call"))
}
