// Package messaging implements inter-agent inboxes and the
// character-level noise model applied to message content based on the
// sender/receiver region distance.
package messaging

import (
	"crypto/rand"
	"math/big"
	"sync"

	"github.com/google/uuid"
)

// noiseAlphabet mirrors the 62-character alphanumeric set used for
// noise replacement — digits and letters, no punctuation or whitespace,
// so corrupted characters read as static rather than as surprising
// formatting.
const noiseAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Message is one delivered, possibly noise-corrupted, inter-agent
// message.
type Message struct {
	MessageID      string  `json:"message_id"`
	Tick           uint64  `json:"tick"`
	FromAgent      string  `json:"from_agent"`
	ToAgent        string  `json:"to_agent"`
	Content        string  `json:"content"`
	NoiseFactor    float64 `json:"noise_factor"`
	Delivered      bool    `json:"delivered"`
	SenderRegion   string  `json:"sender_region"`
	ReceiverRegion string  `json:"receiver_region"`
}

// Bus routes messages into per-recipient inboxes and keeps a global
// history for observer queries.
type Bus struct {
	mu      sync.Mutex
	inboxes map[string][]Message
	all     []Message
	rng     randSource
}

// randSource abstracts the PRNG used for noise so tests can substitute a
// seeded, deterministic source; production uses crypto/rand, which is
// free to be non-deterministic.
type randSource interface {
	Intn(n int) int
	Float64() float64
}

type cryptoRand struct{}

func (cryptoRand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func (cryptoRand) Float64() float64 {
	v, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0
	}
	return float64(v.Int64()) / (1 << 53)
}

// NewBus returns an empty message bus using crypto/rand for noise.
func NewBus() *Bus {
	return &Bus{inboxes: make(map[string][]Message), rng: cryptoRand{}}
}

// NewBusWithSource returns an empty message bus drawing noise randomness
// from rng instead of crypto/rand — e.g. an entropy.Source wrapping a
// random.org client, for installations that want true external entropy
// in message corruption.
func NewBusWithSource(rng randSource) *Bus {
	return &Bus{inboxes: make(map[string][]Message), rng: rng}
}

// Send applies noise to content and delivers it into the recipient's
// inbox, also recording it in the global history.
func (b *Bus) Send(tick uint64, from, to, content string, noiseFactor float64, senderRegion, receiverRegion string) Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg := Message{
		MessageID:      "msg_" + uuid.NewString(),
		Tick:           tick,
		FromAgent:      from,
		ToAgent:        to,
		Content:        applyNoise(b.rng, content, noiseFactor),
		NoiseFactor:    noiseFactor,
		Delivered:      true,
		SenderRegion:   senderRegion,
		ReceiverRegion: receiverRegion,
	}

	b.inboxes[to] = append(b.inboxes[to], msg)
	b.all = append(b.all, msg)
	return msg
}

// applyNoise corrupts content character-by-character: at noiseFactor<=0
// it is a no-op, at >=1 every character is replaced, and in between each
// character is independently replaced with probability noiseFactor.
func applyNoise(rng randSource, content string, noiseFactor float64) string {
	if noiseFactor <= 0 {
		return content
	}

	runes := []rune(content)
	if noiseFactor >= 1 {
		out := make([]rune, len(runes))
		for i := range out {
			out[i] = rune(noiseAlphabet[rng.Intn(len(noiseAlphabet))])
		}
		return string(out)
	}

	out := make([]rune, len(runes))
	for i, r := range runes {
		if rng.Float64() < noiseFactor {
			out[i] = rune(noiseAlphabet[rng.Intn(len(noiseAlphabet))])
		} else {
			out[i] = r
		}
	}
	return string(out)
}

// GetInbox returns messages delivered to agentID with tick >= sinceTick.
func (b *Bus) GetInbox(agentID string, sinceTick uint64) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Message
	for _, m := range b.inboxes[agentID] {
		if m.Tick >= sinceTick {
			out = append(out, m)
		}
	}
	return out
}

// GetAllMessages returns every message sent within [fromTick, toTick].
func (b *Bus) GetAllMessages(fromTick, toTick uint64) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Message
	for _, m := range b.all {
		if m.Tick < fromTick || (toTick > 0 && m.Tick > toTick) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Count returns the total number of messages ever sent.
func (b *Bus) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.all)
}

// EstimateReadability maps a noise factor to a human description, used
// by the observer surface to give humans an intuition for how garbled a
// message likely was without re-deriving the noise math.
func EstimateReadability(noiseFactor float64) string {
	switch {
	case noiseFactor <= 0:
		return "crystal clear"
	case noiseFactor < 0.2:
		return "minor static"
	case noiseFactor < 0.4:
		return "noticeable interference"
	case noiseFactor < 0.6:
		return "heavy distortion"
	case noiseFactor < 0.8:
		return "barely legible"
	default:
		return "complete garbling"
	}
}
