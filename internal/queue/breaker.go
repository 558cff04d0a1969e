package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrPublisherUnavailable is returned while the publish circuit is open.
var ErrPublisherUnavailable = errors.New("job publisher unavailable")

// BreakerPublisher fails fast after consecutive publish failures instead of
// blocking every trigger on a broker that is down.
type BreakerPublisher struct {
	pub message.Publisher
	cb  *gobreaker.CircuitBreaker[struct{}]
}

var _ message.Publisher = (*BreakerPublisher)(nil)

// NewBreakerPublisher wraps pub. The circuit opens after failures consecutive
// errors and half-opens again after cooldown.
func NewBreakerPublisher(pub message.Publisher, failures uint32, cooldown time.Duration, onStateChange func(from, to string)) *BreakerPublisher {
	if failures == 0 {
		failures = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "job-publisher",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	}
	if onStateChange != nil {
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			onStateChange(from.String(), to.String())
		}
	}
	return &BreakerPublisher{
		pub: pub,
		cb:  gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Publish forwards to the wrapped publisher through the circuit.
func (b *BreakerPublisher) Publish(topic string, messages ...*message.Message) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.pub.Publish(topic, messages...)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrPublisherUnavailable, err)
	}
	return err
}

// State reports the circuit state: "closed", "half-open" or "open".
func (b *BreakerPublisher) State() string {
	return b.cb.State().String()
}

// Close closes the wrapped publisher.
func (b *BreakerPublisher) Close() error {
	return b.pub.Close()
}
