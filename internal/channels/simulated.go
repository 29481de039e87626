package channels

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

const defaultSimulatedFailure = "Número de telefone inválido ou WhatsApp não disponível"

// SimulatedChannel stands in for a WhatsApp provider. Each send waits Delay
// and then succeeds with probability SuccessRate.
//
// Options: delay_ms (1000), success_rate (0.9), seed, failure_message.
type SimulatedChannel struct {
	Delay       time.Duration
	SuccessRate float64
	Failure     string

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulated(opts map[string]any) *SimulatedChannel {
	seed := uint64(getIntOption(opts, "seed", 0))
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SimulatedChannel{
		Delay:       time.Duration(getIntOption(opts, "delay_ms", 1000)) * time.Millisecond,
		SuccessRate: getFloatOption(opts, "success_rate", 0.9),
		Failure:     getStringOption(opts, "failure_message", defaultSimulatedFailure),
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (c *SimulatedChannel) Name() string {
	return "simulated"
}

func (c *SimulatedChannel) Send(ctx context.Context, msg Message) (Receipt, error) {
	if msg.To == "" {
		return Receipt{}, fmt.Errorf("recipient phone is required")
	}

	if c.Delay > 0 {
		timer := time.NewTimer(c.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Receipt{}, ctx.Err()
		}
	}

	c.mu.Lock()
	roll := c.rng.Float64()
	c.mu.Unlock()

	if roll >= c.SuccessRate {
		return Receipt{}, errors.New(c.Failure)
	}
	return Receipt{MessageID: fmt.Sprintf("sim_whatsapp_%d", time.Now().UnixNano())}, nil
}
