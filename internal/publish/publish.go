// Package publish mirrors session state into Redis for consumers outside the
// process.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ayusman/neuropose/internal/log"
	"github.com/ayusman/neuropose/internal/session"
)

const (
	// StateKey holds the latest state JSON.
	StateKey = "neuropose:state"
	// StateChannel receives every state JSON.
	StateChannel = "neuropose:state"
	// ActionsKey is a list of action changes, newest first.
	ActionsKey = "neuropose:actions"
	// StateTTL expires the latest state when the process goes away.
	StateTTL = time.Minute
	// MaxActions is how many action changes ActionsKey keeps.
	MaxActions = 100
)

// ActionChange is one entry of ActionsKey.
type ActionChange struct {
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// Publisher writes session state to Redis.
type Publisher struct {
	client     *redis.Client
	lastAction string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Publisher{client: client}, nil
}

// Connect calls New up to attempts times, backing off a second more after
// each failure.
func Connect(ctx context.Context, addr, password string, db, attempts int) (*Publisher, error) {
	var err error
	for i := 0; i < attempts; i++ {
		var p *Publisher
		p, err = New(ctx, addr, password, db)
		if err == nil {
			log.Info("connected to redis", "addr", addr)
			return p, nil
		}
		log.Warn("redis connection attempt failed", "attempt", i+1, "error", err)

		if i < attempts-1 {
			select {
			case <-time.After(time.Duration(i+1) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, err
}

// Publish stores st as the latest state, announces it, and appends to the
// action list when the action changed since the last call.
func (p *Publisher) Publish(ctx context.Context, st session.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Set(ctx, StateKey, data, StateTTL)
	pipe.Publish(ctx, StateChannel, data)

	action := string(st.Action)
	if action != p.lastAction {
		change, err := json.Marshal(ActionChange{
			Action:     action,
			Confidence: st.Confidence,
			At:         st.UpdatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal action change: %w", err)
		}
		pipe.LPush(ctx, ActionsKey, change)
		pipe.LTrim(ctx, ActionsKey, 0, MaxActions-1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish state: %w", err)
	}

	p.lastAction = action
	return nil
}

// Run publishes every state from states until the channel closes or ctx ends.
func (p *Publisher) Run(ctx context.Context, states <-chan session.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if err := p.Publish(ctx, st); err != nil {
				log.Debug("redis publish failed", "error", err)
			}
		}
	}
}

// Latest returns the stored state.
func (p *Publisher) Latest(ctx context.Context) (session.State, error) {
	var st session.State
	data, err := p.client.Get(ctx, StateKey).Bytes()
	if err != nil {
		return st, err
	}
	return st, json.Unmarshal(data, &st)
}

// Actions returns up to n action changes, newest first.
func (p *Publisher) Actions(ctx context.Context, n int64) ([]ActionChange, error) {
	data, err := p.client.LRange(ctx, ActionsKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get actions: %w", err)
	}

	changes := make([]ActionChange, 0, len(data))
	for _, d := range data {
		var c ActionChange
		if err := json.Unmarshal([]byte(d), &c); err != nil {
			continue
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// Subscribe returns a Redis subscription to StateChannel.
func (p *Publisher) Subscribe(ctx context.Context) *redis.PubSub {
	return p.client.Subscribe(ctx, StateChannel)
}

// Ping checks the connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
