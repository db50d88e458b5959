// Package bridge owns the mapping from (channel, userId) to an agent
// session and invokes the Agent, grounded on
// original_source/python/gateway/agent_bridge.go and the teacher's
// internal/sessions/manager.go atomic-map idiom.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nextlevelbuilder/gochat-gateway/internal/model"
)

// streamQueueDepth bounds the chunk queue used by ProcessMessageStream.
// The Python original used an unbounded asyncio.Queue; the spec calls out
// a bounded queue as an intentional upgrade for backpressure (§5, §9 Open
// Questions).
const streamQueueDepth = 32

// session is the Bridge's internal record for one (channel, userId) pair.
type session struct {
	model.ChannelSession
	channelMetadata map[string]string
	streamCallback  func(chunk string)
}

// Bridge owns the session map and mediates all Agent invocations.
type Bridge struct {
	agent Agent

	mu       sync.RWMutex
	sessions map[string]*session
}

// New creates a Bridge fronting the given Agent.
func New(agent Agent) *Bridge {
	return &Bridge{
		agent:    agent,
		sessions: make(map[string]*session),
	}
}

// GetOrCreateContext returns the existing session for (channel, userId) or
// atomically creates one. On a hit, lastActivity is refreshed.
func (b *Bridge) GetOrCreateContext(channel, userID, chatID, userName string) model.ChannelSession {
	key := SessionKey(channel, userID)

	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.sessions[key]; ok {
		s.LastActivity = time.Now()
		return s.ChannelSession
	}

	now := time.Now()
	s := &session{
		ChannelSession: model.ChannelSession{
			ContextID:     key,
			Channel:       channel,
			ChannelUserID: userID,
			ChannelChatID: chatID,
			UserName:      userName,
			CreatedAt:     now,
			LastActivity:  now,
		},
	}
	b.sessions[key] = s
	return s.ChannelSession
}

// ProcessMessage builds a UserMessage, stores channel metadata, registers
// the stream callback for the duration of the call (cleared afterward even
// on error), invokes the Agent, and returns its final response text.
// attachments must be local paths only.
func (b *Bridge) ProcessMessage(
	ctx context.Context,
	channel, userID, chatID, content, userName string,
	attachments []string,
	metadata map[string]string,
	onChunk func(chunk string),
) (string, error) {
	key := SessionKey(channel, userID)
	b.GetOrCreateContext(channel, userID, chatID, userName)

	b.mu.Lock()
	s := b.sessions[key]
	s.channelMetadata = metadata
	s.streamCallback = onChunk
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if s, ok := b.sessions[key]; ok {
			s.streamCallback = nil
		}
		b.mu.Unlock()
	}()

	msg := UserMessage{Content: content, Attachments: attachments}
	result, err := b.agent.Communicate(ctx, msg, onChunk)
	if err != nil {
		return "", fmt.Errorf("agent communicate: %w", err)
	}
	return result, nil
}

// ProcessMessageStream runs ProcessMessage in the background and returns a
// channel of text chunks terminated by a close, with backpressure bounded
// by streamQueueDepth. The background call is cancelled only through ctx:
// a caller that stops receiving before the stream ends leaves it blocked
// on the full queue until ctx is cancelled.
func (b *Bridge) ProcessMessageStream(
	ctx context.Context,
	channel, userID, chatID, content, userName string,
	attachments []string,
	metadata map[string]string,
) (<-chan string, <-chan error) {
	chunks := make(chan string, streamQueueDepth)
	errs := make(chan error, 1)

	runCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer cancel()
		defer close(chunks)
		defer close(errs)

		onChunk := func(chunk string) {
			select {
			case chunks <- chunk:
			case <-runCtx.Done():
			}
		}

		_, err := b.ProcessMessage(runCtx, channel, userID, chatID, content, userName, attachments, metadata, onChunk)
		if err != nil {
			select {
			case errs <- err:
			default:
			}
		}
	}()

	return chunks, errs
}

// GetSession returns a snapshot of the session for key, if present.
func (b *Bridge) GetSession(key string) (model.ChannelSession, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessions[key]
	if !ok {
		return model.ChannelSession{}, false
	}
	return s.ChannelSession, true
}

// ListSessions returns a snapshot copy of every session; later bridge
// mutations cannot affect the returned slice.
func (b *Bridge) ListSessions() []model.ChannelSession {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.ChannelSession, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, s.ChannelSession)
	}
	return out
}

// GetSessionsByChannel returns a snapshot of sessions for one channel.
func (b *Bridge) GetSessionsByChannel(channel string) []model.ChannelSession {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []model.ChannelSession
	for _, s := range b.sessions {
		if s.Channel == channel {
			out = append(out, s.ChannelSession)
		}
	}
	return out
}

// RemoveSession deletes a session by key.
func (b *Bridge) RemoveSession(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, key)
}

// GetActiveSessionCount returns the number of tracked sessions.
func (b *Bridge) GetActiveSessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// GetIdleSessions returns the session keys whose lastActivity is older than maxIdle.
func (b *Bridge) GetIdleSessions(maxIdle time.Duration) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cutoff := time.Now().Add(-maxIdle)
	var idle []string
	for key, s := range b.sessions {
		if s.LastActivity.Before(cutoff) {
			idle = append(idle, key)
		}
	}
	return idle
}
