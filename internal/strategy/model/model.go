// Package model implements the generative-model extraction strategy and the
// lifecycle of its single inference session.
package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/logger"
	"github.com/dvloznov/alertledger/internal/strategy"
)

// State is the lifecycle state of a Strategy.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateResetting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateResetting:
		return "resetting"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// DefaultResetEvery is the number of extractions served by one session.
const DefaultResetEvery = 8

// Config controls session lifecycle and inference limits.
type Config struct {
	ArtifactPath string
	// ResetEvery forces a session reset after this many extractions.
	ResetEvery int
	// MaxSessionTokens also resets once the running estimate reaches it. Zero disables.
	MaxSessionTokens int
	// InferenceTimeout bounds each model call. Zero means no timeout.
	InferenceTimeout time.Duration
}

// DefaultConfig returns the standard lifecycle settings for path.
func DefaultConfig(path string) Config {
	return Config{
		ArtifactPath:     path,
		ResetEvery:       DefaultResetEvery,
		InferenceTimeout: 30 * time.Second,
	}
}

// session holds the counters and handle of the current inference context.
// It is only written while Strategy.mu is held; the counters are also
// guarded by Strategy.statusMu so snapshots never wait for inference.
type session struct {
	tokenEstimate   int
	extractionCount int
	handle          Session
}

// SessionStats is a snapshot of the strategy's session counters.
type SessionStats struct {
	State           State  `json:"-"`
	StateName       string `json:"state"`
	TokenEstimate   int    `json:"token_estimate"`
	ExtractionCount int    `json:"extraction_count"`
	Resets          int    `json:"resets"`
}

// Strategy extracts transactions with a generative model. It owns one
// exclusive session and serialises every call through mu; callers should
// invoke it from a background worker. Status reads use statusMu only.
type Strategy struct {
	runtime   Runtime
	artifacts ArtifactChecker
	cfg       Config

	mu sync.Mutex

	statusMu sync.RWMutex
	state    State
	sess     session
	resets   int
	lastErr  error
}

// New creates an uninitialized strategy. Call Initialize before use.
func New(runtime Runtime, artifacts ArtifactChecker, cfg Config) *Strategy {
	if cfg.ResetEvery <= 0 {
		cfg.ResetEvery = DefaultResetEvery
	}
	return &Strategy{
		runtime:   runtime,
		artifacts: artifacts,
		cfg:       cfg,
	}
}

// Kind implements strategy.Strategy.
func (m *Strategy) Kind() strategy.Kind { return strategy.KindModelBased }

// Ready implements strategy.Strategy. It does not wait for a running model call.
func (m *Strategy) Ready() bool {
	return m.State() == StateReady
}

// State returns the current lifecycle state.
func (m *Strategy) State() State {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.state
}

// Err returns the error that moved the strategy to Failed, if any.
func (m *Strategy) Err() error {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.lastErr
}

// Stats returns a snapshot of the session counters.
func (m *Strategy) Stats() SessionStats {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return SessionStats{
		State:           m.state,
		StateName:       m.state.String(),
		TokenEstimate:   m.sess.tokenEstimate,
		ExtractionCount: m.sess.extractionCount,
		Resets:          m.resets,
	}
}

// The helpers below are called with mu held.

func (m *Strategy) setState(state State) {
	m.statusMu.Lock()
	m.state = state
	if state == StateReady {
		m.lastErr = nil
	}
	m.statusMu.Unlock()
}

func (m *Strategy) fail(err error) {
	m.statusMu.Lock()
	m.state = StateFailed
	m.lastErr = err
	m.statusMu.Unlock()
}

func (m *Strategy) setSession(sess session) {
	m.statusMu.Lock()
	m.sess = sess
	m.statusMu.Unlock()
}

func (m *Strategy) countUsage(prompt, reply string, extraction bool) {
	m.statusMu.Lock()
	m.sess.tokenEstimate += EstimateTokens(prompt) + EstimateTokens(reply)
	if extraction {
		m.sess.extractionCount++
	}
	m.statusMu.Unlock()
}

// Initialize loads the model. On failure the strategy moves to Failed and
// the returned error is an *InitError; it may be called again later.
func (m *Strategy) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateReady {
		return nil
	}

	log := logger.FromContext(ctx)
	m.setState(StateInitializing)
	start := time.Now()

	if err := m.load(ctx); err != nil {
		m.fail(err)
		log.Error().Err(err).Str("artifact", m.cfg.ArtifactPath).Msg("Model initialization failed")
		return err
	}

	m.setState(StateReady)
	log.Info().
		Str("artifact", m.cfg.ArtifactPath).
		Dur("duration", time.Since(start)).
		Msg("Model initialized")
	return nil
}

// load opens a fresh session and zeroes the counters.
func (m *Strategy) load(ctx context.Context) error {
	path := m.cfg.ArtifactPath
	if m.artifacts != nil {
		ok, err := m.artifacts.Exists(ctx, path)
		if err != nil {
			return &InitError{Reason: FailureUnsupportedEnvironment, Path: path, Err: err}
		}
		if !ok {
			return &InitError{Reason: FailureMissingArtifact, Path: path}
		}
	}

	handle, err := m.runtime.Load(ctx, path)
	if err != nil {
		return classifyLoadError(path, err)
	}
	m.setSession(session{handle: handle})
	return nil
}

// reset releases the current session and loads a new one. A failed reload
// leaves the strategy Failed so stale state is never served.
func (m *Strategy) reset(ctx context.Context) error {
	log := logger.FromContext(ctx)
	m.setState(StateResetting)

	if m.sess.handle != nil {
		if err := m.sess.handle.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing model session failed")
		}
	}
	m.statusMu.Lock()
	m.sess = session{}
	m.resets++
	resets := m.resets
	m.statusMu.Unlock()

	if err := m.load(ctx); err != nil {
		m.fail(err)
		log.Error().Err(err).Msg("Model session reset failed")
		return fmt.Errorf("reset: %w", err)
	}

	m.setState(StateReady)
	log.Debug().Int("resets", resets).Msg("Model session reset")
	return nil
}

func (m *Strategy) shouldReset() bool {
	if m.sess.extractionCount >= m.cfg.ResetEvery {
		return true
	}
	return m.cfg.MaxSessionTokens > 0 && m.sess.tokenEstimate >= m.cfg.MaxSessionTokens
}

// generate runs one model call with the configured timeout. On a context
// overflow it resets the session and retries exactly once.
func (m *Strategy) generate(ctx context.Context, prompt string) (string, error) {
	reply, err := m.call(ctx, prompt)
	if err == nil {
		return reply, nil
	}
	if !isContextOverflow(err) {
		return "", err
	}

	log := logger.FromContext(ctx)
	log.Warn().Err(err).Msg("Model context overflow, resetting session and retrying")
	if rerr := m.reset(ctx); rerr != nil {
		return "", rerr
	}
	reply, err = m.call(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("retry after reset: %w", err)
	}
	return reply, nil
}

func (m *Strategy) call(ctx context.Context, prompt string) (string, error) {
	if m.cfg.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.InferenceTimeout)
		defer cancel()
	}
	reply, err := m.sess.handle.Generate(ctx, prompt)
	if err != nil {
		if isContextOverflow(err) && !errors.Is(err, ErrContextOverflow) {
			return "", fmt.Errorf("%w: %v", ErrContextOverflow, err)
		}
		return "", err
	}
	return reply, nil
}

// Accept implements strategy.Strategy.
func (m *Strategy) Accept(ctx context.Context, msg domain.IncomingMessage) (*domain.ExtractedTransaction, error) {
	return m.ExtractTransaction(ctx, msg.Body, msg.Sender, msg.ReceivedAt)
}

// ExtractTransaction asks the model for a transaction. It returns (nil, nil)
// when the model answers that the message is not a transaction.
func (m *Strategy) ExtractTransaction(ctx context.Context, body, sender string, ts time.Time) (*domain.ExtractedTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateReady {
		return nil, fmt.Errorf("ExtractTransaction: %w (state %s)", ErrNotReady, m.state)
	}

	if m.shouldReset() {
		if err := m.reset(ctx); err != nil {
			return nil, fmt.Errorf("ExtractTransaction: %w", err)
		}
	}

	log := logger.FromContext(ctx)
	prompt := BuildExtractionPrompt(body, sender)
	reply, err := m.generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("ExtractTransaction: generate: %w", err)
	}

	m.countUsage(prompt, reply, true)

	parsed := parseReply(reply, body, sender, ts)
	for _, note := range parsed.notes {
		log.Warn().Str("sender", sender).Msgf("Model reply substituted default: %s", note)
	}
	if parsed.tx == nil {
		log.Debug().Str("sender", sender).Msg("Model found no transaction")
		return nil, nil
	}
	return parsed.tx, nil
}

// GenerateFreeformResponse answers an open prompt with no structured parsing.
func (m *Strategy) GenerateFreeformResponse(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateReady {
		return "", fmt.Errorf("GenerateFreeformResponse: %w (state %s)", ErrNotReady, m.state)
	}

	reply, err := m.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("GenerateFreeformResponse: %w", err)
	}
	m.countUsage(prompt, reply, false)
	return CleanFreeformResponse(reply), nil
}

// Close releases the session and returns the strategy to Uninitialized.
func (m *Strategy) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.sess.handle != nil {
		err = m.sess.handle.Close()
	}
	m.setSession(session{})
	m.setState(StateUninitialized)
	return err
}

var _ strategy.Strategy = (*Strategy)(nil)
