// Package engine drives a proving backend through the proof lifecycle:
// compile, setup, witness, prove, verify and verifier export.
package engine

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"zerokey/artifact"
	"zerokey/circuit"
)

// State is the furthest lifecycle step the engine has reached.
type State int

const (
	Uninitialized State = iota
	Ready
	Compiling
	Compiled
	SettingUp
	KeyedUp
	WitnessComputed
	Proved
	Verified
	Failed
)

var stateNames = [...]string{
	"uninitialized", "ready", "compiling", "compiled", "setting-up",
	"keyed-up", "witness-computed", "proved", "verified", "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore caches artifacts, keypairs, proofs and verifiers in s.
func WithStore(s *artifact.Store) Option { return func(e *Engine) { e.store = s } }

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithTimeout bounds every engine call. Zero means no bound.
func WithTimeout(d time.Duration) Option { return func(e *Engine) { e.timeout = d } }

// WithRegisterer registers the engine metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option { return func(e *Engine) { e.reg = reg } }

// WithSource sets the circuit used by Prove and VerifyProof.
func WithSource(source string) Option { return func(e *Engine) { e.source = source } }

// Engine is an explicitly owned handle on a proving backend. Artifacts and
// keypairs are cached per instance; backend calls are serialized.
type Engine struct {
	backend Backend
	store   *artifact.Store
	logger  zerolog.Logger
	timeout time.Duration
	reg     prometheus.Registerer
	source  string
	metrics *metrics

	mu        sync.Mutex
	state     State
	artifacts map[string]*artifact.Artifacts
	keypairs  map[[32]byte]*artifact.Keypair

	calls  sync.Mutex
	setups singleflight.Group
}

// New returns an uninitialized engine over backend.
func New(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:   backend,
		logger:    zerolog.Nop(),
		source:    circuit.PreimageV1,
		artifacts: make(map[string]*artifact.Artifacts),
		keypairs:  make(map[[32]byte]*artifact.Keypair),
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.With().Str("component", "engine").Logger()
	e.metrics = newMetrics(e.reg)
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) advance(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Initialize checks the backend and moves the engine to Ready.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.backend == nil {
		e.advance(Failed)
		return fmt.Errorf("%w: no backend configured", ErrBackendUnavailable)
	}
	_, err := call(e, ctx, "initialize", false, func() (struct{}, error) {
		return struct{}{}, e.backend.Init()
	})
	if err != nil {
		e.advance(Failed)
		if errors.Is(err, ErrBackendUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	e.advance(Ready)
	e.logger.Debug().Msg("backend ready")
	return nil
}

// Close drops cached state and releases the backend if it holds resources.
// The engine must be initialized again before further use.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.state = Uninitialized
	e.artifacts = make(map[string]*artifact.Artifacts)
	e.keypairs = make(map[[32]byte]*artifact.Keypair)
	e.mu.Unlock()
	if c, ok := e.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ready fails unless Initialize succeeded and nothing has failed since.
func (e *Engine) ready() error {
	if s := e.State(); s == Uninitialized || s == Failed {
		return fmt.Errorf("%w: engine is %s", ErrBackendUnavailable, s)
	}
	return nil
}

type result[T any] struct {
	v   T
	err error
}

// call runs fn on its own goroutine, holding the backend lock, and returns
// early when ctx is done. A late result is dropped.
func call[T any](e *Engine, ctx context.Context, phase string, needReady bool, fn func() (T, error)) (T, error) {
	var zero T
	if needReady {
		if err := e.ready(); err != nil {
			return zero, err
		}
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan result[T], 1)
	go func() {
		e.calls.Lock()
		defer e.calls.Unlock()
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: fmt.Errorf("%w: %s: backend panic: %v", ErrBackendUnavailable, phase, r)}
			}
		}()
		if err := ctx.Err(); err != nil {
			done <- result[T]{err: err}
			return
		}
		v, err := fn()
		done <- result[T]{v: v, err: err}
	}()

	select {
	case r := <-done:
		e.metrics.observe(phase, start, r.err)
		if r.err != nil && errors.Is(r.err, ErrBackendUnavailable) {
			e.advance(Failed)
		}
		return r.v, r.err
	case <-ctx.Done():
		e.metrics.observe(phase, start, ctx.Err())
		e.logger.Warn().Str("phase", phase).Err(ctx.Err()).Msg("call abandoned")
		return zero, ctx.Err()
	}
}

// Compile returns the artifacts for source, compiling at most once per
// engine. A persisted copy in the store is reused when it matches source.
func (e *Engine) Compile(ctx context.Context, source string) (*artifact.Artifacts, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	a, ok := e.artifacts[source]
	e.mu.Unlock()
	if ok {
		return a, nil
	}

	if e.store != nil {
		if a, err := e.store.LoadArtifacts(ctx); err == nil && a.ABI.Circuit == source {
			e.cacheArtifacts(source, a)
			e.logger.Debug().Str("source", source).Msg("artifacts loaded from store")
			return a, nil
		} else if err != nil && !errors.Is(err, artifact.ErrNotFound) {
			e.logger.Warn().Err(err).Msg("ignoring stored artifacts")
		}
	}

	e.advance(Compiling)
	a, err := call(e, ctx, "compile", true, func() (*artifact.Artifacts, error) {
		return e.backend.Compile(source)
	})
	if err != nil {
		e.advance(Ready)
		return nil, wrapPhase(err, ErrCompilation)
	}
	e.cacheArtifacts(source, a)
	if e.store != nil {
		if err := e.store.SaveArtifacts(ctx, a); err != nil {
			e.logger.Warn().Err(err).Msg("persist artifacts")
		}
	}
	e.logger.Info().Str("source", source).Int("constraints", a.ConstraintCount).Msg("circuit compiled")
	return a, nil
}

func (e *Engine) cacheArtifacts(source string, a *artifact.Artifacts) {
	e.mu.Lock()
	e.artifacts[source] = a
	e.state = Compiled
	e.mu.Unlock()
}

// Setup returns the keypair for a, running trusted setup at most once per
// program. A stored keypair is reused only if it was made for this program.
func (e *Engine) Setup(ctx context.Context, a *artifact.Artifacts) (*artifact.Keypair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	hash := ProgramHash(a)
	e.mu.Lock()
	k, ok := e.keypairs[hash]
	e.mu.Unlock()
	if ok {
		return k, nil
	}

	v, err, _ := e.setups.Do(hex.EncodeToString(hash[:]), func() (any, error) {
		e.mu.Lock()
		k, ok := e.keypairs[hash]
		e.mu.Unlock()
		if ok {
			return k, nil
		}
		if k := e.storedKeypair(ctx, hash); k != nil {
			e.cacheKeypair(hash, k)
			return k, nil
		}

		e.advance(SettingUp)
		k, err := call(e, ctx, "setup", true, func() (*artifact.Keypair, error) {
			return e.backend.Setup(a)
		})
		if err != nil {
			e.advance(Compiled)
			return nil, wrapPhase(err, ErrProving)
		}
		e.metrics.setups.Inc()
		e.cacheKeypair(hash, k)
		if e.store != nil {
			if err := e.store.SaveKeypair(ctx, k); err != nil {
				e.logger.Warn().Err(err).Msg("persist keypair")
			}
		}
		e.logger.Info().Str("circuit", a.ABI.Circuit).Msg("trusted setup complete")
		return k, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*artifact.Keypair), nil
}

func (e *Engine) storedKeypair(ctx context.Context, hash [32]byte) *artifact.Keypair {
	if e.store == nil {
		return nil
	}
	k, err := e.store.LoadKeypair(ctx)
	switch {
	case errors.Is(err, artifact.ErrNotFound):
		return nil
	case err != nil:
		if isDeserialization(err) {
			e.logger.Warn().Err(err).Msg("stored keypair is corrupt, running setup")
		}
		return nil
	}
	stored, err := k.VK.BytesAt(vkProgramHash)
	if err != nil || !bytes.Equal(stored, hash[:]) {
		e.logger.Warn().Msg("stored keypair belongs to another program, running setup")
		return nil
	}
	return k
}

func (e *Engine) cacheKeypair(hash [32]byte, k *artifact.Keypair) {
	e.mu.Lock()
	e.keypairs[hash] = k
	e.state = KeyedUp
	e.mu.Unlock()
}

// ComputeWitness solves the circuit for inputs given in ABI order.
func (e *Engine) ComputeWitness(ctx context.Context, a *artifact.Artifacts, inputs []string) (*Witness, error) {
	w, err := call(e, ctx, "witness", true, func() (*Witness, error) {
		return e.backend.ComputeWitness(a, inputs)
	})
	if err != nil {
		return nil, wrapPhase(err, ErrWitness)
	}
	e.advance(WitnessComputed)
	return w, nil
}

// GenerateProof proves w with provingKey.
func (e *Engine) GenerateProof(ctx context.Context, a *artifact.Artifacts, w *Witness, provingKey []byte) (*artifact.Proof, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: no witness", ErrWitness)
	}
	p, err := call(e, ctx, "prove", true, func() (*artifact.Proof, error) {
		return e.backend.GenerateProof(a, w, provingKey)
	})
	if err != nil {
		return nil, wrapPhase(err, ErrProving)
	}
	e.advance(Proved)
	return p, nil
}

// Verify checks p against vk. A proof that does not verify yields false and
// no error.
func (e *Engine) Verify(ctx context.Context, vk artifact.Node, p *artifact.Proof) (bool, error) {
	if p == nil {
		return false, nil
	}
	ok, err := call(e, ctx, "verify", true, func() (bool, error) {
		return e.backend.Verify(vk, p)
	})
	if err != nil {
		return false, err
	}
	if ok {
		e.advance(Verified)
	}
	return ok, nil
}

// ExportVerifier renders an on-chain verifier for vk and stores it when a
// store is configured.
func (e *Engine) ExportVerifier(ctx context.Context, vk artifact.Node) (string, error) {
	src, err := call(e, ctx, "export", true, func() (string, error) {
		return e.backend.ExportSolidityVerifier(vk)
	})
	if err != nil {
		return "", err
	}
	if e.store != nil {
		if err := e.store.SaveVerifier(ctx, src); err != nil {
			return "", err
		}
	}
	return src, nil
}

// Result is the outcome of Prove.
type Result struct {
	Proof    *artifact.Proof
	Verified bool
	Output   []string
}

// Prove runs compile, setup, witness, proof and verification in order for
// the engine's circuit.
func (e *Engine) Prove(ctx context.Context, inputs []string) (*Result, error) {
	a, err := e.Compile(ctx, e.source)
	if err != nil {
		return nil, err
	}
	k, err := e.Setup(ctx, a)
	if err != nil {
		return nil, err
	}
	w, err := e.ComputeWitness(ctx, a, inputs)
	if err != nil {
		return nil, err
	}
	p, err := e.GenerateProof(ctx, a, w, k.PK)
	if err != nil {
		return nil, err
	}
	ok, err := e.Verify(ctx, k.VK, p)
	if err != nil {
		return nil, err
	}
	if ok && e.store != nil {
		if err := e.store.SaveProof(ctx, p); err != nil {
			e.logger.Warn().Err(err).Msg("persist proof")
		}
	}
	e.logger.Info().Bool("verified", ok).Str("circuit", a.ABI.Circuit).Msg("proof generated")
	return &Result{Proof: p, Verified: ok, Output: w.Output}, nil
}

// VerifyProof checks p against the engine's own keypair for its circuit.
func (e *Engine) VerifyProof(ctx context.Context, p *artifact.Proof) (bool, error) {
	k, err := e.Keypair(ctx)
	if err != nil {
		return false, err
	}
	return e.Verify(ctx, k.VK, p)
}

// Keypair compiles and sets up the engine's circuit if needed.
func (e *Engine) Keypair(ctx context.Context) (*artifact.Keypair, error) {
	a, err := e.Compile(ctx, e.source)
	if err != nil {
		return nil, err
	}
	return e.Setup(ctx, a)
}

// wrapPhase tags err with the phase sentinel unless it already carries one.
func wrapPhase(err, sentinel error) error {
	for _, s := range []error{ErrBackendUnavailable, ErrCompilation, ErrWitness, ErrProving,
		artifact.ErrDeserialization, context.Canceled, context.DeadlineExceeded} {
		if errors.Is(err, s) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
