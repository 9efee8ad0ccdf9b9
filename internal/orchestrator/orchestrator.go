// Package orchestrator drives a single contract through deployment,
// confirmation and source verification.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/pendergraft/posdeploy/internal/chains"
	"github.com/pendergraft/posdeploy/internal/chains/evm"
	"github.com/pendergraft/posdeploy/internal/config"
	"github.com/pendergraft/posdeploy/internal/observability/metrics"
	"github.com/pendergraft/posdeploy/internal/verification"
)

// Confirmation depths
const (
	// AddressConfirmations is reached before the address is reported
	AddressConfirmations uint64 = 1
	// VerifyConfirmations is reached before verification is requested
	VerifyConfirmations uint64 = 10
)

var (
	// ErrPendingTxUnavailable is returned when the transport accepted the
	// deployment but gave no handle to wait on.
	ErrPendingTxUnavailable = errors.New("pending transaction handle unavailable")
	// ErrConfirmationTimeout is returned when a confirmation wait outlives the configured timeout.
	ErrConfirmationTimeout = errors.New("timed out waiting for confirmations")
)

// Deployer broadcasts a contract creation transaction
type Deployer interface {
	Deploy(ctx context.Context, artifact *chains.Artifact, args []any) (*evm.Submission, error)
}

// CodeReader reads runtime code at an address
type CodeReader interface {
	DeployedCode(ctx context.Context, address common.Address) ([]byte, error)
}

// Verifier publishes source for a deployed contract
type Verifier interface {
	Verify(ctx context.Context, req verification.VerifyRequest) error
}

// Event is emitted on every state change and when a confirmation depth is reached
type Event struct {
	State         State
	Confirmations uint64
	Address       string
	Message       string
}

// Observer receives events synchronously from the run's goroutine
type Observer func(Event)

// Record is the in-memory result of one run. It is never persisted.
type Record struct {
	RunID                 string    `json:"runId" yaml:"run_id"`
	Network               string    `json:"network" yaml:"network"`
	ChainID               int64     `json:"chainId" yaml:"chain_id"`
	Contract              string    `json:"contract" yaml:"contract"`
	Deployer              string    `json:"deployer,omitempty" yaml:"deployer,omitempty"`
	TxHash                string    `json:"txHash,omitempty" yaml:"tx_hash,omitempty"`
	Address               string    `json:"address,omitempty" yaml:"address,omitempty"`
	ExplorerURL           string    `json:"explorerUrl,omitempty" yaml:"explorer_url,omitempty"`
	ConfirmationsObserved uint64    `json:"confirmationsObserved" yaml:"confirmations_observed"`
	BytecodeMatch         string    `json:"bytecodeMatch,omitempty" yaml:"bytecode_match,omitempty"`
	Verified              bool      `json:"verified" yaml:"verified"`
	Verification          string    `json:"verification" yaml:"verification"`
	VerificationError     string    `json:"verificationError,omitempty" yaml:"verification_error,omitempty"`
	State                 State     `json:"state" yaml:"state"`
	StartedAt             time.Time `json:"startedAt" yaml:"started_at"`
	FinishedAt            time.Time `json:"finishedAt,omitempty" yaml:"finished_at,omitempty"`
}

// Verification values of Record when no outcome was classified
const (
	VerificationPending = "pending"
	VerificationSkipped = "skipped"
)

// Target is what a run deploys and where
type Target struct {
	Network         config.NetworkProfile
	Credential      config.VerificationCredential
	Artifact        *chains.Artifact
	ConstructorArgs []any
}

// Orchestrator runs the deploy → confirm → verify pipeline
type Orchestrator struct {
	deployer Deployer
	verifier Verifier
	code     CodeReader
	target   Target

	confirmTimeout time.Duration
	checkBytecode  bool

	logger   *slog.Logger
	out      io.Writer
	observer Observer

	mu      sync.RWMutex
	current Record
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithOutput sets where console status lines are written
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) {
		o.out = w
	}
}

// WithObserver registers an event observer
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// WithConfirmTimeout bounds each confirmation wait. Zero waits indefinitely.
func WithConfirmTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.confirmTimeout = d
	}
}

// WithBytecodeCheck compares on-chain code to the artifact once confirmed
func WithBytecodeCheck(r CodeReader) Option {
	return func(o *Orchestrator) {
		o.code = r
		o.checkBytecode = r != nil
	}
}

// New creates an Orchestrator. verifier may be nil when target has no
// verification credential.
func New(deployer Deployer, verifier Verifier, target Target, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deployer: deployer,
		verifier: verifier,
		target:   target,
		logger:   slog.Default(),
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.target.ConstructorArgs == nil {
		o.target.ConstructorArgs = []any{}
	}
	return o
}

// Snapshot returns a copy of the current record. Safe for concurrent use.
func (o *Orchestrator) Snapshot() Record {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

// Run executes the pipeline once. Deploy and confirmation failures are
// returned; verification failures are logged and recorded only.
func (o *Orchestrator) Run(ctx context.Context) (*Record, error) {
	network := o.target.Network
	artifact := o.target.Artifact

	rec := &Record{
		RunID:        uuid.NewString(),
		Network:      network.Name,
		ChainID:      network.ChainID,
		Contract:     artifact.Name,
		Verification: VerificationPending,
		State:        StatePending,
		StartedAt:    time.Now().UTC(),
	}
	logger := o.logger.With("run_id", rec.RunID, "network", network.Name, "contract", artifact.Name)
	o.publish(rec, Event{State: StatePending})
	logger.Info("deployment starting", "chain_id", network.ChainID)

	// PENDING → SUBMITTED
	sub, err := o.deployer.Deploy(ctx, artifact, o.target.ConstructorArgs)
	if err != nil {
		metrics.Deploy(network.Name, "failure")
		logger.Error("deployment failed", "error", err)
		return rec, fmt.Errorf("deploying %s to %s: %w", artifact.Name, network.Name, err)
	}
	pending, ok := sub.Pending()
	if !ok {
		metrics.Deploy(network.Name, "failure")
		return rec, fmt.Errorf("deploying %s to %s: %w", artifact.Name, network.Name, ErrPendingTxUnavailable)
	}
	metrics.Deploy(network.Name, "success")

	rec.TxHash = sub.TxHash.Hex()
	rec.Deployer = sub.From.Hex()
	rec.Address = sub.Address.Hex()
	o.transition(rec, StateSubmitted, Event{Address: rec.Address})
	logger.Info("deployment submitted", "tx", rec.TxHash, "from", rec.Deployer, "nonce", sub.Nonce)
	o.printf("📤 Deployment transaction sent: %s\n", rec.TxHash)

	// SUBMITTED → CONFIRMED
	addr, err := o.wait(ctx, logger, pending, AddressConfirmations)
	if err != nil {
		return rec, err
	}
	if addr != (common.Address{}) {
		rec.Address = addr.Hex()
	}
	rec.ConfirmationsObserved = AddressConfirmations
	rec.ExplorerURL = network.AddressURL(rec.Address)
	o.transition(rec, StateConfirmed, Event{
		Confirmations: AddressConfirmations,
		Address:       rec.Address,
		Message:       "reached 1 confirmation",
	})
	logger.Info("deployment confirmed", "address", rec.Address, "confirmations", AddressConfirmations)
	o.printf("✅ %s deployed to: %s\n", artifact.Name, rec.Address)

	if o.checkBytecode {
		o.compareCode(ctx, logger, rec)
	}

	// CONFIRMED → VERIFYING | VERIFY_SKIPPED
	if !o.target.Credential.Present() || o.verifier == nil {
		rec.Verification = VerificationSkipped
		o.transition(rec, StateVerifySkipped, Event{Message: "no verification API key"})
		logger.Info("verification skipped", "reason", "no API key")
		o.printf("⏭️  Verification skipped: no API key configured\n")
		return o.finish(rec, logger), nil
	}

	o.transition(rec, StateVerifying, Event{Address: rec.Address})
	o.printf("⏳ Waiting for %d confirmations before verification...\n", VerifyConfirmations)
	if _, err := o.wait(ctx, logger, pending, VerifyConfirmations); err != nil {
		return rec, err
	}
	rec.ConfirmationsObserved = VerifyConfirmations
	o.emit(Event{
		State:         StateVerifying,
		Confirmations: VerifyConfirmations,
		Address:       rec.Address,
		Message:       "reached 10 confirmations",
	})
	logger.Info("verification depth reached", "confirmations", VerifyConfirmations)

	// VERIFYING → VERIFIED | VERIFY_FAILED
	o.printf("🔍 Verifying %s on %s...\n", rec.Address, network.Name)
	err = o.verifier.Verify(ctx, verification.VerifyRequest{
		ChainID:         network.ChainID,
		Address:         rec.Address,
		Artifact:        artifact,
		ConstructorArgs: o.target.ConstructorArgs,
	})
	outcome := verification.Classify(err)
	rec.Verification = outcome.String()
	metrics.Verification(network.Name, outcome.String())

	switch outcome {
	case verification.OutcomeVerified:
		rec.Verified = true
		o.transition(rec, StateVerified, Event{Address: rec.Address})
		logger.Info("verification succeeded", "address", rec.Address)
		o.printf("✅ Verified %s\n", rec.Address)
	case verification.OutcomeAlreadyVerified:
		rec.Verified = true
		o.transition(rec, StateVerified, Event{Address: rec.Address, Message: err.Error()})
		logger.Info("contract already verified", "address", rec.Address, "detail", err.Error())
		o.printf("✅ %s is already verified\n", rec.Address)
	default:
		rec.VerificationError = err.Error()
		o.transition(rec, StateVerifyFailed, Event{Address: rec.Address, Message: err.Error()})
		logger.Error("verification failed", "address", rec.Address, "error", err.Error())
		o.printf("⚠️  Verification failed: %s\n", err)
	}

	return o.finish(rec, logger), nil
}

// wait blocks until pending reaches depth, bounded by the confirm timeout
func (o *Orchestrator) wait(ctx context.Context, logger *slog.Logger, pending evm.Waiter, depth uint64) (common.Address, error) {
	waitCtx := ctx
	if o.confirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, o.confirmTimeout)
		defer cancel()
	}

	start := time.Now()
	addr, err := pending.Wait(waitCtx, depth)
	if err != nil {
		logger.Error("confirmation wait failed", "confirmations", depth, "error", err)
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return common.Address{}, fmt.Errorf("%w: %d confirmations after %s", ErrConfirmationTimeout, depth, o.confirmTimeout)
		}
		return common.Address{}, fmt.Errorf("waiting for %d confirmations: %w", depth, err)
	}
	metrics.ConfirmationWait(o.target.Network.Name, depth, time.Since(start))
	return addr, nil
}

// compareCode logs how the on-chain code relates to the artifact. It never fails the run.
func (o *Orchestrator) compareCode(ctx context.Context, logger *slog.Logger, rec *Record) {
	if o.target.Artifact.DeployedBytecode == "" {
		return
	}
	code, err := o.code.DeployedCode(ctx, common.HexToAddress(rec.Address))
	if err != nil {
		logger.Warn("bytecode check skipped", "error", err)
		return
	}

	match := evm.CompareBytecode(code, []byte(o.target.Artifact.DeployedBytecode))
	rec.BytecodeMatch = match.Type
	o.update(rec)
	if match.Match {
		logger.Info("on-chain bytecode matches artifact", "match", match.Type)
		return
	}
	logger.Warn("on-chain bytecode differs from artifact", "match", match.Type, "detail", match.Message)
}

func (o *Orchestrator) finish(rec *Record, logger *slog.Logger) *Record {
	rec.FinishedAt = time.Now().UTC()
	o.transition(rec, StateDone, Event{Address: rec.Address})
	logger.Info("deployment finished",
		"address", rec.Address,
		"verification", rec.Verification,
		"duration", rec.FinishedAt.Sub(rec.StartedAt).String(),
	)
	return rec
}

func (o *Orchestrator) transition(rec *Record, to State, ev Event) {
	if !CanTransition(rec.State, to) {
		// Unreachable unless Run is miswired
		panic(fmt.Sprintf("illegal transition %s → %s", rec.State, to))
	}
	rec.State = to
	ev.State = to
	o.publish(rec, ev)
}

func (o *Orchestrator) publish(rec *Record, ev Event) {
	o.update(rec)
	metrics.StageTransition(rec.Network, rec.State.String())
	o.emit(ev)
}

func (o *Orchestrator) update(rec *Record) {
	o.mu.Lock()
	o.current = *rec
	o.mu.Unlock()
}

func (o *Orchestrator) emit(ev Event) {
	if o.observer != nil {
		o.observer(ev)
	}
}

func (o *Orchestrator) printf(format string, args ...any) {
	fmt.Fprintf(o.out, format, args...)
}
