package oracle

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/idudko/fhe-telemetry/internal/model"
	"github.com/idudko/fhe-telemetry/internal/workerpool"
)

// Receiver is the callback entry point on the ledger side.
type Receiver interface {
	Deliver(ctx context.Context, caller model.Address, reqID model.RequestID, cleartexts, proof []byte) error
}

// Oracle is the off-ledger decryption service. It holds the private key,
// answers each request exactly once and attests the result with its Signer.
type Oracle struct {
	addr   model.Address
	key    *rsa.PrivateKey
	signer Signer
	pool   *workerpool.Pool

	mu       sync.RWMutex
	receiver Receiver
}

// New creates an oracle. workers and queueSize bound the decryption pool.
func New(addr model.Address, key *rsa.PrivateKey, signer Signer, workers, queueSize int) *Oracle {
	return &Oracle{
		addr:   addr,
		key:    key,
		signer: signer,
		pool:   workerpool.New("oracle", workers, queueSize),
	}
}

// Address is the identity the oracle presents on callbacks.
func (o *Oracle) Address() model.Address {
	return o.addr
}

// PublicKey is the key clients encrypt values under.
func (o *Oracle) PublicKey() *rsa.PublicKey {
	return &o.key.PublicKey
}

// Start attaches the receiver and launches the workers.
func (o *Oracle) Start(ctx context.Context, r Receiver) {
	o.mu.Lock()
	o.receiver = r
	o.mu.Unlock()
	o.pool.Start(ctx)
	log.Info().Str("oracle", string(o.addr)).Msg("decryption oracle started")
}

// Stop detaches the receiver and waits for in-flight jobs. Later requests
// are ErrUnavailable.
func (o *Oracle) Stop() {
	o.mu.Lock()
	o.receiver = nil
	o.mu.Unlock()
	o.pool.Stop()
	log.Info().Str("oracle", string(o.addr)).Msg("decryption oracle stopped")
}

// RequestDecryption implements Gateway. It never blocks: a full queue, a
// stopped oracle or a cancelled start context is ErrUnavailable.
func (o *Oracle) RequestDecryption(ctx context.Context, handles []model.EncryptedValue) (model.RequestID, error) {
	o.mu.RLock()
	receiver := o.receiver
	o.mu.RUnlock()
	if receiver == nil {
		return "", fmt.Errorf("%w: oracle is not running", model.ErrUnavailable)
	}

	reqID := model.RequestID(uuid.NewString())
	batch := append([]model.EncryptedValue(nil), handles...)

	ok := o.pool.TryEnqueue(func(ctx context.Context) error {
		return o.fulfil(ctx, receiver, reqID, batch)
	})
	if !ok {
		return "", fmt.Errorf("%w: oracle queue is full or shut down", model.ErrUnavailable)
	}

	log.Debug().Str("request_id", string(reqID)).Int("handles", len(handles)).Msg("decryption request queued")
	return reqID, nil
}

func (o *Oracle) fulfil(ctx context.Context, r Receiver, reqID model.RequestID, handles []model.EncryptedValue) error {
	values := make([]uint64, len(handles))
	for i, h := range handles {
		v, err := decryptValue(o.key, h)
		if err != nil {
			return fmt.Errorf("request %s: decrypt handle %d: %w", reqID, i, err)
		}
		values[i] = v
	}

	cleartexts := EncodeCleartexts(values)
	proof, err := o.signer.Sign(reqID, cleartexts)
	if err != nil {
		return fmt.Errorf("request %s: sign cleartexts: %w", reqID, err)
	}

	if err := r.Deliver(ctx, o.addr, reqID, cleartexts, proof); err != nil {
		return fmt.Errorf("request %s: deliver: %w", reqID, err)
	}

	log.Debug().Str("request_id", string(reqID)).Msg("decryption request fulfilled")
	return nil
}
