// Package oracle bridges ledger requests for off-ledger decryption to the
// callbacks that deliver the plaintext.
//
// A request moves through two states: Issued (correlation entry recorded,
// oracle job in flight) and Fulfilled (callback accepted, entry deleted).
// There is no expiry; an unanswered request stays Issued.
package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/idudko/fhe-telemetry/internal/model"
)

// Kind identifies the call path that issued a request and therefore the
// shape of the cleartext tuple its callback carries.
type Kind int

const (
	// KindPerformance: four words (cpu, memory, disk, network) per metric.
	KindPerformance Kind = iota + 1
	// KindCrash: error code, memory-dump hash, process id.
	KindCrash
	// KindMetricValue: a single cpu word.
	KindMetricValue
)

func (k Kind) String() string {
	switch k {
	case KindPerformance:
		return "performance"
	case KindCrash:
		return "crash"
	case KindMetricValue:
		return "metric-value"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Gateway hands encrypted handles to the decryption oracle and returns the
// request id the oracle will answer under.
type Gateway interface {
	RequestDecryption(ctx context.Context, handles []model.EncryptedValue) (model.RequestID, error)
}

// Pending is the correlation entry of an Issued request.
type Pending struct {
	Kind      Kind
	DomainIDs []uint64
	Expected  int
	IssuedAt  time.Time
}

// Correlator owns the request id -> domain id map.
type Correlator struct {
	mu       sync.Mutex
	pending  map[model.RequestID]Pending
	gateway  Gateway
	verifier Verifier
	trusted  model.Address
}

// NewCorrelator creates a correlator that only accepts callbacks from the
// trusted oracle address.
func NewCorrelator(gateway Gateway, verifier Verifier, trusted model.Address) *Correlator {
	return &Correlator{
		pending:  make(map[model.RequestID]Pending),
		gateway:  gateway,
		verifier: verifier,
		trusted:  trusted,
	}
}

// Request asks the oracle to decrypt handles and records the correlation
// entry before returning. The lock is held across the gateway call so a fast
// callback cannot observe the request before it is recorded; gateways must
// therefore not block.
func (c *Correlator) Request(ctx context.Context, kind Kind, domainIDs []uint64, handles []model.EncryptedValue) (model.RequestID, error) {
	if len(handles) == 0 {
		return "", fmt.Errorf("%w: no values to decrypt", model.ErrInvalidInput)
	}
	if len(domainIDs) == 0 {
		return "", fmt.Errorf("%w: request has no domain id", model.ErrInvalidInput)
	}
	for _, id := range domainIDs {
		if id == 0 {
			return "", fmt.Errorf("%w: domain id 0 is reserved", model.ErrInvalidInput)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	reqID, err := c.gateway.RequestDecryption(ctx, handles)
	if err != nil {
		return "", fmt.Errorf("request decryption: %w", err)
	}
	if reqID == "" {
		return "", fmt.Errorf("request decryption: oracle returned an empty request id")
	}
	if _, exists := c.pending[reqID]; exists {
		return "", fmt.Errorf("request decryption: oracle reused request id %s", reqID)
	}

	c.pending[reqID] = Pending{
		Kind:      kind,
		DomainIDs: append([]uint64(nil), domainIDs...),
		Expected:  len(handles),
		IssuedAt:  time.Now(),
	}
	return reqID, nil
}

// Resolve authenticates a callback and decodes its cleartexts. It never
// mutates; the caller applies its domain update and then calls Consume.
//
// Checks run in order: trusted caller, proof, lookup, shape.
func (c *Correlator) Resolve(caller model.Address, reqID model.RequestID, cleartexts, proof []byte) (Pending, []uint64, error) {
	if !caller.Equal(c.trusted) {
		return Pending{}, nil, fmt.Errorf("%w: %s is not the decryption oracle", model.ErrUnauthorized, caller)
	}
	if c.verifier == nil {
		return Pending{}, nil, fmt.Errorf("%w: no verifier configured", model.ErrVerificationFailed)
	}
	if err := c.verifier.Verify(reqID, cleartexts, proof); err != nil {
		return Pending{}, nil, err
	}

	c.mu.Lock()
	p, ok := c.pending[reqID]
	c.mu.Unlock()
	if !ok || len(p.DomainIDs) == 0 || p.DomainIDs[0] == 0 {
		return Pending{}, nil, fmt.Errorf("%w: %s", model.ErrUnknownRequest, reqID)
	}

	values, err := DecodeCleartexts(cleartexts, p.Expected)
	if err != nil {
		return Pending{}, nil, err
	}
	return p, values, nil
}

// Consume moves a request to Fulfilled. Later callbacks for it are unknown.
func (c *Correlator) Consume(reqID model.RequestID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, reqID)
}

// Lookup returns the entry of an Issued request.
func (c *Correlator) Lookup(reqID model.RequestID) (Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[reqID]
	return p, ok
}

// Outstanding returns the number of Issued requests.
func (c *Correlator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
