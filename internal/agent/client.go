package agent

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/idudko/fhe-telemetry/internal/auth"
	"github.com/idudko/fhe-telemetry/internal/model"
	"github.com/idudko/fhe-telemetry/internal/netutil"
	"github.com/idudko/fhe-telemetry/pkg/crypto"
	"github.com/idudko/fhe-telemetry/pkg/hash"
	"github.com/idudko/fhe-telemetry/pkg/pool"
)

// APIError is a non-2xx answer from the server. It unwraps to the model
// error kind matching the status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return model.ErrInvalidInput
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.ErrUnauthorized
	case http.StatusNotFound:
		return model.ErrNotFound
	case http.StatusUnprocessableEntity:
		return model.ErrSerialization
	case http.StatusServiceUnavailable:
		return model.ErrUnavailable
	default:
		return nil
	}
}

// Client talks to the server API. Request bodies are gzip compressed and,
// when a key is set, signed; signed responses are verified.
type Client struct {
	baseURL string
	key     string
	realIP  string
	http    *retryablehttp.Client

	mu     sync.RWMutex
	token  string
	wallet *auth.Wallet
}

func NewClient(address, key string) *Client {
	base := strings.TrimRight(address, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.CheckRetry = retryPolicy
	// Hand the last response back instead of a generic "giving up" error so
	// the status can be mapped.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{baseURL: base, key: key, http: rc}
	if ip, err := netutil.LocalIPv4(); err == nil {
		c.realIP = ip.String()
	} else {
		log.Debug().Err(err).Msg("X-Real-IP will not be sent")
	}
	return c
}

// retryPolicy keeps the library policy for reads. A POST is retried only
// when no response came back: once the server has answered, the write may
// have been applied and must not be replayed.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil && resp.Request != nil && resp.Request.Method == http.MethodPost {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

type challengeRequest struct {
	Address model.Address `json:"address"`
}

type challengeResponse struct {
	Challenge string `json:"challenge"`
}

type sessionRequest struct {
	Challenge string `json:"challenge"`
	PublicKey []byte `json:"publicKey"`
	Signature []byte `json:"signature"`
}

type sessionResponse struct {
	Token string `json:"token"`
}

// Login signs a server challenge with wallet to open a session for its
// address. Later calls carry the token and log in again when it is
// rejected.
func (c *Client) Login(ctx context.Context, wallet *auth.Wallet) error {
	pub, err := wallet.PublicKey()
	if err != nil {
		return err
	}
	var ch challengeResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/session/challenge", challengeRequest{Address: wallet.Address()}, &ch); err != nil {
		return err
	}
	sig, err := wallet.Sign(ch.Challenge)
	if err != nil {
		return err
	}
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/session", sessionRequest{Challenge: ch.Challenge, PublicKey: pub, Signature: sig}, &resp); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = resp.Token
	c.wallet = wallet
	c.mu.Unlock()
	return nil
}

// authed is do for calls behind a session. A 401 means the token expired or
// the server lost its secret, so it logs in again and retries once.
func (c *Client) authed(ctx context.Context, method, path string, in, out any) error {
	err := c.do(ctx, method, path, in, out)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return err
	}
	c.mu.RLock()
	wallet := c.wallet
	c.mu.RUnlock()
	if wallet == nil {
		return err
	}

	log.Info().Str("path", path).Msg("session rejected, logging in again")
	if err := c.Login(ctx, wallet); err != nil {
		return fmt.Errorf("renew session: %w", err)
	}
	return c.do(ctx, method, path, in, out)
}

// OracleKey fetches the public key values must be encrypted under.
func (c *Client) OracleKey(ctx context.Context) (*rsa.PublicKey, error) {
	var pem []byte
	if err := c.do(ctx, http.MethodGet, "/api/v1/oracle/key", nil, &pem); err != nil {
		return nil, err
	}
	return crypto.ParsePublicKeyPEM(pem)
}

type submitMetricRequest struct {
	CPU     model.EncryptedValue `json:"cpu"`
	Memory  model.EncryptedValue `json:"memory"`
	Disk    model.EncryptedValue `json:"disk"`
	Network model.EncryptedValue `json:"network"`
}

type idResponse struct {
	ID uint64 `json:"id"`
}

func (c *Client) SubmitMetric(ctx context.Context, cpu, memory, disk, network model.EncryptedValue) (uint64, error) {
	var resp idResponse
	req := submitMetricRequest{CPU: cpu, Memory: memory, Disk: disk, Network: network}
	if err := c.authed(ctx, http.MethodPost, "/api/v1/metrics", req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

type createRecordRequest struct {
	MetricType string `json:"metricType"`
	Value      string `json:"value"`
}

func (c *Client) CreateRecord(ctx context.Context, metricType, value string) (model.MetricRecord, error) {
	var rec model.MetricRecord
	err := c.authed(ctx, http.MethodPost, "/api/v1/records", createRecordRequest{MetricType: metricType, Value: value}, &rec)
	return rec, err
}

type analyzeRequest struct {
	MetricIDs []uint64 `json:"metricIds"`
}

type requestResponse struct {
	RequestID model.RequestID `json:"requestId"`
}

func (c *Client) AnalyzePerformance(ctx context.Context, ids []uint64) (model.RequestID, error) {
	var resp requestResponse
	if err := c.authed(ctx, http.MethodPost, "/api/v1/analysis/performance", analyzeRequest{MetricIDs: ids}, &resp); err != nil {
		return "", err
	}
	return resp.RequestID, nil
}

// do sends in as gzip JSON and decodes the answer into out. A *[]byte out
// receives the raw body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var (
		body []byte
		sum  string
	)
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		if body, err = gzipBytes(data); err != nil {
			return err
		}
		// The server checks the signature after inflating the body.
		sum = hash.ComputeHash(data, c.key)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Encoding", "gzip")
	}
	if sum != "" {
		req.Header.Set(hash.HeaderName, sum)
	}
	if c.realIP != "" {
		req.Header.Set("X-Real-IP", c.realIP)
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if c.key != "" {
		if got := resp.Header.Get(hash.HeaderName); got != "" && !hash.ValidateHash(respBody, c.key, got) {
			return fmt.Errorf("%w: response signature mismatch", model.ErrVerificationFailed)
		}
	}

	switch v := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*v = respBody
		return nil
	default:
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}

type gzipBuffer struct {
	buf bytes.Buffer
	zw  *gzip.Writer
}

func newGzipBuffer() *gzipBuffer {
	g := &gzipBuffer{}
	g.zw = gzip.NewWriter(&g.buf)
	return g
}

func (g *gzipBuffer) Reset() {
	g.buf.Reset()
	g.zw.Reset(&g.buf)
}

var gzipBuffers = pool.New(newGzipBuffer)

func gzipBytes(data []byte) ([]byte, error) {
	g := gzipBuffers.Get()
	defer gzipBuffers.Put(g)

	if _, err := g.zw.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write data to gzip writer: %w", err)
	}
	if err := g.zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return bytes.Clone(g.buf.Bytes()), nil
}

// Describe renders err for an operator. Cancellation is not a failure.
func Describe(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "cancelled by user"
	default:
		return "operation failed: " + err.Error()
	}
}
