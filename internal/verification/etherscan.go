// Package verification publishes contract source to Etherscan-compatible
// explorers and classifies the outcome.
package verification

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pendergraft/posdeploy/internal/chains"
	"github.com/pendergraft/posdeploy/internal/chains/evm"
)

// DefaultAPIURL is the Etherscan v2 multichain endpoint
const DefaultAPIURL = "https://api.etherscan.io/v2/api"

// VerifyRequest identifies a deployed contract and the build that produced it
type VerifyRequest struct {
	ChainID         int64
	Address         string
	Artifact        *chains.Artifact
	ConstructorArgs []any
}

// Client talks to the Etherscan contract API
type Client struct {
	apiURL       string
	apiKey       string
	httpClient   *http.Client
	limiter      *rate.Limiter
	pollInterval time.Duration
	maxPolls     int
	logger       *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithPollInterval sets the wait between status checks
func WithPollInterval(d time.Duration) Option {
	return func(client *Client) {
		client.pollInterval = d
	}
}

// WithMaxPolls bounds how many status checks are made per submission
func WithMaxPolls(n int) Option {
	return func(client *Client) {
		if n > 0 {
			client.maxPolls = n
		}
	}
}

// WithRateLimit caps outgoing requests per second
func WithRateLimit(perSecond float64) Option {
	return func(client *Client) {
		if perSecond > 0 {
			client.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(client *Client) {
		client.logger = l
	}
}

// New creates an Etherscan client. An empty apiURL selects DefaultAPIURL.
func New(apiURL, apiKey string, opts ...Option) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	c := &Client{
		apiURL: apiURL,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:      rate.NewLimiter(rate.Limit(4), 1),
		pollInterval: 5 * time.Second,
		maxPolls:     10,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// apiResponse is the envelope every Etherscan endpoint returns
type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (r *apiResponse) ok() bool {
	return r.Status == "1"
}

// text returns the result as a string, or the message when the result is not one
func (r *apiResponse) text() string {
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		return s
	}
	return r.Message
}

type sourceCodeEntry struct {
	SourceCode      string `json:"SourceCode"`
	ContractName    string `json:"ContractName"`
	CompilerVersion string `json:"CompilerVersion"`
}

// IsVerified reports whether the explorer already has source for address
func (c *Client) IsVerified(ctx context.Context, chainID int64, address string) (bool, error) {
	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)

	resp, err := c.get(ctx, chainID, q)
	if err != nil {
		return false, err
	}
	if !resp.ok() {
		return false, &APIError{Code: CodeRejected, Message: resp.text()}
	}

	var entries []sourceCodeEntry
	if err := json.Unmarshal(resp.Result, &entries); err != nil {
		return false, fmt.Errorf("decoding getsourcecode result: %w", err)
	}
	return len(entries) > 0 && entries[0].SourceCode != "", nil
}

// Verify submits the artifact's standard JSON input for address and waits
// for the explorer's verdict. A contract that already has source returns an
// APIError with CodeAlreadyVerified.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) error {
	if req.Artifact == nil || len(req.Artifact.StandardJSONInput) == 0 {
		return &APIError{Code: CodeMissingInput, Message: "artifact has no standard JSON input"}
	}
	if req.Artifact.Compiler.Version == "" {
		return &APIError{Code: CodeMissingInput, Message: "artifact has no compiler version"}
	}

	verified, err := c.IsVerified(ctx, req.ChainID, req.Address)
	if err != nil {
		return err
	}
	if verified {
		return &APIError{Code: CodeAlreadyVerified, Message: "Contract source code already verified"}
	}

	guid, err := c.submit(ctx, req)
	if err != nil {
		return err
	}
	c.logger.Info("verification submitted", "address", req.Address, "guid", guid)

	return c.await(ctx, req.ChainID, guid)
}

func (c *Client) submit(ctx context.Context, req VerifyRequest) (string, error) {
	encoded, err := evm.EncodeConstructorArgs(req.Artifact.ABI, req.ConstructorArgs)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("apikey", c.apiKey)
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("contractaddress", req.Address)
	form.Set("sourceCode", string(req.Artifact.StandardJSONInput))
	form.Set("codeformat", "solidity-standard-json-input")
	form.Set("contractname", req.Artifact.FullyQualifiedName())
	form.Set("compilerversion", req.Artifact.LongCompilerVersion())
	// Etherscan's field name is misspelled
	form.Set("constructorArguements", hex.EncodeToString(encoded))

	resp, err := c.post(ctx, req.ChainID, form)
	if err != nil {
		return "", err
	}

	msg := resp.text()
	if !resp.ok() {
		if isAlreadyVerified(msg) {
			return "", &APIError{Code: CodeAlreadyVerified, Message: msg}
		}
		return "", &APIError{Code: CodeRejected, Message: msg}
	}
	return msg, nil
}

// await polls checkverifystatus until the explorer reaches a verdict
func (c *Client) await(ctx context.Context, chainID int64, guid string) error {
	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "checkverifystatus")
	q.Set("guid", guid)

	var last string
	for i := 0; i < c.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}

		resp, err := c.get(ctx, chainID, q)
		if err != nil {
			return err
		}

		last = resp.text()
		switch {
		case resp.ok() && strings.HasPrefix(last, "Pass"):
			return nil
		case isAlreadyVerified(last):
			return &APIError{Code: CodeAlreadyVerified, Message: last}
		case strings.HasPrefix(last, "Fail"):
			return &APIError{Code: CodeFailed, Message: last}
		case strings.Contains(strings.ToLower(last), "pending"):
			c.logger.Debug("verification pending", "guid", guid, "poll", i+1)
		default:
			return &APIError{Code: CodeRejected, Message: last}
		}
	}

	return &APIError{Code: CodePending, Message: fmt.Sprintf("no verdict after %d checks: %s", c.maxPolls, last)}
}

func (c *Client) endpoint(chainID int64, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("chainid", strconv.FormatInt(chainID, 10))
	return c.apiURL + "?" + q.Encode()
}

func (c *Client) get(ctx context.Context, chainID int64, q url.Values) (*apiResponse, error) {
	q.Set("apikey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(chainID, q), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, chainID int64, form url.Values) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(chainID, nil), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*apiResponse, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{Code: CodeHTTP, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}
