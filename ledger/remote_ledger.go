package ledger

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RemoteLedger speaks the HTTP wire contract of spec section 6:
//
//	POST   /records
//	PUT    /records/{id}
//	GET    /records/{id}/latest
//	GET    /records/{id}/history
//
// The contract's POST /records/{id}/audit route is not called (see the
// note above the Ledger assertion below). Idempotent reads are retried with exponential backoff bounded by the
// call's context deadline (github.com/cenkalti/backoff/v4); writes are
// never retried, since a retried create/update could double-apply against
// a backing that isn't itself idempotent.
type RemoteLedger struct {
	baseURL string
	client  *http.Client
}

// RemoteLedgerOption configures a RemoteLedger.
type RemoteLedgerOption func(*RemoteLedger)

// WithInsecureSkipVerify disables TLS certificate verification, matching
// the FABRIC_SSL_VERIFY escape hatch of spec section 6 (intended for
// local/dev remote backings only).
func WithInsecureSkipVerify() RemoteLedgerOption {
	return func(r *RemoteLedger) {
		transport, ok := r.client.Transport.(*http.Transport)
		if !ok || transport == nil {
			transport = &http.Transport{}
		}
		transport = transport.Clone()
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{}
		}
		transport.TLSClientConfig.InsecureSkipVerify = true
		r.client.Transport = transport
	}
}

// NewRemoteLedger returns a RemoteLedger targeting baseURL.
func NewRemoteLedger(baseURL string, opts ...RemoteLedgerOption) *RemoteLedger {
	r := &RemoteLedger{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Transport: &http.Transport{}, Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RemoteLedger) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ledger: encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("ledger: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("ledger: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ledger: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ledger: %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("ledger: decode response: %w", err)
		}
	}
	return nil
}

// retryRead retries an idempotent GET with exponential backoff bounded by
// ctx's deadline, per spec section 5's bounded-timeout requirement for
// every external call.
func (r *RemoteLedger) retryRead(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(op, policy)
}

// CreateRecord implements Ledger.
func (r *RemoteLedger) CreateRecord(ctx context.Context, rec RecordVersion) error {
	return r.doJSON(ctx, http.MethodPost, "/records", rec, nil)
}

// UpdateRecord implements Ledger. The server is contractually required
// (spec section 4.5, resolved as a hard requirement in SPEC_FULL.md
// section 9) to replace the latest version in place when rec.Version
// equals it, exactly like FileLedger.UpdateRecord.
func (r *RemoteLedger) UpdateRecord(ctx context.Context, rec RecordVersion) error {
	return r.doJSON(ctx, http.MethodPut, "/records/"+rec.PatientID, rec, nil)
}

// GetLatestRecord implements Ledger.
func (r *RemoteLedger) GetLatestRecord(ctx context.Context, patientID string) (RecordVersion, error) {
	var rec RecordVersion
	err := r.retryRead(ctx, func() error {
		return r.doJSON(ctx, http.MethodGet, "/records/"+patientID+"/latest", nil, &rec)
	})
	return rec, err
}

type historyResponse struct {
	History []RecordVersion `json:"history"`
}

// GetHistory implements Ledger.
func (r *RemoteLedger) GetHistory(ctx context.Context, patientID string) ([]RecordVersion, error) {
	var resp historyResponse
	err := r.retryRead(ctx, func() error {
		return r.doJSON(ctx, http.MethodGet, "/records/"+patientID+"/history", nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.History, nil
}

// AppendAuditLog is intentionally not implemented on RemoteLedger in this
// expansion (see SPEC_FULL.md section 4.5): tacore falls back to UpdateRecord for any
// backing that doesn't assert the AuditAppender capability, exercising
// both branches of spec section 4.5's capability-probe design note. A
// deployment whose remote service does support POST /records/{id}/audit
// can opt in by wrapping RemoteLedger in a small adapter; that audit
// sub-resource's availability is not guaranteed by this spec.
var _ Ledger = (*RemoteLedger)(nil)

// requestTimeout bounds every HTTP request made by a RemoteLedger's
// client (set in NewRemoteLedger); a shorter ctx deadline still ends a
// request first. It is fixed here, not taken from
// config.Config.RequestTimeout.
const requestTimeout = 30 * time.Second
