// Package tacore implements the TA Core Orchestrator of spec section 4.7:
// upload, reconstruct, update, and history operations over the ledger,
// object store, peer NMK store, Shamir engine, and LLM classifier.
package tacore

import (
	"context"
	"fmt"
	"strings"
	"time"

	tacrypto "github.com/rubinhealth/ta-core/crypto"
	"github.com/rubinhealth/ta-core/ledger"
	"github.com/rubinhealth/ta-core/llm"
	"github.com/rubinhealth/ta-core/obslog"
	"github.com/rubinhealth/ta-core/objectstore"
	"github.com/rubinhealth/ta-core/peerstore"
	"github.com/rubinhealth/ta-core/policy"
	"github.com/rubinhealth/ta-core/taerr"
)

// Core wires together one TA instance's storage, cryptography, and
// classification dependencies.
type Core struct {
	Ledger     ledger.Ledger
	Store      *objectstore.Store
	Peers      *peerstore.Store
	PeerIDs    []string
	Classifier llm.Classifier

	locks *patientLocks
}

// New constructs a Core. It rejects fewer than 2 peer ids. With fewer peer
// ids than the widest threshold policy.Threshold can return (4, for LOW
// priority), a write whose priority needs more shares than there are
// peers fails with InvalidArgument from crypto.Split.
func New(l ledger.Ledger, store *objectstore.Store, peers *peerstore.Store, peerIDs []string, classifier llm.Classifier) (*Core, error) {
	if len(peerIDs) < 2 {
		return nil, fmt.Errorf("tacore: at least 2 peers required, got %d", len(peerIDs))
	}
	return &Core{
		Ledger:     l,
		Store:      store,
		Peers:      peers,
		PeerIDs:    peerIDs,
		Classifier: classifier,
		locks:      newPatientLocks(),
	}, nil
}

// UploadResult summarizes the outcome of a write operation (create or
// update), per spec section 4.7.
type UploadResult struct {
	PatientID string
	Priority  string
	Threshold int
	Version   int
}

// ReconstructResult is the decrypted record plus its audit trail,
// returned by ReconstructLatest.
type ReconstructResult struct {
	PatientID string
	Priority  string
	Threshold int
	Version   int
	Plaintext []byte
	AuditLogs []ledger.AuditEntry
}

// RecordSummary is one entry of GetHistory's result — metadata only, no
// plaintext and no key material.
type RecordSummary struct {
	PatientID string
	Priority  string
	Threshold int
	Version   int
	Timestamp float64
}

// UploadNewRecord creates version 1 of patientID's record, or — if a
// history already exists — appends the next version, like ta_core.py's
// upload_new_record. Any GetLatestRecord failure is treated as "no
// history": the record is written as version 1 through CreateRecord.
// Priority never regresses across versions (policy.Clamp).
func (c *Core) UploadNewRecord(ctx context.Context, patientID string, fileBytes []byte, filename, requester string) (UploadResult, error) {
	t := startTimer("upload_new_record")
	var err error
	defer t.observe(&err)

	unlock := c.locks.lock(patientID)
	defer unlock()

	var (
		version          = 1
		existingPriority policy.Priority
		existingLogs     []ledger.AuditEntry
	)
	if latest, getErr := c.Ledger.GetLatestRecord(ctx, patientID); getErr == nil {
		version = latest.Version + 1
		existingPriority = policy.Priority(latest.Priority)
		existingLogs = latest.AuditLogs
	}

	result, writeErr := c.writeVersion(ctx, patientID, fileBytes, filename, requester, version, existingPriority, existingLogs)
	err = writeErr
	return result, writeErr
}

// UpdateRecord appends a new version on top of an existing one. Unlike
// UploadNewRecord, it requires history to already exist.
func (c *Core) UpdateRecord(ctx context.Context, patientID string, fileBytes []byte, filename, requester string) (UploadResult, error) {
	t := startTimer("update_record")
	var err error
	defer t.observe(&err)

	unlock := c.locks.lock(patientID)
	defer unlock()

	latest, getErr := c.Ledger.GetLatestRecord(ctx, patientID)
	if getErr != nil {
		err = taerr.New(taerr.NotFound, "tacore.UpdateRecord", getErr)
		return UploadResult{}, err
	}

	result, writeErr := c.writeVersion(ctx, patientID, fileBytes, filename, requester, latest.Version+1, policy.Priority(latest.Priority), latest.AuditLogs)
	err = writeErr
	return result, writeErr
}

// writeVersion is the shared body of UploadNewRecord and UpdateRecord:
// classify, clamp priority, encrypt, split, wrap, and persist one new
// version.
func (c *Core) writeVersion(ctx context.Context, patientID string, fileBytes []byte, filename, requester string, version int, existingPriority policy.Priority, existingLogs []ledger.AuditEntry) (UploadResult, error) {
	classified, err := c.Classifier.Classify(ctx, filename, fileBytes)
	if err != nil {
		return UploadResult{}, taerr.New(taerr.External, "tacore.classify", err)
	}
	priority := policy.Clamp(policy.Normalize(string(classified.Priority)), existingPriority)

	threshold, err := policy.Threshold(priority)
	if err != nil {
		return UploadResult{}, taerr.New(taerr.InvalidArgument, "tacore.writeVersion", err)
	}

	aad := recordAAD(patientID, version)

	pdk, err := tacrypto.GenerateDataKey()
	if err != nil {
		return UploadResult{}, taerr.New(taerr.Internal, "tacore.writeVersion", err)
	}
	defer tacrypto.Zeroize(pdk)

	sealed, err := tacrypto.Encrypt(pdk, fileBytes, aad)
	if err != nil {
		return UploadResult{}, taerr.New(taerr.Internal, "tacore.writeVersion", err)
	}
	blob := make([]byte, 0, tacrypto.NonceLen+len(sealed.Ciphertext))
	blob = append(blob, sealed.Nonce[:]...)
	blob = append(blob, sealed.Ciphertext...)

	basePatientID, condition := parsePatientAndCondition(patientID)
	path, digest, err := c.Store.Put(basePatientID, version, blob, condition)
	if err != nil {
		return UploadResult{}, taerr.New(taerr.External, "tacore.writeVersion", err)
	}

	shares, err := tacrypto.Split(pdk, len(c.PeerIDs), threshold)
	if err != nil {
		return UploadResult{}, taerr.New(taerr.InvalidArgument, "tacore.writeVersion", err)
	}
	defer func() {
		for _, s := range shares {
			tacrypto.Zeroize(s)
		}
	}()

	sharesWrapped := make(map[string]string, len(c.PeerIDs))
	for i, peerID := range c.PeerIDs {
		wrapped, err := c.Peers.WrapShare(peerID, shares[i], aad)
		if err != nil {
			return UploadResult{}, taerr.New(taerr.Internal, "tacore.writeVersion", err)
		}
		sharesWrapped[peerID] = wrapped
	}

	event := ledger.EventUpdate
	if version == 1 {
		event = ledger.EventCreate
	}
	entry := ledger.ChainEntry(auditPrevHash(existingLogs), ledger.AuditEntry{
		Event:     event,
		Timestamp: nowSeconds(),
		Requester: requester,
		Priority:  string(priority),
		Threshold: threshold,
		Version:   version,
	})

	rec := ledger.RecordVersion{
		PatientID:         patientID,
		Priority:          string(priority),
		Threshold:         threshold,
		Version:           version,
		EncryptedFilePath: path,
		EncryptedFileHash: digest,
		SharesWrapped:     sharesWrapped,
		Timestamp:         nowSeconds(),
		AuditLogs:         append(append([]ledger.AuditEntry(nil), existingLogs...), entry),
	}

	if version == 1 {
		if err := c.Ledger.CreateRecord(ctx, rec); err != nil {
			return UploadResult{}, taerr.New(taerr.External, "tacore.writeVersion", err)
		}
	} else {
		if err := c.Ledger.UpdateRecord(ctx, rec); err != nil {
			return UploadResult{}, taerr.New(taerr.External, "tacore.writeVersion", err)
		}
	}

	return UploadResult{PatientID: patientID, Priority: string(priority), Threshold: threshold, Version: version}, nil
}

// ReconstructLatest recovers the plaintext of patientID's latest version
// by unwrapping threshold shares from the configured peer subset and
// running Shamir reconstruction, then verifying the blob digest and AEAD
// tag before returning anything to the caller.
func (c *Core) ReconstructLatest(ctx context.Context, patientID, requester string) (ReconstructResult, error) {
	t := startTimer("reconstruct_latest")
	var err error
	defer t.observe(&err)

	unlock := c.locks.lock(patientID)
	defer unlock()

	rec, getErr := c.Ledger.GetLatestRecord(ctx, patientID)
	if getErr != nil {
		err = taerr.New(taerr.NotFound, "tacore.ReconstructLatest", getErr)
		return ReconstructResult{}, err
	}

	aad := recordAAD(patientID, rec.Version)

	if rec.Threshold > len(c.PeerIDs) {
		err = taerr.New(taerr.Internal, "tacore.ReconstructLatest", fmt.Errorf("threshold %d exceeds configured peer count %d", rec.Threshold, len(c.PeerIDs)))
		return ReconstructResult{}, err
	}

	shares := make([][]byte, 0, rec.Threshold)
	defer func() {
		for _, s := range shares {
			tacrypto.Zeroize(s)
		}
	}()
	for _, peerID := range c.PeerIDs[:rec.Threshold] {
		wrapped, ok := rec.SharesWrapped[peerID]
		if !ok {
			err = taerr.New(taerr.Integrity, "tacore.ReconstructLatest", fmt.Errorf("missing wrapped share for peer %q", peerID))
			return ReconstructResult{}, err
		}
		share, unwrapErr := c.Peers.UnwrapShare(peerID, wrapped, aad)
		if unwrapErr != nil {
			err = taerr.New(taerr.Integrity, "tacore.ReconstructLatest", unwrapErr)
			return ReconstructResult{}, err
		}
		shares = append(shares, share)
	}

	pdk, recErr := tacrypto.Reconstruct(shares)
	if recErr != nil {
		err = taerr.New(taerr.Internal, "tacore.ReconstructLatest", recErr)
		return ReconstructResult{}, err
	}
	defer tacrypto.Zeroize(pdk)

	blob, getBlobErr := c.Store.Get(rec.EncryptedFilePath)
	if getBlobErr != nil {
		err = taerr.New(taerr.External, "tacore.ReconstructLatest", getBlobErr)
		return ReconstructResult{}, err
	}
	if objectstore.Hash(blob) != rec.EncryptedFileHash {
		err = taerr.New(taerr.Integrity, "tacore.ReconstructLatest", fmt.Errorf("encrypted file hash mismatch for %s", patientID))
		return ReconstructResult{}, err
	}
	if len(blob) < tacrypto.NonceLen {
		err = taerr.New(taerr.Integrity, "tacore.ReconstructLatest", fmt.Errorf("blob shorter than nonce for %s", patientID))
		return ReconstructResult{}, err
	}
	var nonce [tacrypto.NonceLen]byte
	copy(nonce[:], blob[:tacrypto.NonceLen])
	ciphertext := blob[tacrypto.NonceLen:]

	plaintext, decErr := tacrypto.Decrypt(pdk, nonce, ciphertext, aad)
	if decErr != nil {
		err = taerr.New(taerr.Integrity, "tacore.ReconstructLatest", decErr)
		return ReconstructResult{}, err
	}

	entry := ledger.ChainEntry(auditPrevHash(rec.AuditLogs), ledger.AuditEntry{
		Event:     ledger.EventRead,
		Timestamp: nowSeconds(),
		Requester: requester,
		Version:   rec.Version,
	})
	if appendErr := ledger.AppendAuditLog(ctx, c.Ledger, patientID, entry); appendErr != nil {
		// Read-path audit append failures are logged-and-continue per
		// spec section 7: the read already succeeded and the plaintext
		// must still reach the caller.
		obslog.WithComponent("tacore").Error().Err(appendErr).Str("patient_id", patientID).Msg("append read audit entry failed")
	}

	return ReconstructResult{
		PatientID: rec.PatientID,
		Priority:  rec.Priority,
		Threshold: rec.Threshold,
		Version:   rec.Version,
		Plaintext: plaintext,
		AuditLogs: append(append([]ledger.AuditEntry(nil), rec.AuditLogs...), entry),
	}, nil
}

// GetHistory returns metadata for every version on file for patientID, in
// storage order (oldest first). It never reads plaintext or key material.
func (c *Core) GetHistory(ctx context.Context, patientID string) ([]RecordSummary, error) {
	t := startTimer("get_history")
	var err error
	defer t.observe(&err)

	history, getErr := c.Ledger.GetHistory(ctx, patientID)
	if getErr != nil {
		err = taerr.New(taerr.External, "tacore.GetHistory", getErr)
		return nil, err
	}
	out := make([]RecordSummary, len(history))
	for i, r := range history {
		out[i] = RecordSummary{
			PatientID: r.PatientID,
			Priority:  r.Priority,
			Threshold: r.Threshold,
			Version:   r.Version,
			Timestamp: r.Timestamp,
		}
	}
	return out, nil
}

// parsePatientAndCondition splits a record key of the form "<patient>" or
// "<patient>_<condition>" into its base patient id and optional
// condition, mirroring ta_core.py's _parse_patient_and_condition.
func parsePatientAndCondition(recordKey string) (base, condition string) {
	rk := strings.TrimSpace(recordKey)
	idx := strings.Index(rk, "_")
	if idx == -1 {
		return rk, ""
	}
	base = strings.TrimSpace(rk[:idx])
	condition = strings.TrimSpace(rk[idx+1:])
	if base == "" {
		base = rk
	}
	return base, condition
}

func recordAAD(patientID string, version int) []byte {
	return []byte(fmt.Sprintf("%s:%d", patientID, version))
}

func auditPrevHash(log []ledger.AuditEntry) string {
	if len(log) == 0 {
		return ledger.GenesisHash()
	}
	return log[len(log)-1].EntryHash
}

// nowSeconds is the single place this package reads wall-clock time for
// ledger and audit timestamps, so those can be made deterministic in tests
// by swapping it out (metrics timers read time.Now separately).
var nowSeconds = func() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
