package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileLedger persists {"patients": {...}} as a single JSON document,
// written with the teacher's write-temp→fsync→rename→fsync-dir durability
// technique (node/store/manifest.go), guarded by an in-process mutex per
// spec section 5 (the file-backed ledger mutator is load-mutate-save and
// must not tear under concurrent writers).
type FileLedger struct {
	path string
	mu   sync.Mutex
}

type ledgerDocument struct {
	Patients map[string][]RecordVersion `json:"patients"`
}

// ErrPatientExists is returned by CreateRecord when non-empty history
// already exists for the patient (spec section 4.5).
var ErrPatientExists = errors.New("ledger: patient already has history")

// ErrPatientNotFound is returned when a patient has no history.
var ErrPatientNotFound = errors.New("ledger: patient not found")

// OpenFileLedger opens (creating if absent) the JSON ledger document at
// path.
func OpenFileLedger(path string) (*FileLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: mkdir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		doc := ledgerDocument{Patients: map[string][]RecordVersion{}}
		if err := writeDocumentAtomic(path, doc); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("ledger: stat %s: %w", path, err)
	}
	return &FileLedger{path: path}, nil
}

func (l *FileLedger) load() (ledgerDocument, error) {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return ledgerDocument{}, fmt.Errorf("ledger: read %s: %w", l.path, err)
	}
	var doc ledgerDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return ledgerDocument{}, fmt.Errorf("ledger: decode %s: %w", l.path, err)
	}
	if doc.Patients == nil {
		doc.Patients = map[string][]RecordVersion{}
	}
	return doc, nil
}

// writeDocumentAtomic writes doc as the ledger's crash-safe commit point:
// write temp -> fsync temp -> rename -> fsync dir. Adapted from the
// teacher's node/store/manifest.go writeManifestAtomic.
func writeDocumentAtomic(path string, doc ledgerDocument) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: encode: %w", err)
	}
	b = append(b, '\n')

	dir := filepath.Dir(path)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("ledger: open tmp: %w", err)
	}
	_, werr := f.Write(b)
	serr := f.Sync()
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("ledger: write tmp: %w", werr)
	}
	if serr != nil {
		return fmt.Errorf("ledger: fsync tmp: %w", serr)
	}
	if cerr != nil {
		return fmt.Errorf("ledger: close tmp: %w", cerr)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("ledger: rename: %w", err)
	}

	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("ledger: fsync dir open: %w", err)
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return fmt.Errorf("ledger: fsync dir: %w", err)
	}
	return d.Close()
}

// CreateRecord implements Ledger.
func (l *FileLedger) CreateRecord(_ context.Context, rec RecordVersion) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return err
	}
	if existing := doc.Patients[rec.PatientID]; len(existing) > 0 {
		return fmt.Errorf("%w: %s", ErrPatientExists, rec.PatientID)
	}
	doc.Patients[rec.PatientID] = []RecordVersion{rec}
	return writeDocumentAtomic(l.path, doc)
}

// UpdateRecord implements Ledger: replaces the latest version in place if
// rec.Version equals it, otherwise appends.
func (l *FileLedger) UpdateRecord(_ context.Context, rec RecordVersion) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return err
	}
	history := doc.Patients[rec.PatientID]
	if n := len(history); n > 0 && history[n-1].Version == rec.Version {
		history[n-1] = rec
	} else {
		history = append(history, rec)
	}
	doc.Patients[rec.PatientID] = history
	return writeDocumentAtomic(l.path, doc)
}

// GetLatestRecord implements Ledger.
func (l *FileLedger) GetLatestRecord(_ context.Context, patientID string) (RecordVersion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return RecordVersion{}, err
	}
	history := doc.Patients[patientID]
	if len(history) == 0 {
		return RecordVersion{}, fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
	}
	return history[len(history)-1], nil
}

// GetHistory implements Ledger.
func (l *FileLedger) GetHistory(_ context.Context, patientID string) ([]RecordVersion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return nil, err
	}
	return append([]RecordVersion(nil), doc.Patients[patientID]...), nil
}

// AppendAuditLog implements AuditAppender directly for the file backing.
func (l *FileLedger) AppendAuditLog(_ context.Context, patientID string, entry AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return err
	}
	history := doc.Patients[patientID]
	if len(history) == 0 {
		return fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
	}
	history[len(history)-1].AuditLogs = append(history[len(history)-1].AuditLogs, entry)
	doc.Patients[patientID] = history
	return writeDocumentAtomic(l.path, doc)
}
