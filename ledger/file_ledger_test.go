package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileLedgerCreateThenGetLatest(t *testing.T) {
	ctx := context.Background()
	l, err := OpenFileLedger(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)

	rec := RecordVersion{PatientID: "P001", Priority: "HIGH", Threshold: 2, Version: 1}
	require.NoError(t, l.CreateRecord(ctx, rec))

	got, err := l.GetLatestRecord(ctx, "P001")
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)
}

func TestFileLedgerCreateRejectsExistingPatient(t *testing.T) {
	ctx := context.Background()
	l, err := OpenFileLedger(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)

	rec := RecordVersion{PatientID: "P001", Version: 1}
	require.NoError(t, l.CreateRecord(ctx, rec))

	err = l.CreateRecord(ctx, rec)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrPatientExists))
}

func TestFileLedgerUpdateAppendsNewVersion(t *testing.T) {
	ctx := context.Background()
	l, err := OpenFileLedger(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)

	require.NoError(t, l.CreateRecord(ctx, RecordVersion{PatientID: "P001", Version: 1}))
	require.NoError(t, l.UpdateRecord(ctx, RecordVersion{PatientID: "P001", Version: 2}))

	history, err := l.GetHistory(ctx, "P001")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, 2, history[1].Version)
}

func TestFileLedgerUpdateReplacesLatestVersionInPlace(t *testing.T) {
	ctx := context.Background()
	l, err := OpenFileLedger(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)

	require.NoError(t, l.CreateRecord(ctx, RecordVersion{PatientID: "P001", Version: 1, EncryptedFileHash: "a"}))
	require.NoError(t, l.UpdateRecord(ctx, RecordVersion{PatientID: "P001", Version: 1, EncryptedFileHash: "b"}))

	history, err := l.GetHistory(ctx, "P001")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "b", history[0].EncryptedFileHash)
}

func TestFileLedgerGetLatestUnknownPatient(t *testing.T) {
	ctx := context.Background()
	l, err := OpenFileLedger(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)

	_, err = l.GetLatestRecord(ctx, "ghost")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrPatientNotFound))
}

func TestFileLedgerAppendAuditLogViaCapability(t *testing.T) {
	ctx := context.Background()
	l, err := OpenFileLedger(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)

	require.NoError(t, l.CreateRecord(ctx, RecordVersion{PatientID: "P001", Version: 1}))

	entry := ChainEntry(GenesisHash(), AuditEntry{Event: EventRead, Timestamp: 1, Requester: "dr.alice"})
	require.NoError(t, AppendAuditLog(ctx, l, "P001", entry))

	rec, err := l.GetLatestRecord(ctx, "P001")
	require.NoError(t, err)
	require.Len(t, rec.AuditLogs, 1)
	require.Equal(t, "dr.alice", rec.AuditLogs[0].Requester)
}

func TestFileLedgerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")

	l1, err := OpenFileLedger(path)
	require.NoError(t, err)
	require.NoError(t, l1.CreateRecord(ctx, RecordVersion{PatientID: "P001", Version: 1}))

	l2, err := OpenFileLedger(path)
	require.NoError(t, err)
	got, err := l2.GetLatestRecord(ctx, "P001")
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)
}
