package records

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crytic/crossguard/replay"
	"github.com/crytic/crossguard/types"
	"github.com/crytic/medusa-geth/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	victimA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	victimB = common.HexToAddress("0x000000000000000000000000000000000000000b")
)

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	store, err := Open(dir)
	require.NoError(t, err)
	return store
}

func newFinding(victim common.Address, target string) *types.Finding {
	return &types.Finding{
		RunID:             uuid.NewString(),
		DetectedAt:        time.Unix(1_700_000_000, 0).UTC(),
		TargetTxHash:      common.HexToHash("0x01"),
		TargetFunction:    target,
		VictimTxHash:      common.HexToHash("0x02"),
		VictimContract:    victim,
		VictimFunction:    "withdraw()",
		DependentFunction: "transfer(address,uint256)",
		DependentSelector: "0xa9059cbb",
	}
}

func TestFindingsAreAppendedPerVictim(t *testing.T) {
	dir, err := os.MkdirTemp("", "records")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	store := openStore(t, dir)
	require.NoError(t, store.AppendFinding(newFinding(victimA, "swap()")))
	require.NoError(t, store.AppendFinding(newFinding(victimA, "flash()")))
	require.NoError(t, store.AppendFinding(newFinding(victimB, "swap()")))
	assert.Equal(t, filepath.Join(dir, DatabaseFileName), store.Path())
	require.NoError(t, store.Close())

	// Findings survive reopening the database
	store = openStore(t, dir)
	defer store.Close()

	findings, err := store.Findings(victimA)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "swap()", findings[0].TargetFunction)
	assert.Equal(t, "flash()", findings[1].TargetFunction)
	assert.Equal(t, "0xa9059cbb", findings[0].DependentSelector)
	assert.True(t, findings[0].DetectedAt.Equal(time.Unix(1_700_000_000, 0)))
	assert.NotEqual(t, findings[0].RunID, findings[1].RunID)

	contracts, err := store.VictimContracts()
	require.NoError(t, err)
	assert.Equal(t, []common.Address{victimA, victimB}, contracts)

	findings, err = store.Findings(common.HexToAddress("0x0c"))
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestReplayRecords(t *testing.T) {
	dir, err := os.MkdirTemp("", "records")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	store := openStore(t, dir)
	defer store.Close()

	root := replay.NewCallGraphNode(victimA, replay.RootLabel, true, [4]byte{1, 2, 3, 4})
	root.AddChild(replay.NewCallGraphNode(victimB, "unknown", false, [4]byte{5, 6, 7, 8}))
	record := &replay.Record{
		DelegateCallRecord: map[common.Address]common.Address{victimA: victimB},
		CallGraph:          root,
	}
	hash := common.HexToHash("0xabc")
	require.NoError(t, store.PutReplayRecord(hash, record))

	stored, err := store.ReplayRecord(hash)
	require.NoError(t, err)
	assert.Equal(t, record, stored)

	_, err = store.ReplayRecord(common.HexToHash("0xdef"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestVerifications(t *testing.T) {
	dir, err := os.MkdirTemp("", "records")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	store := openStore(t, dir)
	defer store.Close()

	first := &types.Verification{TxHash: common.HexToHash("0x02"), ExecutedOK: true, OnChainSuccess: true, Result: "Stop"}
	second := &types.Verification{TxHash: common.HexToHash("0x01"), ExecutedOK: false, OnChainSuccess: true, Result: "Revert"}
	require.NoError(t, store.PutVerification(first))
	require.NoError(t, store.PutVerification(second))

	verifications, err := store.Verifications()
	require.NoError(t, err)
	require.Len(t, verifications, 2)
	assert.Equal(t, *second, verifications[0])
	assert.False(t, verifications[0].Matched())
	assert.True(t, verifications[1].Matched())
}

func TestUnknownContracts(t *testing.T) {
	dir, err := os.MkdirTemp("", "records")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	store := openStore(t, dir)
	defer store.Close()

	require.NoError(t, store.AddUnknownContracts(nil))
	require.NoError(t, store.AddUnknownContracts([]common.Address{victimB, victimA}))
	require.NoError(t, store.AddUnknownContracts([]common.Address{victimB}))

	contracts, err := store.UnknownContracts()
	require.NoError(t, err)
	assert.Equal(t, []common.Address{victimA, victimB}, contracts)
}
