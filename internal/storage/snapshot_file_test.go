package storage

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ammengine/internal/model"
)

func TestFileSnapshotStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	store := &FileSnapshotStore{Path: path}

	if _, ok, err := store.LoadSnapshot(context.Background()); err != nil || ok {
		t.Fatalf("expected empty store, ok=%v err=%v", ok, err)
	}

	snap := model.Snapshot{
		TakenAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Pools: []model.PoolView{{
			ID: "p", TokenA: "STX", TokenB: "USDA",
			ReserveA: big.NewInt(100), ReserveB: big.NewInt(50), TotalShares: big.NewInt(70), FeeBps: 30,
		}},
		Fees:   []model.FeeBalance{{PoolID: "p", Token: "STX", Amount: big.NewInt(1)}},
		Admins: []string{"admin"},
	}
	if err := store.SaveSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file should be renamed away, stat err=%v", err)
	}

	got, ok, err := store.LoadSnapshot(context.Background())
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(got.Pools) != 1 || got.Pools[0].ReserveB.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("pool mismatch: %+v", got.Pools)
	}
	if got.Fees[0].Amount.Int64() != 1 || got.Admins[0] != "admin" {
		t.Fatalf("snapshot mismatch: %+v", got)
	}
}

func TestFileSnapshotStoreDirectoryPath(t *testing.T) {
	store := &FileSnapshotStore{Path: t.TempDir()}
	if _, _, err := store.LoadSnapshot(context.Background()); err == nil {
		t.Fatalf("expected error for directory path")
	}
}

func TestFileSnapshotStoreDisabled(t *testing.T) {
	var store *FileSnapshotStore
	if err := store.SaveSnapshot(context.Background(), model.Snapshot{}); err != nil {
		t.Fatalf("nil store save: %v", err)
	}
	if _, ok, err := store.LoadSnapshot(context.Background()); ok || err != nil {
		t.Fatalf("nil store load: ok=%v err=%v", ok, err)
	}
}
