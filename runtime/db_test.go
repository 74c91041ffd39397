package runtime

import "testing"

func TestDatabaseCachesByDSN(t *testing.T) {
	db1, err := Database(":memory:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db2, err := Database(":memory:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db1 != db2 {
		t.Errorf("expected the same *sql.DB for the same dsn")
	}
}

func TestDatabaseDistinctDSNsDistinctHandles(t *testing.T) {
	db1, err := Database("file:one?mode=memory")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db2, err := Database("file:two?mode=memory")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db1 == db2 {
		t.Errorf("expected distinct *sql.DB for distinct dsns")
	}
}
