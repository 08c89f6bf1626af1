package db

import (
	"context"
	"testing"
)

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestConnectBadDSN(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1", 2)
	if err == nil {
		t.Fatal("expected ping error for unreachable database")
	}
}
