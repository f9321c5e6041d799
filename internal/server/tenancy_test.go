package server

import (
	"context"
	"testing"
)

func TestStaticTenancyResolver(t *testing.T) {
	r := newStaticTenancyResolver(map[string]Tenant{
		" Acme.LumenHR.test ": {ID: "t-2", Domain: "acme.lumenhr.test", Name: "Acme", Timezone: "Asia/Shanghai"},
	})

	got, ok, err := r.ResolveTenant(context.Background(), "ACME.lumenhr.TEST")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected tenant")
	}
	if got.ID != "t-2" || got.Location().String() != "Asia/Shanghai" {
		t.Fatalf("got=%+v loc=%s", got, got.Location())
	}

	if _, ok, err := r.ResolveTenant(context.Background(), "unknown.host"); err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if _, ok, err := r.ResolveTenant(context.Background(), ""); err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestTenantLocation_FallsBackToUTC(t *testing.T) {
	if got := (Tenant{}).Location(); got.String() != "UTC" {
		t.Fatalf("loc=%s", got)
	}
	if got := (Tenant{Timezone: "Not/AZone"}).Location(); got.String() != "UTC" {
		t.Fatalf("loc=%s", got)
	}
}
