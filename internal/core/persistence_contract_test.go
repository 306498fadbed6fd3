package core

import (
	"go/types"
	"path/filepath"
	"runtime"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestRecordStoreImplementationsHardening ensures only sanctioned persistence
// packages provide concrete implementations of domain.RecordStore. Adding a
// backend elsewhere requires updating the allowed list on purpose.
func TestRecordStoreImplementationsHardening(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes}
	pkgs, err := packages.Load(cfg, "epibot/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	var recordStore *types.Interface
	for _, p := range pkgs {
		if p.PkgPath != "epibot/pkg/domain" {
			continue
		}
		obj := p.Types.Scope().Lookup("RecordStore")
		if obj == nil {
			t.Fatalf("domain.RecordStore not found")
		}
		iface, ok := obj.Type().Underlying().(*types.Interface)
		if !ok {
			t.Fatalf("domain.RecordStore is not an interface")
		}
		recordStore = iface
	}
	if recordStore == nil {
		t.Fatalf("failed to resolve RecordStore interface")
	}
	allowed := map[string]struct{}{
		"epibot/internal/infra/persistence/memory":   {},
		"epibot/internal/infra/persistence/sqlite":   {},
		"epibot/internal/infra/persistence/postgres": {},
	}
	var unexpected []string
	for _, p := range pkgs {
		if p.Types == nil || p.Types.Scope() == nil {
			continue
		}
		for _, name := range p.Types.Scope().Names() {
			named, ok := p.Types.Scope().Lookup(name).Type().(*types.Named)
			if !ok {
				continue
			}
			if _, ok := named.Underlying().(*types.Struct); !ok {
				continue
			}
			if types.Implements(types.NewPointer(named), recordStore) {
				if _, ok := allowed[p.PkgPath]; !ok {
					unexpected = append(unexpected, p.PkgPath+"."+name)
				}
			}
		}
	}
	if len(unexpected) > 0 {
		_, file, line, _ := runtime.Caller(0)
		t.Fatalf("unexpected RecordStore implementations (update allowed list intentionally if adding a new backend):\nfile=%s:%d\n%s", filepath.Base(file), line, unexpected)
	}
}
