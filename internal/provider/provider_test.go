package provider

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestBuiltin_LookupReturnsRequestedID(t *testing.T) {
	reg := MustBuiltin()
	for _, id := range []string{"guarida", "auxiliadora", "cyrela"} {
		p, err := reg.Lookup(id)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", id, err)
		}
		if p.ID != id {
			t.Fatalf("Lookup(%q).ID = %q", id, p.ID)
		}
	}
}

func TestBuiltin_OrderAndDefault(t *testing.T) {
	reg := MustBuiltin()
	all := reg.All()
	want := []string{"guarida", "auxiliadora", "cyrela"}
	if len(all) != len(want) {
		t.Fatalf("All() returned %d providers, want %d", len(all), len(want))
	}
	for i, p := range all {
		if p.ID != want[i] {
			t.Fatalf("All()[%d] = %q, want %q", i, p.ID, want[i])
		}
	}
	def, ok := reg.Default()
	if !ok || def.ID != "guarida" {
		t.Fatalf("Default() = %q, %v; want guarida", def.ID, ok)
	}
	if all[1].Name != "Auxiliadora Predial" {
		t.Fatalf("display name = %q", all[1].Name)
	}
}

func TestLookup_Unknown(t *testing.T) {
	reg := MustBuiltin()
	for _, id := range []string{"nonexistent", "Guarida", " guarida", ""} {
		_, err := reg.Lookup(id)
		if !errors.Is(err, ErrUnknownProvider) {
			t.Fatalf("Lookup(%q) err = %v, want ErrUnknownProvider", id, err)
		}
		var upe *UnknownProviderError
		if !errors.As(err, &upe) || upe.ID != id {
			t.Fatalf("Lookup(%q) err = %#v, want UnknownProviderError with id", id, err)
		}
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	reg := MustBuiltin()
	all := reg.All()
	all[0] = Provider{ID: "mutated"}
	if p, _ := reg.Default(); p.ID != "guarida" {
		t.Fatalf("registry mutated through All(): %q", p.ID)
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	defs := BuiltinDefinitions()
	defs = append(defs, defs[0])
	if _, err := Load(defs); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestNewRegistry_RejectsUncompiled(t *testing.T) {
	if _, err := NewRegistry(Provider{ID: "raw"}); err == nil {
		t.Fatal("expected error for provider built without Compile")
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"missing id", Definition{NamePattern: "(a)", PhonePattern: "(b)"}},
		{"missing name pattern", Definition{ID: "x", PhonePattern: "(b)"}},
		{"missing phone pattern", Definition{ID: "x", NamePattern: "(a)"}},
		{"bad name pattern", Definition{ID: "x", NamePattern: "(a", PhonePattern: "(b)"}},
		{"bad phone pattern", Definition{ID: "x", NamePattern: "(a)", PhonePattern: "[b"}},
		{"bad separator", Definition{ID: "x", NamePattern: "(a)", PhonePattern: "(b)", BlockSeparator: "(?<=x)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.def); err == nil {
				t.Fatalf("Compile(%+v) succeeded, want error", tt.def)
			}
		})
	}
}

func TestCompile_Defaults(t *testing.T) {
	p, err := Compile(Definition{ID: "plain", NamePattern: `Nome:\s*(.+)`, PhonePattern: `Tel:\s*(.+)`})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p.Name != "plain" {
		t.Fatalf("Name = %q, want id fallback", p.Name)
	}
	if p.BlockSeparator().String() != DefaultBlockSeparator {
		t.Fatalf("separator = %q", p.BlockSeparator().String())
	}
}

func TestListingPatterns(t *testing.T) {
	p, err := MustBuiltin().Lookup("guarida")
	if err != nil {
		t.Fatal(err)
	}
	nameTests := []struct {
		block string
		want  string
		ok    bool
	}{
		{"Proprietário: João da Silva\nTelefone: (51) 98765-4321", "João da Silva", true},
		{"Proprietário: Maria Oliveira\nCelular: (51) 91234-5678", "Maria Oliveira", true},
		{"Proprietário: Carlos Santos\nCPF: 456.789.123-00", "Carlos Santos", true},
		{"Proprietário: Ana Souza CPF: 111.222.333-44", "Ana Souza", true},
		{"PROPRIETÁRIA: Beatriz Lima", "Beatriz Lima", true},
		{"Proprietario: Sem Acento\r\nTelefone: (51) 3333-4444", "Sem Acento", true},
		{"  Proprietário:   Pedro Alves   \n  E-mail: p@example.com", "Pedro Alves", true},
		{"Proprietário:\nJoão da Silva\nTelefone: (51) 98765-4321", "João da Silva", true},
		{"Proprietária:\r\n  Maria Oliveira\r\nCelular: (51) 91234-5678", "Maria Oliveira", true},
		{"Proprietário:   \nTelefone: (51) 3234-5678", "", false},
		{"Telefone: (51) 3234-5678", "", false},
	}
	for _, tt := range nameTests {
		got, ok, err := p.MatchName(tt.block)
		if err != nil {
			t.Fatalf("MatchName(%q): %v", tt.block, err)
		}
		if got != tt.want || ok != tt.ok {
			t.Errorf("MatchName(%q) = %q, %v; want %q, %v", tt.block, got, ok, tt.want, tt.ok)
		}
	}

	phoneTests := []struct {
		block string
		want  string
	}{
		{"Telefone: (51) 98765-4321", "(51) 98765-4321"},
		{"Celular: (51) 91234-5678", "(51) 91234-5678"},
		{"telefone: +55 (51) 3234.5678", "+55 (51) 3234.5678"},
		{"Celular:\n51 99999 8888", "51 99999 8888"},
		{"E-mail: x@example.com", ""},
	}
	for _, tt := range phoneTests {
		got, err := p.MatchPhone(tt.block)
		if err != nil {
			t.Fatalf("MatchPhone(%q): %v", tt.block, err)
		}
		if got != tt.want {
			t.Errorf("MatchPhone(%q) = %q, want %q", tt.block, got, tt.want)
		}
	}
}

func TestMatch_ConcurrentUse(t *testing.T) {
	p, _ := MustBuiltin().Lookup("cyrela")
	block := "Proprietário: João da Silva\nTelefone: (51) 98765-4321"

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name, _, _ := p.MatchName(block)
			phone, _ := p.MatchPhone(block)
			if name != "João da Silva" || phone != "(51) 98765-4321" {
				errs <- name + "|" + phone
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("concurrent match mismatch: %s", e)
	}
}

func TestLoadCatalogFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "providers.yaml")
	doc := `providers:
  - id: foxter
    name: Foxter
    name_pattern: '(?im)Locador:[ \t]*(.*?)[ \t]*$'
    phone_pattern: '(?i)Fone:\s*([\d() -]{8,})'
    block_separator: '\n-{3,}\n'
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	reg, err := LoadCatalogFile(path)
	if err != nil {
		t.Fatalf("LoadCatalogFile: %v", err)
	}
	if reg.Len() != 4 {
		t.Fatalf("Len() = %d, want 4 (3 built-in + 1)", reg.Len())
	}
	if def, _ := reg.Default(); def.ID != "guarida" {
		t.Fatalf("built-in providers should come first, default = %q", def.ID)
	}
	p, err := reg.Lookup("foxter")
	if err != nil {
		t.Fatalf("Lookup(foxter): %v", err)
	}
	if got, ok, _ := p.MatchName("Locador: Rita Prado"); !ok || got != "Rita Prado" {
		t.Fatalf("MatchName = %q, %v", got, ok)
	}
	if p.BlockSeparator().String() != `\n-{3,}\n` {
		t.Fatalf("separator = %q", p.BlockSeparator().String())
	}
}

func TestLoadCatalogFile_ExcludeBuiltin(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "providers.yaml")
	doc := `include_builtin: false
providers:
  - id: solo
    name_pattern: 'Nome:\s*(.+)'
    phone_pattern: 'Tel:\s*(.+)'
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	reg, err := LoadCatalogFile(path)
	if err != nil {
		t.Fatalf("LoadCatalogFile: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}
	if _, err := reg.Lookup("guarida"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("built-ins should be excluded, got %v", err)
	}
}

func TestParseCatalog_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown top-level key", "providerz: []\n"},
		{"missing phone pattern", "providers:\n  - id: x\n    name_pattern: '(a)'\n"},
		{"typo in key", "providers:\n  - id: x\n    name_pattern: '(a)'\n    phone_patern: '(b)'\n"},
		{"uppercase id", "providers:\n  - id: Xyz\n    name_pattern: '(a)'\n    phone_pattern: '(b)'\n"},
		{"not yaml", "providers: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCatalog([]byte(tt.doc)); err == nil {
				t.Fatalf("ParseCatalog(%q) succeeded, want error", tt.doc)
			}
		})
	}
}

func TestLoadCatalogFile_EmptyPathIsBuiltin(t *testing.T) {
	reg, err := LoadCatalogFile("")
	if err != nil {
		t.Fatalf("LoadCatalogFile: %v", err)
	}
	if reg.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", reg.Len())
	}
}

func TestLoadCatalogFile_DuplicateOfBuiltin(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "providers.yaml")
	doc := "providers:\n  - id: guarida\n    name_pattern: '(a)'\n    phone_pattern: '(b)'\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	if _, err := LoadCatalogFile(path); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestWithDefault(t *testing.T) {
	reg := MustBuiltin()

	moved, err := reg.WithDefault("cyrela")
	if err != nil {
		t.Fatalf("WithDefault: %v", err)
	}
	var ids []string
	for _, p := range moved.All() {
		ids = append(ids, p.ID)
	}
	if got := strings.Join(ids, ","); got != "cyrela,guarida,auxiliadora" {
		t.Fatalf("order = %q, want cyrela,guarida,auxiliadora", got)
	}
	if def, _ := reg.Default(); def.ID != "guarida" {
		t.Fatalf("original registry default changed to %q", def.ID)
	}

	same, err := reg.WithDefault("")
	if err != nil || same != reg {
		t.Fatalf("WithDefault(\"\") = %p, %v; want original registry", same, err)
	}

	if _, err := reg.WithDefault("nonexistent"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("err = %v, want ErrUnknownProvider", err)
	}
}
