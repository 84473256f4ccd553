package provider

// Listing patterns shared by the built-in providers. Their exports all use the
// same "Proprietário: ... / Telefone: ..." layout; the name may sit on the
// label's line or the next one, and ends at the next known field label or at
// the end of that line.
const (
	listingNamePattern  = `(?im)Propriet[áa]ri[oa]:[ \t]*(?:\r?\n[ \t]*)?(.*?)(?=\s*CPF|\s*Telefone|\s*Celular|\s*E-mail|[ \t]*\r?$)`
	listingPhonePattern = `(?i)(?:Telefone|Celular):\s*((?:\+\d{2})?\s*\(?\d{2,3}\)?[\s.-]?\d{4,5}[\s.-]?\d{4})`
)

// BuiltinDefinitions returns the built-in catalog in registration order.
// The first entry is the default provider offered to selectors.
func BuiltinDefinitions() []Definition {
	return []Definition{
		{ID: "guarida", Name: "Guarida", NamePattern: listingNamePattern, PhonePattern: listingPhonePattern},
		{ID: "auxiliadora", Name: "Auxiliadora Predial", NamePattern: listingNamePattern, PhonePattern: listingPhonePattern},
		{ID: "cyrela", Name: "Cyrela", NamePattern: listingNamePattern, PhonePattern: listingPhonePattern},
	}
}

// Builtin compiles the built-in catalog into a registry.
func Builtin() (*Registry, error) {
	return Load(BuiltinDefinitions())
}

// MustBuiltin is Builtin for package initialisation and tests.
func MustBuiltin() *Registry {
	r, err := Builtin()
	if err != nil {
		panic(err)
	}
	return r
}

// Load compiles definitions in order and builds a registry.
func Load(defs []Definition) (*Registry, error) {
	compiled := make([]Provider, 0, len(defs))
	for _, d := range defs {
		p, err := Compile(d)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, p)
	}
	return NewRegistry(compiled...)
}
