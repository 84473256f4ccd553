package textsource

import "context"

// SampleListing is a small owner listing in the layout the built-in providers
// expect. It backs demo runs and the --sample flag.
const SampleListing = `
        Listagem de Proprietários

        Proprietário: João da Silva
        CPF: 123.456.789-00
        Telefone: (51) 98765-4321
        E-mail: joao@example.com

        Proprietário: Maria Oliveira
        CPF: 987.654.321-00
        Celular: (51) 91234-5678
        E-mail: maria@example.com

        Proprietário: Carlos Santos
        CPF: 456.789.123-00
        Telefone: (51) 3234-5678
        E-mail: carlos@example.com
      `

// Sample ignores the document and returns SampleListing.
type Sample struct{}

// Text implements Source.
func (Sample) Text(ctx context.Context, _ Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return Normalize(SampleListing), nil
}
