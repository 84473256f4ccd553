package pipeline

import (
	"context"
	"errors"

	"github.com/hurttlocker/ownerscan/internal/extract"
	"github.com/hurttlocker/ownerscan/internal/provider"
	"github.com/hurttlocker/ownerscan/internal/remote"
	"github.com/hurttlocker/ownerscan/internal/textsource"
)

// User-facing messages, in the product locale.
const (
	EmptyResultMessage     = "Nenhum dado encontrado. Verifique se o arquivo está no formato esperado."
	UnknownProviderMessage = "Imobiliária não encontrada."
	NoTextLayerMessage     = "O PDF não possui texto extraível."
	UnsupportedMessage     = "Formato de arquivo não suportado."
	RemoteMessage          = "O serviço de extração não respondeu. Tente novamente."
	GenericMessage         = "Erro ao processar o arquivo."
)

// UserMessage maps a processing error onto a message fit for end users.
// Unrecognized errors get GenericMessage; the caller logs the detail.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, extract.ErrEmptyResult):
		return EmptyResultMessage
	case errors.Is(err, provider.ErrUnknownProvider):
		return UnknownProviderMessage
	case errors.Is(err, textsource.ErrNoTextLayer):
		return NoTextLayerMessage
	case errors.Is(err, textsource.ErrUnsupported):
		return UnsupportedMessage
	case errors.Is(err, remote.ErrTransport), errors.Is(err, context.DeadlineExceeded):
		return RemoteMessage
	default:
		return GenericMessage
	}
}
