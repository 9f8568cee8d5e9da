package book

import (
	"errors"
)

// Kind classifies an ErrResponse so the transport layer can map it to a
// status code without looking at the error value itself.
type Kind int

const (
	KindUnclassified Kind = iota
	KindInvalidInput
	KindDuplicate
	KindNotFound
	KindInvalidTransition
)

type ErrResponse struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
	Kind    Kind   `json:"-"`
}

func (e ErrResponse) Error() string {
	return e.Message
}

/* Returns the kind of the first ErrResponse found in the chain of err. */
func KindOf(err error) Kind {
	var errResp ErrResponse
	if errors.As(err, &errResp) {
		return errResp.Kind
	}
	return KindUnclassified
}

var ErrResponseBookEntryBlankFields = ErrResponse{100, "os campos titulo, autor e ano devem ser preenchidos.", KindInvalidInput}
var ErrResponseBookNotFound = ErrResponse{101, "Livro não encontrado.", KindNotFound}
var ErrResponseEntryInvalidJSON = ErrResponse{102, "json inválido: ", KindInvalidInput}
var ErrResponseIdInvalidFormat = ErrResponse{103, "o id deve ser um inteiro positivo.", KindInvalidInput}
var ErrResponseYearOutOfRange = ErrResponse{104, "Ano inválido.", KindInvalidInput}
var ErrResponseTitleAlreadyExists = ErrResponse{105, "Título já existe.", KindDuplicate}
var ErrResponseInvalidStatus = ErrResponse{106, "status deve ser 'disponível' ou 'emprestado'.", KindInvalidInput}
var ErrResponseLoanDateMismatch = ErrResponse{107, "data_emprestimo deve estar preenchida se e somente se o status for 'emprestado'.", KindInvalidInput}
var ErrResponseBookAlreadyLoaned = ErrResponse{108, "Livro já está emprestado.", KindInvalidTransition}
var ErrResponseBookAlreadyAvailable = ErrResponse{109, "Livro já está disponível.", KindInvalidTransition}
var ErrResponseRequestTimeout = ErrResponse{110, "erro de contexto: ", KindUnclassified}
var ErrResponseFromRepository = ErrResponse{111, "erro no repositório: ", KindUnclassified}
var ErrResponseQueryYearInvalid = ErrResponse{112, "o parâmetro 'ano' deve ser um inteiro.", KindInvalidInput}
var ErrResponseLoanedAtInvalid = ErrResponse{113, "data_emprestimo deve ser uma data ISO 8601.", KindInvalidInput}
var ErrResponsePatronEntryBlankFields = ErrResponse{114, "os campos nome e email devem ser preenchidos.", KindInvalidInput}
var ErrResponsePatronNotFound = ErrResponse{115, "Usuário não encontrado.", KindNotFound}
var ErrResponseEmailAlreadyExists = ErrResponse{116, "Email já existe.", KindDuplicate}
var ErrResponseLoanNotFound = ErrResponse{117, "Empréstimo não encontrado.", KindNotFound}
var ErrResponseRateLimitExceeded = ErrResponse{118, "limite de requisições excedido, tente novamente mais tarde.", KindUnclassified}
var ErrResponseInternal = ErrResponse{500, "o servidor encontrou um problema e não pôde processar a requisição.", KindUnclassified}
