package analyses

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrContractTooShort = errors.New("contract text is too short to analyze")
)

const (
	ErrorCodeContractTooShort  = "CONTRACT_TOO_SHORT"
	ErrorCodeValidation        = "VALIDATION_ERROR"
	ErrorCodeLLMTimeout        = "LLM_TIMEOUT"
	ErrorCodeLLMSchemaMismatch = "LLM_SCHEMA_MISMATCH"
	ErrorCodeStorage           = "STORAGE_ERROR"
	ErrorCodeInternal          = "INTERNAL_ERROR"
)
