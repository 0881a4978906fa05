package analyzer

import "errors"

var (
	// ErrContractTooShort means the extracted text was below
	// MinContractLength; nothing was sent over the network.
	ErrContractTooShort = errors.New("CONTRACT_TOO_SHORT: contract text is too short to analyze")

	// ErrExtraction means no analyzable text could be produced from the file.
	ErrExtraction = errors.New("could not extract text from file")

	// ErrAnalysisFailed surfaces a server-side terminal failure.
	ErrAnalysisFailed = errors.New("analysis failed")

	// ErrPollExhausted means the analysis stayed pending past the poll budget.
	ErrPollExhausted = errors.New("analysis did not complete within the polling budget")
)
