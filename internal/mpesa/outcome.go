package mpesa

import "strings"

type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	}
	return "pending"
}

const (
	codeSuccess          = "0"
	codeCancelledByUser  = "1032"
	codeQueryProcessing  = "4999"
	codeStatusProcessing = "500.001.1001"
)

// Classify maps a Daraja result code and description, from a callback or a
// status query, onto an outcome. Any definitive code that is neither success
// nor a cancellation is a failure.
func Classify(code, desc string) Outcome {
	code = strings.TrimSpace(code)
	switch code {
	case codeSuccess:
		return OutcomeSuccess
	case codeCancelledByUser:
		return OutcomeCancelled
	case "", codeQueryProcessing, codeStatusProcessing:
		return OutcomePending
	}
	if strings.Contains(strings.ToLower(desc), "cancel") {
		return OutcomeCancelled
	}
	return OutcomeFailed
}
