package mpesa

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrMalformedCallback = errors.New("malformed mpesa callback")

// STKResult is a decoded STK push callback. Metadata fields are only present
// on success.
type STKResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        string
	ResultDesc        string
	ReceiptNumber     string
	Amount            decimal.Decimal
	PhoneNumber       string
	TransactionDate   string
	Raw               json.RawMessage
}

func (r STKResult) Outcome() Outcome {
	return Classify(r.ResultCode, r.ResultDesc)
}

type metadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

type stkCallbackEnvelope struct {
	Body *struct {
		STKCallback *struct {
			MerchantRequestID string       `json:"MerchantRequestID"`
			CheckoutRequestID string       `json:"CheckoutRequestID"`
			ResultCode        *json.Number `json:"ResultCode"`
			ResultDesc        string       `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []metadataItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// DecodeSTKCallback parses the STK push webhook body. MerchantRequestID and
// ResultCode are required; unknown metadata items are ignored.
func DecodeSTKCallback(data []byte) (STKResult, error) {
	var env stkCallbackEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return STKResult{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if env.Body == nil || env.Body.STKCallback == nil {
		return STKResult{}, fmt.Errorf("%w: missing Body.stkCallback", ErrMalformedCallback)
	}
	cb := env.Body.STKCallback
	if cb.MerchantRequestID == "" {
		return STKResult{}, fmt.Errorf("%w: missing MerchantRequestID", ErrMalformedCallback)
	}
	if cb.ResultCode == nil {
		return STKResult{}, fmt.Errorf("%w: missing ResultCode", ErrMalformedCallback)
	}

	out := STKResult{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode.String(),
		ResultDesc:        cb.ResultDesc,
		Raw:               append(json.RawMessage(nil), data...),
	}
	if cb.CallbackMetadata == nil {
		return out, nil
	}
	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			out.ReceiptNumber = scalar(item.Value)
		case "Amount":
			if amt, err := decimal.NewFromString(scalar(item.Value)); err == nil {
				out.Amount = amt
			}
		case "PhoneNumber":
			out.PhoneNumber = scalar(item.Value)
		case "TransactionDate":
			out.TransactionDate = scalar(item.Value)
		}
	}
	return out, nil
}

// B2CResult is a decoded B2C result or queue-timeout callback.
type B2CResult struct {
	ConversationID           string
	OriginatorConversationID string
	TransactionID            string
	ResultCode               string
	ResultDesc               string
	Parameters               map[string]string
	Raw                      json.RawMessage
}

func (r B2CResult) Outcome() Outcome {
	return Classify(r.ResultCode, r.ResultDesc)
}

// CorrelationID matches PayoutResponse.CorrelationID.
func (r B2CResult) CorrelationID() string {
	if r.ConversationID != "" {
		return r.ConversationID
	}
	return r.OriginatorConversationID
}

type b2cEnvelope struct {
	Result *struct {
		ResultType               json.Number  `json:"ResultType"`
		ResultCode               *json.Number `json:"ResultCode"`
		ResultDesc               string       `json:"ResultDesc"`
		OriginatorConversationID string       `json:"OriginatorConversationID"`
		ConversationID           string       `json:"ConversationID"`
		TransactionID            string       `json:"TransactionID"`
		ResultParameters         *struct {
			ResultParameter []struct {
				Key   string          `json:"Key"`
				Value json.RawMessage `json:"Value"`
			} `json:"ResultParameter"`
		} `json:"ResultParameters"`
	} `json:"Result"`
}

// DecodeB2CResult parses a B2C result or timeout webhook body. At least one
// conversation id is required.
func DecodeB2CResult(data []byte) (B2CResult, error) {
	var env b2cEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return B2CResult{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if env.Result == nil {
		return B2CResult{}, fmt.Errorf("%w: missing Result", ErrMalformedCallback)
	}
	r := env.Result
	if r.ConversationID == "" && r.OriginatorConversationID == "" {
		return B2CResult{}, fmt.Errorf("%w: missing ConversationID", ErrMalformedCallback)
	}

	out := B2CResult{
		ConversationID:           r.ConversationID,
		OriginatorConversationID: r.OriginatorConversationID,
		TransactionID:            r.TransactionID,
		ResultDesc:               r.ResultDesc,
		Parameters:               map[string]string{},
		Raw:                      append(json.RawMessage(nil), data...),
	}
	if r.ResultCode != nil {
		out.ResultCode = r.ResultCode.String()
	}
	if r.ResultParameters != nil {
		for _, p := range r.ResultParameters.ResultParameter {
			out.Parameters[p.Key] = scalar(p.Value)
		}
	}
	return out, nil
}

// scalar renders a JSON string or number value as plain text.
func scalar(v json.RawMessage) string {
	s := strings.TrimSpace(string(v))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(v, &str); err == nil {
		return str
	}
	return s
}
