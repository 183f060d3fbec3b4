package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"
)

var ErrInvalidAmount = errors.New("amount must be a positive whole number")

type ChargeRequest struct {
	Amount      decimal.Decimal
	Phone       string
	Reference   string
	Description string
}

type ChargeResponse struct {
	MerchantRequestID   string          `json:"MerchantRequestID"`
	CheckoutRequestID   string          `json:"CheckoutRequestID"`
	ResponseCode        string          `json:"ResponseCode"`
	ResponseDescription string          `json:"ResponseDescription"`
	CustomerMessage     string          `json:"CustomerMessage"`
	Raw                 json.RawMessage `json:"-"`
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// InitiateCharge sends an STK push to phone. The request is accepted only
// when Daraja answers ResponseCode "0" with both request ids.
func (c *Client) InitiateCharge(ctx context.Context, req ChargeRequest) (ChargeResponse, error) {
	if !req.Amount.IsPositive() || !req.Amount.IsInteger() {
		return ChargeResponse{}, ErrInvalidAmount
	}
	ref := req.Reference
	if ref == "" {
		ref = c.cfg.AccountReference
	}
	desc := req.Description
	if desc == "" {
		desc = "Buy Crypto"
	}
	ts := Timestamp(c.now())

	body := stkPushBody{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.PassKey, ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount.String(),
		PartyA:            req.Phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  ref,
		TransactionDesc:   desc,
	}

	var out ChargeResponse
	raw, err := c.postJSON(ctx, stkPushPath, body, &out)
	out.Raw = raw
	if err != nil {
		return out, err
	}
	if out.ResponseCode != "0" || out.MerchantRequestID == "" || out.CheckoutRequestID == "" {
		return out, fmt.Errorf("%w: stk push response %s: %s", ErrUpstreamRequest, out.ResponseCode, out.ResponseDescription)
	}
	return out, nil
}

// ChargeStatus is the query result in the same shape as a callback.
type ChargeStatus struct {
	ResultCode string
	ResultDesc string
	Outcome    Outcome
	Raw        json.RawMessage
}

type stkQueryBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode      string      `json:"ResponseCode"`
	MerchantRequestID string      `json:"MerchantRequestID"`
	CheckoutRequestID string      `json:"CheckoutRequestID"`
	ResultCode        json.Number `json:"ResultCode"`
	ResultDesc        string      `json:"ResultDesc"`
}

// QueryChargeStatus asks Daraja for the outcome of an STK push. A
// transaction the customer has not answered yet comes back as OutcomePending.
func (c *Client) QueryChargeStatus(ctx context.Context, checkoutRequestID string) (ChargeStatus, error) {
	ts := Timestamp(c.now())
	body := stkQueryBody{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.PassKey, ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}

	var out stkQueryResponse
	raw, err := c.postJSON(ctx, stkQueryPath, body, &out)
	if err != nil {
		var upErr *UpstreamError
		if errors.As(err, &upErr) && upErr.Code == codeStatusProcessing {
			return ChargeStatus{
				ResultCode: upErr.Code,
				ResultDesc: upErr.Message,
				Outcome:    OutcomePending,
				Raw:        raw,
			}, nil
		}
		return ChargeStatus{Raw: raw}, err
	}

	code := out.ResultCode.String()
	return ChargeStatus{
		ResultCode: code,
		ResultDesc: out.ResultDesc,
		Outcome:    Classify(code, out.ResultDesc),
		Raw:        raw,
	}, nil
}
