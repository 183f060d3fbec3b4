package mpesa

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

const b2cPath = "/mpesa/b2c/v1/paymentrequest"

type PayoutRequest struct {
	Amount   decimal.Decimal
	Phone    string
	Remarks  string
	Occasion string
}

type PayoutResponse struct {
	ConversationID           string          `json:"ConversationID"`
	OriginatorConversationID string          `json:"OriginatorConversationID"`
	ResponseCode             string          `json:"ResponseCode"`
	ResponseDescription      string          `json:"ResponseDescription"`
	Raw                      json.RawMessage `json:"-"`
}

// CorrelationID is the id the result callback will carry, or "" when Daraja
// returned none.
func (r PayoutResponse) CorrelationID() string {
	if r.ConversationID != "" {
		return r.ConversationID
	}
	return r.OriginatorConversationID
}

type b2cBody struct {
	InitiatorName      string `json:"InitiatorName"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	Amount             string `json:"Amount"`
	PartyA             string `json:"PartyA"`
	PartyB             string `json:"PartyB"`
	Remarks            string `json:"Remarks"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	ResultURL          string `json:"ResultURL"`
	Occasion           string `json:"Occasion"`
}

// InitiatePayout requests a business-to-customer transfer. Acceptance only
// means Daraja queued it; the outcome arrives on the result or timeout URL.
func (c *Client) InitiatePayout(ctx context.Context, req PayoutRequest) (PayoutResponse, error) {
	if !req.Amount.IsPositive() || !req.Amount.IsInteger() {
		return PayoutResponse{}, ErrInvalidAmount
	}
	remarks := req.Remarks
	if remarks == "" {
		remarks = "Sell Crypto"
	}

	body := b2cBody{
		InitiatorName:      c.cfg.InitiatorName,
		SecurityCredential: c.cfg.SecurityCredential,
		CommandID:          "BusinessPayment",
		Amount:             req.Amount.String(),
		PartyA:             c.cfg.B2CShortCode,
		PartyB:             req.Phone,
		Remarks:            remarks,
		QueueTimeOutURL:    c.cfg.TimeoutURL,
		ResultURL:          c.cfg.ResultURL,
		Occasion:           req.Occasion,
	}

	var out PayoutResponse
	raw, err := c.postJSON(ctx, b2cPath, body, &out)
	out.Raw = raw
	if err != nil {
		return out, err
	}
	if out.ResponseCode != "0" {
		return out, fmt.Errorf("%w: b2c response %s: %s", ErrUpstreamRequest, out.ResponseCode, out.ResponseDescription)
	}
	return out, nil
}
