package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// order is the subset of the history view the report reads.
type order struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Token       string    `json:"token"`
	FiatAmount  string    `json:"fiatAmount"`
	TokenAmount string    `json:"tokenAmount"`
	Address     string    `json:"address"`
	Phone       string    `json:"phone"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	Details     struct {
		ResultDesc      string `json:"resultDesc"`
		Error           string `json:"error"`
		TransactionHash string `json:"transactionHash"`
		UnverifiedClaim bool   `json:"unverifiedClaim"`
	} `json:"details"`
}

type historyResponse struct {
	Status       string  `json:"status"`
	Error        string  `json:"error"`
	Transactions []order `json:"transactions"`
}

func fetchHistory(ctx context.Context, client *http.Client, baseURL, token string, limit int) ([]order, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/api/v1/transactions/history")
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		u.RawQuery = url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode history (http %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history request failed: http %d: %s", resp.StatusCode, body.Error)
	}
	return body.Transactions, nil
}

type item struct {
	order
	Reason string
}

// attention picks the orders that need a person. Buy TransferFailed means the
// fiat was collected without delivery; a failed or timed out sell means the
// seller's tokens arrived without a payout.
func attention(orders []order, now time.Time, stale time.Duration) []item {
	var out []item
	for _, o := range orders {
		var reason string
		switch {
		case o.Status == "transfer_failed":
			reason = "paid, tokens not delivered"
		case o.Type == "sell" && (o.Status == "failed" || o.Status == "timeout"):
			reason = "tokens received, payout not delivered"
		case o.Status == "pending" && !o.CreatedAt.IsZero() && now.Sub(o.CreatedAt) > stale:
			reason = "pending for " + now.Sub(o.CreatedAt).Truncate(time.Second).String()
		case o.Status == "payment_confirmed" && !o.CreatedAt.IsZero() && now.Sub(o.CreatedAt) > stale:
			reason = "transfer outcome not recorded"
		default:
			continue
		}
		out = append(out, item{order: o, Reason: reason})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func writeReport(w io.Writer, items []item, inspected int) error {
	if len(items) == 0 {
		_, err := fmt.Fprintf(w, "nothing to review (%d orders inspected)\n", inspected)
		return err
	}
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tTOKEN\tFIAT\tPHONE\tADDRESS\tCREATED\tREASON\tDETAIL")
	for _, it := range items {
		detail := it.Details.Error
		if detail == "" {
			detail = it.Details.ResultDesc
		}
		if it.Type == "sell" && it.Details.UnverifiedClaim {
			tx := it.Details.TransactionHash
			if tx == "" {
				tx = "none"
			}
			detail = strings.TrimSpace(detail + " [tx " + tx + ", unverified]")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.ID, it.Type, it.Status, it.TokenAmount, it.Token, it.FiatAmount,
			it.Phone, it.Address, it.CreatedAt.Format(time.RFC3339), it.Reason, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d of %d orders need review\n", len(items), inspected)
	return err
}
