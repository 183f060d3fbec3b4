package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"DOTRamp/internal/config"
	"DOTRamp/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedToken = errors.New("unsupported token")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidRate      = errors.New("rate must be positive")
)

// Token is the runtime view of a registry entry.
type Token struct {
	Symbol     string          `json:"symbol"`
	Decimals   int32           `json:"decimals"`
	AssetID    uint32          `json:"assetId,omitempty"`
	Rate       decimal.Decimal `json:"rate"`
	MinBalance decimal.Decimal `json:"minBalance"`
}

// Native reports whether the token is the chain's native currency.
func (t Token) Native() bool {
	return t.AssetID == 0
}

// Service holds per-token exchange rates expressed as token units per one
// unit of fiat. Rates may change at runtime; quotes already taken keep the
// rate they were computed with.
type Service struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

func New(tokens []config.Token) (*Service, error) {
	s := &Service{tokens: make(map[string]Token, len(tokens))}
	for _, t := range tokens {
		rate, err := decimal.NewFromString(t.Rate)
		if err != nil {
			return nil, fmt.Errorf("token %s rate: %w", t.Symbol, err)
		}
		floor := decimal.Zero
		if t.MinBalance != "" {
			floor, err = decimal.NewFromString(t.MinBalance)
			if err != nil {
				return nil, fmt.Errorf("token %s min balance: %w", t.Symbol, err)
			}
		}
		s.tokens[normalize(t.Symbol)] = Token{
			Symbol:     normalize(t.Symbol),
			Decimals:   t.Decimals,
			AssetID:    t.AssetID,
			Rate:       rate,
			MinBalance: floor,
		}
	}
	return s, nil
}

func (s *Service) Token(symbol string) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[normalize(symbol)]
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", ErrUnsupportedToken, symbol)
	}
	return t, nil
}

func (s *Service) Tokens() []Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *Service) SetRate(symbol string, rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return ErrInvalidRate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalize(symbol)
	t, ok := s.tokens[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, symbol)
	}
	t.Rate = rate
	s.tokens[key] = t
	return nil
}

// Quote is a locked conversion.
type Quote struct {
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
	Result decimal.Decimal `json:"result"`
	Rate   decimal.Decimal `json:"rate"`
}

// Quote converts amount for direction d. Buy: fiat -> token, amount*rate.
// Sell: token -> fiat, floor(amount/rate), so the system never owes more fiat
// than the tokens are worth.
func (s *Service) Quote(amount decimal.Decimal, symbol string, d models.Direction) (Quote, error) {
	if !amount.IsPositive() {
		return Quote{}, ErrInvalidAmount
	}
	t, err := s.Token(symbol)
	if err != nil {
		return Quote{}, err
	}

	q := Quote{Token: t.Symbol, Amount: amount, Rate: t.Rate}
	switch d {
	case models.Buy:
		q.Result = amount.Mul(t.Rate)
	case models.Sell:
		whole, _ := amount.QuoRem(t.Rate, 0)
		q.Result = whole
	default:
		return Quote{}, fmt.Errorf("unknown direction %q", d)
	}
	return q, nil
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
