package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"concierge/internal/domain"
)

const financeExtractPrompt = `You extract expense records from chat messages.
Respond with a JSON object only:
{"found": bool, "amount": number, "currency": string, "category": string, "description": string}
"found" is true only when the message registers a concrete spending with an amount.
Questions about spending are not expenses. Default currency: %s. Categories: food, transport, housing, health, leisure, shopping, other.`

// Finance registers expenses mentioned in a turn. It declines when the turn
// contains no concrete spending with an amount.
type Finance struct {
	completer       domain.Completer
	store           domain.ActionStore
	defaultCurrency string
	logger          *slog.Logger
}

func NewFinance(completer domain.Completer, store domain.ActionStore, defaultCurrency string, logger *slog.Logger) *Finance {
	if defaultCurrency == "" {
		defaultCurrency = "BRL"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Finance{completer: completer, store: store, defaultCurrency: defaultCurrency, logger: logger}
}

func (f *Finance) Name() string { return "finance" }

func (f *Finance) Handle(ctx context.Context, uc *domain.UserContext) (domain.Outcome, error) {
	system := fmt.Sprintf(financeExtractPrompt, f.defaultCurrency)
	raw, err := f.completer.Complete(ctx, system, uc.Text, domain.ModeJSON)
	if err != nil {
		return domain.Declined(), fmt.Errorf("expense extraction: %w", err)
	}

	var ext struct {
		Found       bool    `json:"found"`
		Amount      float64 `json:"amount"`
		Currency    string  `json:"currency"`
		Category    string  `json:"category"`
		Description string  `json:"description"`
	}
	if !decodeJSON(raw, &ext) {
		f.logger.Debug("inconclusive expense extraction", "turn", uc.TurnID, "raw", raw)
		return domain.Declined(), nil
	}
	if !ext.Found || ext.Amount <= 0 {
		return domain.Declined(), nil
	}
	if ext.Currency == "" {
		ext.Currency = f.defaultCurrency
	}
	if ext.Category == "" {
		ext.Category = "other"
	}

	id, err := f.store.AddExpense(ctx, domain.Expense{
		SenderID:    uc.SenderID,
		Amount:      ext.Amount,
		Currency:    ext.Currency,
		Category:    ext.Category,
		Description: strings.TrimSpace(ext.Description),
	})
	if err != nil {
		return domain.Declined(), fmt.Errorf("save expense: %w", err)
	}

	f.logger.Info("expense registered", "turn", uc.TurnID, "sender", uc.SenderID,
		"id", id, "amount", ext.Amount, "currency", ext.Currency, "category", ext.Category)

	detail := fmt.Sprintf("%s %.2f on %s", ext.Currency, ext.Amount, ext.Category)
	if ext.Description != "" {
		detail += " (" + ext.Description + ")"
	}
	return domain.HandledReport(domain.ActionReport{
		Task:   "finance",
		Status: "registered",
		Action: "expense_registered",
		Detail: detail,
	}), nil
}
