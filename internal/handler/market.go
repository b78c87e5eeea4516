package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/service"
)

// MarketHandler handles HTTP requests for book, market-data, portfolio
// and wallet queries.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

// bookLevelResponse is one aggregated price level in the book response.
type bookLevelResponse struct {
	Price         decimal.Decimal `json:"price"`
	TotalQuantity int64           `json:"total_quantity"`
	OrderCount    int             `json:"order_count"`
}

// GetBook handles GET /accounts/{account_id}/book.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "account_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "account_id must be an integer")
		return
	}

	depth := 0
	if d := r.URL.Query().Get("depth"); d != "" {
		depth, err = strconv.Atoi(d)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "depth must be an integer")
			return
		}
	}

	book, svcErr := h.marketSvc.Book(accountID, depth)
	if svcErr != nil {
		mapError(w, svcErr)
		return
	}

	bids := make([]bookLevelResponse, 0, len(book.Bids))
	for _, lvl := range book.Bids {
		bids = append(bids, bookLevelResponse{Price: lvl.Price, TotalQuantity: lvl.TotalQuantity, OrderCount: lvl.OrderCount})
	}
	asks := make([]bookLevelResponse, 0, len(book.Asks))
	for _, lvl := range book.Asks {
		asks = append(asks, bookLevelResponse{Price: lvl.Price, TotalQuantity: lvl.TotalQuantity, OrderCount: lvl.OrderCount})
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"trading_account_id": book.TradingAccountID,
		"bids":               bids,
		"asks":               asks,
		"spread":             book.Spread,
		"snapshot_at":        book.SnapshotAt.Format(time.RFC3339),
	})
}

// GetMarketData handles GET /market-data.
func (h *MarketHandler) GetMarketData(w http.ResponseWriter, r *http.Request) {
	entries := h.marketSvc.MarketData()

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		offerings := make([]map[string]any, 0, len(e.ActiveOfferings))
		for _, off := range e.ActiveOfferings {
			info := map[string]any{
				"offering_id":              off.OfferingID,
				"offering_price_per_share": off.OfferingPricePerShare,
				"shares_remaining":         off.SharesRemaining,
			}
			if off.OfferingEndDate != nil {
				info["offering_end_date"] = off.OfferingEndDate.Format(time.RFC3339)
			}
			offerings = append(offerings, info)
		}
		out = append(out, map[string]any{
			"trading_account_id":  e.TradingAccountID,
			"account_name":        e.AccountName,
			"share_price":         e.SharePrice,
			"total_shares_issued": e.TotalSharesIssued,
			"best_bid":            e.BestBid,
			"best_ask":            e.BestAsk,
			"last_trade_price":    e.LastTradePrice,
			"active_offerings":    offerings,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

// GetPortfolio handles GET /users/{user_id}/portfolio.
func (h *MarketHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "user_id must be an integer")
		return
	}

	portfolio, svcErr := h.marketSvc.Portfolio(userID)
	if svcErr != nil {
		mapError(w, svcErr)
		return
	}

	holdings := make([]map[string]any, 0, len(portfolio.Holdings))
	for _, hd := range portfolio.Holdings {
		holdings = append(holdings, map[string]any{
			"trading_account_id":  hd.TradingAccountID,
			"account_name":        hd.AccountName,
			"quantity":            hd.Quantity,
			"held_quantity":       hd.HeldQuantity,
			"available_quantity":  hd.Quantity - hd.HeldQuantity,
			"average_buy_price":   hd.AverageBuyPrice,
			"current_share_price": hd.CurrentSharePrice,
			"current_value":       hd.CurrentValue,
			"unrealized_pnl":      hd.UnrealizedPAndL,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"user_id":     portfolio.UserID,
		"holdings":    holdings,
		"total_value": portfolio.TotalValue,
	})
}

// walletTransactionResponse is the JSON shape of one ledger entry.
type walletTransactionResponse struct {
	TransactionID        int64           `json:"transaction_id"`
	Type                 string          `json:"type"`
	Amount               decimal.Decimal `json:"amount"`
	BalanceBefore        decimal.Decimal `json:"balance_before"`
	BalanceAfter         decimal.Decimal `json:"balance_after"`
	ReferenceID          string          `json:"reference_id"`
	RelatedTransactionID *int64          `json:"related_transaction_id"`
	Description          string          `json:"description"`
	Status               string          `json:"status"`
	TransactionDate      string          `json:"transaction_date"`
}

// GetWallet handles GET /users/{user_id}/wallet.
func (h *MarketHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "user_id must be an integer")
		return
	}

	wallet, svcErr := h.marketSvc.Wallet(userID)
	if svcErr != nil {
		mapError(w, svcErr)
		return
	}

	txs := make([]walletTransactionResponse, 0, len(wallet.Transactions))
	for _, tx := range wallet.Transactions {
		item := walletTransactionResponse{
			TransactionID:   tx.TransactionID,
			Type:            string(tx.Type),
			Amount:          tx.Amount,
			BalanceBefore:   tx.BalanceBefore,
			BalanceAfter:    tx.BalanceAfter,
			ReferenceID:     tx.ReferenceID,
			Description:     tx.Description,
			Status:          tx.Status,
			TransactionDate: tx.TransactionDate.Format(time.RFC3339),
		}
		if tx.RelatedTransactionID != 0 {
			related := tx.RelatedTransactionID
			item.RelatedTransactionID = &related
		}
		txs = append(txs, item)
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"user_id":       wallet.UserID,
		"balance":       wallet.Balance,
		"currency_code": wallet.CurrencyCode,
		"transactions":  txs,
	})
}
