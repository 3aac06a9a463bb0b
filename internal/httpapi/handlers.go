package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"tondonate/internal/alerting"
	"tondonate/internal/price"
	"tondonate/internal/storage"
	"tondonate/internal/verify"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": s.cfg.App.Name,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleConfig serves the public funnel configuration, including the wallet
// deeplink for the suggested minimum donation.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	minDonation := decimal.NewFromFloat(s.cfg.Ton.MinDonationTon)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"seller_address":   s.cfg.Ton.SellerAddress,
		"min_donation_ton": minDonation.String(),
		"donation_link":    DonationLink(s.cfg.Ton.SellerAddress, minDonation, s.cfg.Ton.DonationText),
		"frontend_url":     s.cfg.Funnel.FrontendURL,
		"community_link":   s.cfg.Funnel.CommunityLink,
		"bot_link":         s.cfg.Funnel.BotLink,
		"support_link":     s.cfg.Funnel.SupportLink,
	})
}

// DonationLink builds a ton://transfer deeplink for the given amount.
func DonationLink(seller string, amount decimal.Decimal, text string) string {
	if seller == "" {
		return ""
	}
	return fmt.Sprintf("ton://transfer/%s?amount=%d&text=%s",
		seller, verify.ToNano(amount), url.QueryEscape(text))
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	rate, err := s.oracle.Rate(r.Context())
	if err != nil {
		if errors.Is(err, price.ErrPriceUnavailable) {
			// Fail closed: callers should offer manual TON-amount entry
			// instead of retrying in a loop.
			writeError(w, http.StatusServiceUnavailable, "price unavailable; enter the amount in TON directly")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"rate":     rate.String(),
		"currency": s.cfg.Price.Currency,
	})
}

type verifyRequest struct {
	ClaimRef   string      `json:"claim_ref"`
	AmountTon  json.Number `json:"amount_ton"`
	AmountFiat json.Number `json:"amount_fiat"`
	From       string      `json:"from"`
	Since      string      `json:"since"`
	Comment    string      `json:"comment"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	amount, err := s.resolveAmount(r, req)
	if err != nil {
		if errors.Is(err, price.ErrPriceUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "price unavailable; enter the amount in TON directly")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	claim := verify.Claim{
		Ref:         req.ClaimRef,
		MinAmount:   amount,
		FromAddress: req.From,
		Comment:     req.Comment,
	}
	if req.Since != "" {
		since, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		claim.Since = since
	}

	result, err := s.verifier.Verify(r.Context(), claim)
	if err != nil {
		switch {
		case errors.Is(err, verify.ErrSellerNotConfigured):
			writeError(w, http.StatusInternalServerError, "seller address not configured")
		case errors.Is(err, verify.ErrVerifyFailed):
			writeError(w, http.StatusServiceUnavailable, "verification backends unavailable, try again later")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if result.Verified && s.notifier != nil {
		note := alerting.Notification{
			Kind:      alerting.EventDonationVerified,
			ClaimRef:  claim.Ref,
			AmountTon: decimal.NewFromInt(result.Amount).Div(decimal.NewFromInt(1_000_000_000)),
			Via:       result.Via,
		}
		if err := s.notifier.Notify(r.Context(), note); err != nil {
			s.logger.Error().Err(err).Msg("failed to dispatch notification")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"verified": result.Verified,
		"via":      result.Via,
		"tx_hash":  result.TxHash,
	})
}

// resolveAmount picks the claim amount: explicit TON, or fiat converted
// through the oracle, or the configured minimum donation.
func (s *Server) resolveAmount(r *http.Request, req verifyRequest) (decimal.Decimal, error) {
	if req.AmountTon != "" {
		amount, err := decimal.NewFromString(req.AmountTon.String())
		if err != nil || amount.Sign() <= 0 {
			return decimal.Decimal{}, fmt.Errorf("amount_ton must be a positive number")
		}
		return amount, nil
	}
	if req.AmountFiat != "" {
		fiat, err := decimal.NewFromString(req.AmountFiat.String())
		if err != nil || fiat.Sign() <= 0 {
			return decimal.Decimal{}, fmt.Errorf("amount_fiat must be a positive number")
		}
		return s.oracle.ConvertFiat(r.Context(), fiat)
	}
	return decimal.NewFromFloat(s.cfg.Ton.MinDonationTon), nil
}

type proofRequest struct {
	ClaimRef    string `json:"claim_ref"`
	EvidenceRef string `json:"evidence_ref"`
	Note        string `json:"note"`
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	var req proofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ClaimRef == "" {
		writeError(w, http.StatusBadRequest, "claim_ref is required")
		return
	}

	rec := s.verifier.RecordProof(r.Context(), req.ClaimRef, req.EvidenceRef, req.Note)

	if s.notifier != nil {
		note := alerting.Notification{
			Kind:     alerting.EventProofSubmitted,
			ClaimRef: req.ClaimRef,
			Via:      rec.Via,
			Note:     req.Note,
		}
		if err := s.notifier.Notify(r.Context(), note); err != nil {
			s.logger.Error().Err(err).Msg("failed to dispatch notification")
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":        true,
		"claim_ref": rec.ClaimRef,
		"via":       rec.Via,
		"verified":  rec.Verified,
	})
}

type approveRequest struct {
	ClaimRef string `json:"claim_ref"`
	Reviewer string `json:"reviewer"`
	Note     string `json:"note"`
}

func (s *Server) handleAdminApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ClaimRef == "" || req.Reviewer == "" {
		writeError(w, http.StatusBadRequest, "claim_ref and reviewer are required")
		return
	}

	rec := s.verifier.AdminApprove(r.Context(), req.ClaimRef, req.Reviewer, req.Note)

	if s.notifier != nil {
		note := alerting.Notification{
			Kind:     alerting.EventAdminApproved,
			ClaimRef: req.ClaimRef,
			Via:      rec.Via,
			Reviewer: req.Reviewer,
			Note:     req.Note,
		}
		if err := s.notifier.Notify(r.Context(), note); err != nil {
			s.logger.Error().Err(err).Msg("failed to dispatch notification")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"claim_ref": rec.ClaimRef,
		"via":       rec.Via,
		"verified":  rec.Verified,
	})
}

func (s *Server) handleRecentDonations(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}

	records, err := s.store.ListRecentVerifications(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list recent verifications failed")
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	items := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		items = append(items, recordJSON(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "donations": items})
}

func recordJSON(rec storage.VerificationRecord) map[string]any {
	item := map[string]any{
		"claim_ref":  rec.ClaimRef,
		"verified":   rec.Verified,
		"via":        rec.Via,
		"created_at": rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.TxAmountNano != nil {
		item["amount_ton"] = decimal.NewFromInt(*rec.TxAmountNano).Div(decimal.NewFromInt(1_000_000_000)).String()
	}
	if rec.Reviewer != nil {
		item["reviewer"] = *rec.Reviewer
	}
	return item
}
