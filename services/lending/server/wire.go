package server

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"lendpool/native/lending"
)

const maxBodyBytes = 64 << 10

type amountRequest struct {
	Amount string `json:"amount"`
}

type requestLoanRequest struct {
	Amount   string `json:"amount"`
	Duration uint64 `json:"duration"`
	Metadata string `json:"metadata"`
}

type termsRequest struct {
	Amount            string `json:"amount"`
	Duration          uint64 `json:"duration"`
	GracePeriod       uint64 `json:"gracePeriod"`
	InstallmentAmount string `json:"installmentAmount"`
	Installments      uint64 `json:"installments"`
	APR               uint64 `json:"apr"`
}

type repayOnBehalfRequest struct {
	Amount   string `json:"amount"`
	Borrower string `json:"borrower"`
}

type paramRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type idResponse struct {
	ID uint64 `json:"id"`
}

type amountResponse struct {
	Amount string `json:"amount"`
}

type limitsResponse struct {
	Depositable  string `json:"depositable"`
	Unstakable   string `json:"unstakable"`
	Withdrawable string `json:"withdrawable,omitempty"`
}

type apyResponse struct {
	LenderAPY             uint64 `json:"lenderApy"`
	StakerEarningsPercent uint64 `json:"stakerEarningsPercent"`
	PercentDecimals       int    `json:"percentDecimals"`
}

type lenderResponse struct {
	Address         string `json:"address"`
	Shares          string `json:"shares"`
	Balance         string `json:"balance"`
	Withdrawable    string `json:"withdrawable"`
	LastDepositTime uint64 `json:"lastDepositTime"`
}

type applicationResponse struct {
	ID            uint64 `json:"id"`
	Borrower      string `json:"borrower"`
	Amount        string `json:"amount"`
	Duration      uint64 `json:"duration"`
	RequestedTime uint64 `json:"requestedTime"`
	MetadataHash  string `json:"metadataHash"`
	Status        string `json:"status"`
}

type offerResponse struct {
	ApplicationID     uint64 `json:"applicationId"`
	Borrower          string `json:"borrower"`
	Amount            string `json:"amount"`
	Duration          uint64 `json:"duration"`
	GracePeriod       uint64 `json:"gracePeriod"`
	InstallmentAmount string `json:"installmentAmount"`
	Installments      uint64 `json:"installments"`
	APR               uint64 `json:"apr"`
	DraftedTime       uint64 `json:"draftedTime"`
	LockedTime        uint64 `json:"lockedTime"`
	OfferedTime       uint64 `json:"offeredTime"`
}

type loanResponse struct {
	ID                    uint64 `json:"id"`
	ApplicationID         uint64 `json:"applicationId"`
	Borrower              string `json:"borrower"`
	Amount                string `json:"amount"`
	Duration              uint64 `json:"duration"`
	GracePeriod           uint64 `json:"gracePeriod"`
	InstallmentAmount     string `json:"installmentAmount"`
	Installments          uint64 `json:"installments"`
	APR                   uint64 `json:"apr"`
	BorrowedTime          uint64 `json:"borrowedTime"`
	Status                string `json:"status"`
	TotalAmountRepaid     string `json:"totalAmountRepaid"`
	PrincipalAmountRepaid string `json:"principalAmountRepaid"`
	LastPaymentTime       uint64 `json:"lastPaymentTime"`
}

type borrowerResponse struct {
	Address             string `json:"address"`
	RecentApplicationID uint64 `json:"recentApplicationId"`
	RecentLoanID        uint64 `json:"recentLoanId"`
	CountRequested      uint64 `json:"countRequested"`
	CountOffered        uint64 `json:"countOffered"`
	CountCancelled      uint64 `json:"countCancelled"`
	CountDenied         uint64 `json:"countDenied"`
	CountOutstanding    uint64 `json:"countOutstanding"`
	CountRepaid         uint64 `json:"countRepaid"`
	CountDefaulted      uint64 `json:"countDefaulted"`
	AmountBorrowed      string `json:"amountBorrowed"`
	AmountBaseRepaid    string `json:"amountBaseRepaid"`
	AmountInterestPaid  string `json:"amountInterestPaid"`
}

type repaymentResponse struct {
	Paid          string `json:"paid"`
	Principal     string `json:"principal"`
	Interest      string `json:"interest"`
	ProtocolFee   string `json:"protocolFee"`
	StakerEarning string `json:"stakerEarning"`
	FullyRepaid   bool   `json:"fullyRepaid"`
}

type defaultResponse struct {
	Loss       string `json:"loss"`
	StakerLoss string `json:"stakerLoss"`
	LenderLoss string `json:"lenderLoss"`
	Recovered  string `json:"recovered"`
}

type poolResponse struct {
	TokenBalance   string `json:"tokenBalance"`
	PoolFunds      string `json:"poolFunds"`
	RawLiquidity   string `json:"rawLiquidity"`
	AllocatedFunds string `json:"allocatedFunds"`
	BorrowedFunds  string `json:"borrowedFunds"`
	PendingYield   string `json:"pendingYield"`
	TotalShares    string `json:"totalShares"`
	StakedShares   string `json:"stakedShares"`
	StakedBalance  string `json:"stakedBalance"`
	Closed         bool   `json:"closed"`
	Paused         bool   `json:"paused"`
}

type configResponse struct {
	Params   map[string]uint64 `json:"params"`
	Template templateResponse  `json:"template"`
	Token    tokenResponse     `json:"token"`
}

type templateResponse struct {
	APR         uint64 `json:"apr"`
	GracePeriod uint64 `json:"gracePeriod"`
	MinAmount   string `json:"minAmount"`
	MinDuration uint64 `json:"minDuration"`
	MaxDuration uint64 `json:"maxDuration"`
}

type tokenResponse struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

func decodeBody(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

// parseAmount accepts a non-negative base-10 integer string.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: amount required", errBadRequest)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid amount %q", errBadRequest, raw)
	}
	return amount, nil
}

func parseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", errBadRequest, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func pathID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errBadRequest, raw)
	}
	return id, nil
}

func pathAddress(r *http.Request) (common.Address, error) {
	return parseAddress(chi.URLParam(r, "addr"))
}

func (t termsRequest) toTerms() (lending.OfferTerms, error) {
	amount, err := parseAmount(t.Amount)
	if err != nil {
		return lending.OfferTerms{}, err
	}
	installment, err := parseAmount(t.InstallmentAmount)
	if err != nil {
		return lending.OfferTerms{}, err
	}
	return lending.OfferTerms{
		Amount:            amount,
		Duration:          t.Duration,
		GracePeriod:       t.GracePeriod,
		InstallmentAmount: installment,
		Installments:      t.Installments,
		APR:               t.APR,
	}, nil
}

func str(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newPoolResponse(b *lending.PoolBalance) poolResponse {
	return poolResponse{
		TokenBalance:   str(b.TokenBalance),
		PoolFunds:      str(b.PoolFunds),
		RawLiquidity:   str(b.RawLiquidity),
		AllocatedFunds: str(b.AllocatedFunds),
		BorrowedFunds:  str(b.BorrowedFunds),
		PendingYield:   str(b.PendingYield),
		TotalShares:    str(b.TotalShares),
		StakedShares:   str(b.StakedShares),
		StakedBalance:  str(b.StakedBalance),
		Closed:         b.Closed,
		Paused:         b.Paused,
	}
}

func newConfigResponse(cfg lending.PoolConfig, tmpl lending.LoanTemplate, token lending.TokenConfig) configResponse {
	return configResponse{
		Params: map[string]uint64{
			lending.ParamTargetStakePercent:     cfg.TargetStakePercent,
			lending.ParamTargetLiquidityPercent: cfg.TargetLiquidityPercent,
			lending.ParamProtocolFeePercent:     cfg.ProtocolFeePercent,
			"maxProtocolFeePercent":             cfg.MaxProtocolFeePercent,
			lending.ParamStakerEarnFactor:       cfg.StakerEarnFactor,
			lending.ParamStakerEarnFactorMax:    cfg.StakerEarnFactorMax,
			lending.ParamExitFeePercent:         cfg.ExitFeePercent,
			"maxExitFeePercent":                 cfg.MaxExitFeePercent,
		},
		Template: templateResponse{
			APR:         tmpl.APR,
			GracePeriod: tmpl.GracePeriod,
			MinAmount:   str(tmpl.MinAmount),
			MinDuration: tmpl.MinDuration,
			MaxDuration: tmpl.MaxDuration,
		},
		Token: tokenResponse{Symbol: token.Symbol, Decimals: token.Decimals},
	}
}

func newApplicationResponse(a *lending.LoanApplication) applicationResponse {
	return applicationResponse{
		ID:            a.ID,
		Borrower:      a.Borrower.Hex(),
		Amount:        str(a.Amount),
		Duration:      a.Duration,
		RequestedTime: a.RequestedTime,
		MetadataHash:  common.Bytes2Hex(a.MetadataHash[:]),
		Status:        a.Status.String(),
	}
}

func newOfferResponse(o *lending.LoanOffer) offerResponse {
	return offerResponse{
		ApplicationID:     o.ApplicationID,
		Borrower:          o.Borrower.Hex(),
		Amount:            str(o.Amount),
		Duration:          o.Duration,
		GracePeriod:       o.GracePeriod,
		InstallmentAmount: str(o.InstallmentAmount),
		Installments:      o.Installments,
		APR:               o.APR,
		DraftedTime:       o.DraftedTime,
		LockedTime:        o.LockedTime,
		OfferedTime:       o.OfferedTime,
	}
}

func newLoanResponse(l *lending.Loan, d *lending.LoanDetail) loanResponse {
	return loanResponse{
		ID:                    l.ID,
		ApplicationID:         l.ApplicationID,
		Borrower:              l.Borrower.Hex(),
		Amount:                str(l.Amount),
		Duration:              l.Duration,
		GracePeriod:           l.GracePeriod,
		InstallmentAmount:     str(l.InstallmentAmount),
		Installments:          l.Installments,
		APR:                   l.APR,
		BorrowedTime:          l.BorrowedTime,
		Status:                l.Status.String(),
		TotalAmountRepaid:     str(d.TotalAmountRepaid),
		PrincipalAmountRepaid: str(d.PrincipalAmountRepaid),
		LastPaymentTime:       d.LastPaymentTime,
	}
}

func newBorrowerResponse(s *lending.BorrowerStats) borrowerResponse {
	return borrowerResponse{
		Address:             s.Borrower.Hex(),
		RecentApplicationID: s.RecentApplicationID,
		RecentLoanID:        s.RecentLoanID,
		CountRequested:      s.CountRequested,
		CountOffered:        s.CountOffered,
		CountCancelled:      s.CountCancelled,
		CountDenied:         s.CountDenied,
		CountOutstanding:    s.CountOutstanding,
		CountRepaid:         s.CountRepaid,
		CountDefaulted:      s.CountDefaulted,
		AmountBorrowed:      str(s.AmountBorrowed),
		AmountBaseRepaid:    str(s.AmountBaseRepaid),
		AmountInterestPaid:  str(s.AmountInterestPaid),
	}
}

func newRepaymentResponse(o *lending.RepaymentOutcome) repaymentResponse {
	return repaymentResponse{
		Paid:          str(o.Paid),
		Principal:     str(o.Principal),
		Interest:      str(o.Interest),
		ProtocolFee:   str(o.ProtocolFee),
		StakerEarning: str(o.StakerEarning),
		FullyRepaid:   o.FullyRepaid,
	}
}
