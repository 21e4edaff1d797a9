package server

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/native/lending"
)

func requestActor(r *http.Request) common.Address {
	actor, _ := ActorFromContext(r.Context())
	return actor
}

func (s *Server) amountOp(op string, fn func(context.Context, common.Address, *big.Int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req amountRequest
		if err := decodeBody(r, &req); err != nil {
			s.fail(w, r, op, err)
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			s.fail(w, r, op, err)
			return
		}
		if err := fn(r.Context(), requestActor(r), amount); err != nil {
			s.fail(w, r, op, err)
			return
		}
		s.observe()
		writeJSON(w, http.StatusOK, amountResponse{Amount: amount.String()})
	}
}

func (s *Server) actorOp(op string, fn func(context.Context, common.Address) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context(), requestActor(r)); err != nil {
			s.fail(w, r, op, err)
			return
		}
		s.observe()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) applicationOp(op string, fn func(context.Context, common.Address, uint64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.fail(w, r, op, err)
			return
		}
		if err := fn(r.Context(), requestActor(r), id); err != nil {
			s.fail(w, r, op, err)
			return
		}
		s.observe()
		writeJSON(w, http.StatusOK, idResponse{ID: id})
	}
}

func (s *Server) termsOp(op string, fn func(context.Context, common.Address, uint64, lending.OfferTerms) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.fail(w, r, op, err)
			return
		}
		var req termsRequest
		if err := decodeBody(r, &req); err != nil {
			s.fail(w, r, op, err)
			return
		}
		terms, err := req.toTerms()
		if err != nil {
			s.fail(w, r, op, err)
			return
		}
		if err := fn(r.Context(), requestActor(r), id, terms); err != nil {
			s.fail(w, r, op, err)
			return
		}
		s.observe()
		writeJSON(w, http.StatusOK, idResponse{ID: id})
	}
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	settled, err := s.engine.SettleYield(r.Context(), requestActor(r))
	if err != nil {
		s.fail(w, r, "settle_yield", err)
		return
	}
	s.observe()
	writeJSON(w, http.StatusOK, amountResponse{Amount: str(settled)})
}

func (s *Server) handleSetParam(w http.ResponseWriter, r *http.Request) {
	const op = "set_param"
	var req paramRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == lending.ParamMinLoanAmount {
		amount, err := parseAmount(req.Value)
		if err != nil {
			s.fail(w, r, op, err)
			return
		}
		if err := s.engine.SetMinLoanAmount(r.Context(), requestActor(r), amount); err != nil {
			s.fail(w, r, op, err)
			return
		}
	} else {
		value, err := strconv.ParseUint(strings.TrimSpace(req.Value), 10, 64)
		if err != nil {
			s.fail(w, r, op, fmt.Errorf("%w: invalid value %q", errBadRequest, req.Value))
			return
		}
		if err := s.engine.SetParam(r.Context(), requestActor(r), name, value); err != nil {
			s.fail(w, r, op, err)
			return
		}
	}
	s.observe()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRequestLoan(w http.ResponseWriter, r *http.Request) {
	const op = "request_loan"
	var req requestLoanRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	id, err := s.engine.RequestLoan(r.Context(), requestActor(r), amount, req.Duration, []byte(req.Metadata))
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	const op = "borrow"
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	loanID, err := s.engine.Borrow(r.Context(), requestActor(r), id)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	s.observe()
	writeJSON(w, http.StatusCreated, idResponse{ID: loanID})
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	const op = "repay"
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	outcome, err := s.engine.Repay(r.Context(), requestActor(r), id, amount)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	s.observe()
	writeJSON(w, http.StatusOK, newRepaymentResponse(outcome))
}

func (s *Server) handleRepayOnBehalf(w http.ResponseWriter, r *http.Request) {
	const op = "repay_on_behalf"
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	var req repayOnBehalfRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	outcome, err := s.engine.RepayOnBehalf(r.Context(), requestActor(r), id, amount, borrower)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	s.observe()
	writeJSON(w, http.StatusOK, newRepaymentResponse(outcome))
}

func (s *Server) handleDefault(w http.ResponseWriter, r *http.Request) {
	const op = "default_loan"
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	outcome, err := s.engine.DefaultLoan(r.Context(), requestActor(r), id)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	s.observe()
	writeJSON(w, http.StatusOK, defaultResponse{
		Loss:       str(outcome.Loss),
		StakerLoss: str(outcome.StakerLoss),
		LenderLoss: str(outcome.LenderLoss),
		Recovered:  str(outcome.Recovered),
	})
}

// Views. Read failures are not counted as operation failures.

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	balance, err := s.engine.PoolBalance()
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, newPoolResponse(balance))
}

func (s *Server) handlePoolConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.PoolConfig()
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	tmpl, err := s.engine.LoanTemplate()
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	token, err := s.engine.TokenConfig()
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, newConfigResponse(cfg, tmpl, token))
}

// handleLimits reports pool-wide limits. An optional ?lender= query adds the
// lender's withdrawable amount.
func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	depositable, err := s.engine.AmountDepositable()
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	unstakable, err := s.engine.AmountUnstakable()
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	resp := limitsResponse{Depositable: str(depositable), Unstakable: str(unstakable)}
	if raw := r.URL.Query().Get("lender"); raw != "" {
		addr, err := parseAddress(raw)
		if err != nil {
			s.fail(w, r, "", err)
			return
		}
		withdrawable, err := s.engine.AmountWithdrawable(addr)
		if err != nil {
			s.fail(w, r, "", err)
			return
		}
		resp.Withdrawable = str(withdrawable)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPY(w http.ResponseWriter, r *http.Request) {
	current, err := s.engine.CurrentLenderAPY()
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	staker, err := s.engine.StakerEarningsPercent()
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, apyResponse{LenderAPY: current, StakerEarningsPercent: staker, PercentDecimals: lending.PercentDecimals})
}

// handleProjectedAPY accepts ?borrowRate= and ?apr= at one decimal of
// precision. They default to full utilisation and the template APR.
func (s *Server) handleProjectedAPY(w http.ResponseWriter, r *http.Request) {
	borrowRate := lending.OneHundredPercent
	if raw := r.URL.Query().Get("borrowRate"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.fail(w, r, "", fmt.Errorf("%w: invalid borrowRate %q", errBadRequest, raw))
			return
		}
		borrowRate = v
	}
	var apr uint64
	if raw := r.URL.Query().Get("apr"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.fail(w, r, "", fmt.Errorf("%w: invalid apr %q", errBadRequest, raw))
			return
		}
		apr = v
	} else {
		tmpl, err := s.engine.LoanTemplate()
		if err != nil {
			s.fail(w, r, "", err)
			return
		}
		apr = tmpl.APR
	}
	projected, err := s.engine.ProjectedLenderAPY(borrowRate, apr)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, apyResponse{LenderAPY: projected, PercentDecimals: lending.PercentDecimals})
}

func (s *Server) handleLender(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	pos, err := s.engine.Lender(addr)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	balance, err := s.engine.BalanceOf(addr)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	withdrawable, err := s.engine.AmountWithdrawable(addr)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, lenderResponse{
		Address:         addr.Hex(),
		Shares:          str(pos.Shares),
		Balance:         str(balance),
		Withdrawable:    str(withdrawable),
		LastDepositTime: pos.LastDepositTime,
	})
}

func (s *Server) handleRevenue(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	amount, err := s.engine.RevenueBalanceOf(addr)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: str(amount)})
}

func (s *Server) handleBorrower(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	stats, err := s.engine.BorrowerStats(addr)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, newBorrowerResponse(stats))
}

func (s *Server) handleApplication(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	app, err := s.engine.LoanApplication(id)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, newApplicationResponse(app))
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	offer, err := s.engine.LoanOffer(id)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, newOfferResponse(offer))
}

func (s *Server) handleLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	loan, err := s.engine.Loan(id)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	detail, err := s.engine.LoanDetail(id)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanResponse(loan, detail))
}

func (s *Server) handleLoanDue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	due, err := s.engine.LoanBalanceDue(id)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	defaultable, err := s.engine.CanDefault(id)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Amount     string `json:"amount"`
		CanDefault bool   `json:"canDefault"`
	}{Amount: str(due), CanDefault: defaultable})
}
