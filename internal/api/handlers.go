package api

import (
	"math/big"
	"time"

	"github.com/gin-gonic/gin"

	"ammengine/internal/amm"
	"ammengine/internal/model"
)

type poolResult struct {
	ID          string `json:"pool_id"`
	TokenA      string `json:"token_a"`
	TokenB      string `json:"token_b"`
	ReserveA    string `json:"reserve_a"`
	ReserveB    string `json:"reserve_b"`
	TotalShares string `json:"total_shares"`
	FeeBps      uint16 `json:"fee_bps"`
	SpotPrice   string `json:"spot_price,omitempty"`
	Paused      bool   `json:"paused"`
}

func (s *Server) poolResult(v model.PoolView) poolResult {
	out := poolResult{
		ID:          v.ID,
		TokenA:      v.TokenA,
		TokenB:      v.TokenB,
		ReserveA:    formatAmount(v.ReserveA),
		ReserveB:    formatAmount(v.ReserveB),
		TotalShares: formatAmount(v.TotalShares),
		FeeBps:      v.FeeBps,
		Paused:      s.engine.Emergency.IsPaused(v.ID),
	}
	if price, err := amm.CalculatePoolPrice(v.ReserveA, v.ReserveB); err == nil {
		out.SpotPrice = formatPrice(price)
	}
	return out
}

func (s *Server) listPools(c *gin.Context) {
	views := s.engine.Pools.Pools()
	out := make([]poolResult, 0, len(views))
	for _, v := range views {
		out = append(out, s.poolResult(v))
	}
	respondOK(c, out)
}

func (s *Server) getPool(c *gin.Context) {
	view, err := s.engine.Pools.GetPool(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, s.poolResult(view))
}

type createPoolRequest struct {
	Provider string `json:"provider" binding:"required"`
	TokenA   string `json:"token_a" binding:"required"`
	TokenB   string `json:"token_b" binding:"required"`
	ReserveA string `json:"reserve_a" binding:"required"`
	ReserveB string `json:"reserve_b" binding:"required"`
}

func (s *Server) createPool(c *gin.Context) {
	var req createPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("%v", err))
		return
	}
	reserveA, err := parseAmount("reserve_a", req.ReserveA, false)
	if err != nil {
		respondError(c, err)
		return
	}
	reserveB, err := parseAmount("reserve_b", req.ReserveB, false)
	if err != nil {
		respondError(c, err)
		return
	}
	id, err := s.engine.CreatePool(req.Provider, req.TokenA, req.TokenB, reserveA, reserveB)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"pool_id": id})
}

type swapRequest struct {
	Trader       string `json:"trader" binding:"required"`
	TokenIn      string `json:"token_in" binding:"required"`
	TokenOut     string `json:"token_out"`
	AmountIn     string `json:"amount_in" binding:"required"`
	MinAmountOut string `json:"min_amount_out"`
}

func (r swapRequest) amounts() (*big.Int, *big.Int, error) {
	amountIn, err := parseAmount("amount_in", r.AmountIn, false)
	if err != nil {
		return nil, nil, err
	}
	minOut, err := parseAmount("min_amount_out", r.MinAmountOut, true)
	if err != nil {
		return nil, nil, err
	}
	return amountIn, minOut, nil
}

func (s *Server) swap(c *gin.Context) {
	var req swapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("%v", err))
		return
	}
	amountIn, minOut, err := req.amounts()
	if err != nil {
		respondError(c, err)
		return
	}
	out, err := s.engine.Swap(req.Trader, c.Param("id"), req.TokenIn, amountIn, minOut)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"amount_out": formatAmount(out)})
}

func (s *Server) quote(c *gin.Context) {
	amountIn, err := parseAmount("amount_in", c.Query("amount_in"), false)
	if err != nil {
		respondError(c, err)
		return
	}
	out, err := s.engine.Quote(c.Param("id"), c.Query("token_in"), amountIn)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"amount_out": formatAmount(out)})
}

type hopResult struct {
	PoolID    string `json:"pool_id"`
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}

func hopResults(hops []model.Hop) []hopResult {
	out := make([]hopResult, 0, len(hops))
	for _, h := range hops {
		out = append(out, hopResult{
			PoolID:    h.PoolID,
			TokenIn:   h.TokenIn,
			TokenOut:  h.TokenOut,
			AmountIn:  formatAmount(h.AmountIn),
			AmountOut: formatAmount(h.AmountOut),
		})
	}
	return out
}

func (s *Server) swapRoute(c *gin.Context) {
	var req swapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("%v", err))
		return
	}
	if req.TokenOut == "" {
		respondError(c, badRequest("token_out is required"))
		return
	}
	amountIn, minOut, err := req.amounts()
	if err != nil {
		respondError(c, err)
		return
	}
	hops, err := s.engine.SwapRoute(req.Trader, req.TokenIn, req.TokenOut, amountIn, minOut)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"hops":       hopResults(hops),
		"amount_out": formatAmount(hops[len(hops)-1].AmountOut),
	})
}

func (s *Server) findRoute(c *gin.Context) {
	amountIn, err := parseAmount("amount_in", c.Query("amount_in"), false)
	if err != nil {
		respondError(c, err)
		return
	}
	route, err := s.engine.FindRoute(c.Query("token_in"), c.Query("token_out"), amountIn)
	if err != nil {
		respondError(c, err)
		return
	}
	result := gin.H{
		"pool_ids":         route.PoolIDs(),
		"hops":             hopResults(route.Hops),
		"estimated_output": formatAmount(route.EstimatedOutput),
	}
	if route.OracleOutput != nil {
		result["oracle_output"] = formatAmount(route.OracleOutput)
	}
	if route.DeviationBps != nil {
		result["deviation_bps"] = *route.DeviationBps
	}
	respondOK(c, result)
}

type liquidityRequest struct {
	Provider string `json:"provider" binding:"required"`
	AmountA  string `json:"amount_a"`
	AmountB  string `json:"amount_b"`
	Shares   string `json:"shares"`
}

func (s *Server) addLiquidity(c *gin.Context) {
	var req liquidityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("%v", err))
		return
	}
	amountA, err := parseAmount("amount_a", req.AmountA, false)
	if err != nil {
		respondError(c, err)
		return
	}
	amountB, err := parseAmount("amount_b", req.AmountB, false)
	if err != nil {
		respondError(c, err)
		return
	}
	minted, err := s.engine.AddLiquidity(req.Provider, c.Param("id"), amountA, amountB)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"shares_minted": formatAmount(minted)})
}

func (s *Server) removeLiquidity(c *gin.Context) {
	var req liquidityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("%v", err))
		return
	}
	shares, err := parseAmount("shares", req.Shares, false)
	if err != nil {
		respondError(c, err)
		return
	}
	amountA, amountB, err := s.engine.RemoveLiquidity(req.Provider, c.Param("id"), shares)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"amount_a": formatAmount(amountA), "amount_b": formatAmount(amountB)})
}

func (s *Server) getPosition(c *gin.Context) {
	pos, err := s.engine.Pools.Position(c.Param("id"), c.Param("owner"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"pool_id": pos.PoolID, "owner": pos.Owner, "shares": formatAmount(pos.Shares)})
}

type adminRequest struct {
	Admin string `json:"admin" binding:"required"`
}

func (s *Server) pause(c *gin.Context) {
	var req adminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("%v", err))
		return
	}
	if err := s.engine.Pause(c.Param("id"), req.Admin); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"paused": true})
}

func (s *Server) unpause(c *gin.Context) {
	var req adminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("%v", err))
		return
	}
	if err := s.engine.Unpause(c.Param("id"), req.Admin); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"paused": false})
}

type addAdminRequest struct {
	Caller string `json:"caller" binding:"required"`
	Admin  string `json:"admin" binding:"required"`
}

func (s *Server) addAdmin(c *gin.Context) {
	var req addAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("%v", err))
		return
	}
	if err := s.engine.AddAdmin(req.Caller, req.Admin); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"admin": req.Admin})
}

type withdrawRequest struct {
	Admin     string `json:"admin" binding:"required"`
	Token     string `json:"token" binding:"required"`
	Recipient string `json:"recipient"`
}

func (s *Server) withdrawFees(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("%v", err))
		return
	}
	amount, err := s.engine.WithdrawFees(req.Admin, c.Param("id"), req.Token, req.Recipient)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"amount": formatAmount(amount)})
}

func (s *Server) listFees(c *gin.Context) {
	balances := s.engine.Fees.Balances()
	out := make([]gin.H, 0, len(balances))
	for _, b := range balances {
		out = append(out, gin.H{"pool_id": b.PoolID, "token": b.Token, "amount": formatAmount(b.Amount)})
	}
	respondOK(c, out)
}

type programRequest struct {
	Admin       string `json:"admin" binding:"required"`
	RewardToken string `json:"reward_token" binding:"required"`
	RewardRate  string `json:"reward_rate" binding:"required"`
	Duration    string `json:"duration" binding:"required"`
}

func (r programRequest) parse() (*big.Int, time.Duration, error) {
	rate, err := parseAmount("reward_rate", r.RewardRate, false)
	if err != nil {
		return nil, 0, err
	}
	duration, err := time.ParseDuration(r.Duration)
	if err != nil {
		return nil, 0, badRequest("duration: %v", err)
	}
	return rate, duration, nil
}

func (s *Server) createProgram(c *gin.Context) {
	var req programRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("%v", err))
		return
	}
	rate, duration, err := req.parse()
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.engine.CreateProgram(req.Admin, c.Param("id"), req.RewardToken, rate, duration); err != nil {
		respondError(c, err)
		return
	}
	s.getProgram(c)
}

func (s *Server) resetProgram(c *gin.Context) {
	var req programRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("%v", err))
		return
	}
	rate, duration, err := req.parse()
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.engine.ResetProgram(req.Admin, c.Param("id"), req.RewardToken, rate, duration); err != nil {
		respondError(c, err)
		return
	}
	s.getProgram(c)
}

func (s *Server) getProgram(c *gin.Context) {
	p, err := s.engine.Mining.Program(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"pool_id":      p.PoolID,
		"reward_token": p.RewardToken,
		"reward_rate":  formatAmount(p.RewardRate),
		"start_time":   p.StartTime,
		"end_time":     p.EndTime,
		"total_staked": formatAmount(p.TotalStaked),
	})
}

type stakeRequest struct {
	User   string `json:"user" binding:"required"`
	Amount string `json:"amount"`
}

func stakeResult(st model.Stake) gin.H {
	return gin.H{
		"pool_id":      st.PoolID,
		"user":         st.User,
		"amount":       formatAmount(st.Amount),
		"accrued":      formatAmount(st.Accrued),
		"last_accrual": st.LastAccrual,
	}
}

func (s *Server) stake(c *gin.Context) {
	var req stakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("%v", err))
		return
	}
	amount, err := parseAmount("amount", req.Amount, false)
	if err != nil {
		respondError(c, err)
		return
	}
	st, err := s.engine.Stake(c.Param("id"), req.User, amount)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, stakeResult(st))
}

func (s *Server) unstake(c *gin.Context) {
	var req stakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("%v", err))
		return
	}
	amount, err := parseAmount("amount", req.Amount, false)
	if err != nil {
		respondError(c, err)
		return
	}
	st, err := s.engine.Unstake(c.Param("id"), req.User, amount)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, stakeResult(st))
}

func (s *Server) harvest(c *gin.Context) {
	var req stakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("%v", err))
		return
	}
	paid, err := s.engine.Harvest(c.Param("id"), req.User)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"paid": formatAmount(paid)})
}

func (s *Server) pending(c *gin.Context) {
	amount, err := s.engine.Mining.CalculatePending(c.Param("id"), c.Param("user"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"pending": formatAmount(amount)})
}

type priceRequest struct {
	Price string `json:"price" binding:"required"`
}

func (s *Server) setPrice(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("%v", err))
		return
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.engine.SetPrice(c.Param("token"), price); err != nil {
		respondError(c, err)
		return
	}
	s.getPrice(c)
}

// getPrice answers with a null Result when the price is absent or stale.
func (s *Server) getPrice(c *gin.Context) {
	point, ok := s.engine.GetPrice(c.Param("token"))
	if !ok {
		respondOK(c, nil)
		return
	}
	respondOK(c, gin.H{
		"token":       point.Token,
		"price":       formatPrice(point.Price),
		"price_raw":   formatAmount(point.Price),
		"observed_at": point.ObservedAt,
	})
}

func (s *Server) poolEvents(c *gin.Context) {
	id := c.Param("id")
	if !s.engine.Pools.HasPool(id) {
		respondError(c, amm.ErrPoolNotFound)
		return
	}
	events, err := s.engine.Events.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, events)
}
