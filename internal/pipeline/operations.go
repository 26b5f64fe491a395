package pipeline

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"pol-gateway/internal/domain"
)

// Transfer sends native POL to req.Recipient.
func (p *Pipeline) Transfer(ctx context.Context, req TransferRequest) (*Result, error) {
	if err := p.check(req); err != nil {
		return nil, err
	}
	value, err := ToWei(req.AmountPOL)
	if err != nil {
		return nil, err
	}
	recipient := common.HexToAddress(req.Recipient)

	return p.run(ctx, domain.KindTransfer, req.IdempotencyKey, func(context.Context) (*txPlan, error) {
		return &txPlan{
			to:    recipient,
			value: value,
			entry: domain.ActivityEntry{
				AmountA:      req.AmountPOL.InexactFloat64(),
				Counterparty: recipient.Hex(),
			},
		}, nil
	})
}

// BuyWithStablecoin swaps req.AmountUSD of DAI for POL along [DAI, POL].
func (p *Pipeline) BuyWithStablecoin(ctx context.Context, req BuyRequest) (*Result, error) {
	if err := p.check(req); err != nil {
		return nil, err
	}
	amountIn, err := ToWei(req.AmountUSD)
	if err != nil {
		return nil, err
	}

	path := []common.Address{p.cfg.DAI, p.cfg.POL}
	return p.run(ctx, domain.KindBuy, req.IdempotencyKey, func(ctx context.Context) (*txPlan, error) {
		plan, out, err := p.swapPlan(ctx, amountIn, path)
		if err != nil {
			return nil, err
		}
		plan.entry = domain.ActivityEntry{
			AmountA:      FromWei(out),
			AmountB:      req.AmountUSD.InexactFloat64(),
			Counterparty: p.router.Address().Hex(),
		}
		return plan, nil
	})
}

// SellForStablecoin swaps req.AmountPOL of POL for DAI along [POL, DAI].
func (p *Pipeline) SellForStablecoin(ctx context.Context, req SellRequest) (*Result, error) {
	if err := p.check(req); err != nil {
		return nil, err
	}
	amountIn, err := ToWei(req.AmountPOL)
	if err != nil {
		return nil, err
	}

	path := []common.Address{p.cfg.POL, p.cfg.DAI}
	return p.run(ctx, domain.KindSell, req.IdempotencyKey, func(ctx context.Context) (*txPlan, error) {
		plan, out, err := p.swapPlan(ctx, amountIn, path)
		if err != nil {
			return nil, err
		}
		plan.entry = domain.ActivityEntry{
			AmountA:      req.AmountPOL.InexactFloat64(),
			AmountB:      FromWei(out),
			Counterparty: p.router.Address().Hex(),
		}
		return plan, nil
	})
}

// SwapBaseToken swaps req.AmountPOL of POL for req.TokenOut.
func (p *Pipeline) SwapBaseToken(ctx context.Context, req SwapRequest) (*Result, error) {
	if err := p.check(req); err != nil {
		return nil, err
	}
	amountIn, err := ToWei(req.AmountPOL)
	if err != nil {
		return nil, err
	}
	tokenOut := common.HexToAddress(req.TokenOut)
	if tokenOut == p.cfg.POL {
		return nil, fmt.Errorf("%w: token_out must differ from the base token", domain.ErrValidation)
	}

	path := []common.Address{p.cfg.POL, tokenOut}
	return p.run(ctx, domain.KindSwap, req.IdempotencyKey, func(ctx context.Context) (*txPlan, error) {
		plan, out, err := p.swapPlan(ctx, amountIn, path)
		if err != nil {
			return nil, err
		}
		plan.entry = domain.ActivityEntry{
			AmountA:      req.AmountPOL.InexactFloat64(),
			AmountB:      FromWei(out),
			Counterparty: tokenOut.Hex(),
		}
		return plan, nil
	})
}

// AddLiquidityRebalance supplies AmountA of TokenA and AmountB of TokenB to
// the pool after checking the wallet holds both.
func (p *Pipeline) AddLiquidityRebalance(ctx context.Context, req RebalanceRequest) (*Result, error) {
	if err := p.check(req); err != nil {
		return nil, err
	}
	return p.rebalance(ctx, domain.KindRebalance, req)
}

// AutoRebalance adds liquidity only when the signal recommends a
// rebalance. Otherwise it returns Executed=false with the decision and
// submits nothing.
func (p *Pipeline) AutoRebalance(ctx context.Context, req RebalanceRequest) (*Result, error) {
	if err := p.check(req); err != nil {
		return nil, err
	}
	decision, err := p.signal.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	if !decision.Rebalance {
		p.logger.Info().
			Bool("buy", decision.Buy).
			Bool("sell", decision.Sell).
			Msg("auto-rebalance not triggered")
		return &Result{Executed: false, Decision: &decision}, nil
	}

	res, err := p.rebalance(ctx, domain.KindAutoRebalance, req)
	if res != nil {
		res.Decision = &decision
	}
	return res, err
}

func (p *Pipeline) rebalance(ctx context.Context, kind domain.OperationKind, req RebalanceRequest) (*Result, error) {
	amountA, err := ToWei(req.AmountA)
	if err != nil {
		return nil, err
	}
	amountB, err := ToWei(req.AmountB)
	if err != nil {
		return nil, err
	}
	tokenA := common.HexToAddress(req.TokenA)
	tokenB := common.HexToAddress(req.TokenB)

	return p.run(ctx, kind, req.IdempotencyKey, func(ctx context.Context) (*txPlan, error) {
		owner := p.signer.Address()
		if err := p.requireBalance(ctx, tokenA, owner, amountA); err != nil {
			return nil, err
		}
		if err := p.requireBalance(ctx, tokenB, owner, amountB); err != nil {
			return nil, err
		}

		one := big.NewInt(1)
		data, err := p.router.AddLiquidity(tokenA, tokenB, amountA, amountB, one, one, owner, p.deadline())
		if err != nil {
			return nil, fmt.Errorf("encode addLiquidity: %w", err)
		}
		return &txPlan{
			to:   p.router.Address(),
			data: data,
			entry: domain.ActivityEntry{
				AmountA:      req.AmountA.InexactFloat64(),
				AmountB:      req.AmountB.InexactFloat64(),
				Counterparty: tokenA.Hex() + "/" + tokenB.Hex(),
			},
		}, nil
	})
}

// swapPlan quotes amountIn along path and encodes the swap with the
// quoted output, less slippage, as the minimum.
func (p *Pipeline) swapPlan(ctx context.Context, amountIn *big.Int, path []common.Address) (*txPlan, *big.Int, error) {
	amounts, err := p.router.GetAmountsOut(ctx, amountIn, path)
	if err != nil {
		return nil, nil, chainError("quote", err)
	}
	quoted := amounts[len(amounts)-1]
	if quoted.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: quote returned no output for %s", domain.ErrChain, amountIn)
	}

	data, err := p.router.SwapExactTokensForTokens(amountIn, MinOut(quoted, p.cfg.SlippageBps), path, p.signer.Address(), p.deadline())
	if err != nil {
		return nil, nil, fmt.Errorf("encode swap: %w", err)
	}
	return &txPlan{to: p.router.Address(), data: data}, quoted, nil
}

func (p *Pipeline) requireBalance(ctx context.Context, token, owner common.Address, need *big.Int) error {
	have, err := p.tokens.BalanceOf(ctx, token, owner)
	if err != nil {
		return chainError("balanceOf "+token.Hex(), err)
	}
	if have.Cmp(need) < 0 {
		return fmt.Errorf("%w: insufficient balance of %s: have %s, need %s",
			domain.ErrValidation,
			token.Hex(),
			decimal.NewFromBigInt(have, -tokenDecimals),
			decimal.NewFromBigInt(need, -tokenDecimals))
	}
	return nil
}

func (p *Pipeline) deadline() *big.Int {
	return big.NewInt(p.now().Add(p.cfg.Deadline).Unix())
}
