package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"pol-gateway/internal/contracts"
	"pol-gateway/internal/domain"
	"pol-gateway/internal/evm"
	"pol-gateway/internal/idhash"
	"pol-gateway/internal/observability"
	"pol-gateway/internal/storage"
)

// Stage names used in logs and metrics.
const (
	stageQuote   = "quote"
	stageBuild   = "build"
	stageSign    = "sign"
	stageSubmit  = "submit"
	stageConfirm = "confirm"
	stageRecord  = "record"
)

// txPlan is a prepared call and the activity entry it produces on success.
type txPlan struct {
	to    common.Address
	value *big.Int
	data  []byte
	entry domain.ActivityEntry
}

type prepareFunc func(ctx context.Context) (*txPlan, error)

// errBroadcastUnknown marks a broadcast that ended without a definite
// answer from the node. The transaction may already be in its pool.
var errBroadcastUnknown = errors.New("broadcast outcome unknown")

// execution carries one invocation through the stages.
type execution struct {
	kind    domain.OperationKind
	key     string // idempotency store key, empty when none
	record  *domain.TransactionRecord
	logger  zerolog.Logger
	started time.Time
}

// run is the shared path of every mutating operation. The request has
// already been validated.
func (p *Pipeline) run(ctx context.Context, kind domain.OperationKind, idemKey string, prepare prepareFunc) (*Result, error) {
	ex := &execution{kind: kind, started: p.now()}

	if idemKey != "" {
		ex.key = idhash.IdempotencyStoreKey(kind, idemKey)
		hash, err := p.idem.Reserve(ctx, ex.key, p.cfg.IdempotencyTTL)
		if err != nil {
			return nil, err
		}
		if hash != "" {
			observability.RecordIdempotentHit()
			p.logger.Info().Str("kind", string(kind)).Str("tx_hash", hash).Msg("idempotent replay")
			return &Result{TxHash: hash, Replayed: true, Executed: true}, nil
		}
	}

	nowMs := ex.started.UnixMilli()
	ex.record = &domain.TransactionRecord{
		ID:             idhash.ComputeRequestID(kind, p.signer.Address().Hex(), idemKey),
		Kind:           kind,
		IdempotencyKey: idemKey,
		Status:         domain.TxStatusSubmitted,
		CreatedAt:      nowMs,
		UpdatedAt:      nowMs,
	}
	ex.logger = p.logger.With().Str("kind", string(kind)).Str("request_id", ex.record.ID).Logger()
	p.insertRecord(ctx, ex)

	t := time.Now()
	plan, err := prepare(ctx)
	observability.RecordStage(stageQuote, time.Since(t).Seconds())
	if err != nil {
		return nil, p.fail(ctx, ex, stageQuote, err, false)
	}

	signed, stage, err := p.submit(ctx, ex, plan)
	switch {
	case errors.Is(err, errBroadcastUnknown):
		// Only a receipt, or its absence, settles what the node did.
		ex.logger.Warn().Err(err).Msg("awaiting receipt for unacknowledged broadcast")
	case err != nil:
		return nil, p.fail(ctx, ex, stage, err, false)
	}
	observability.RecordTxSubmitted(string(kind))

	receipt, err := p.confirm(ctx, ex, signed.Hash())
	if err != nil {
		// The node may hold the transaction; keep the key so a retry cannot
		// submit a second one.
		return nil, p.fail(ctx, ex, stageConfirm, err, true)
	}
	if receipt.Status != evm.ReceiptStatusSuccessful {
		revert := &domain.RevertError{
			TxHash: signed.Hash().Hex(),
			Reason: p.revertReason(ctx, plan, receipt.BlockNumber),
		}
		ex.record.BlockNumber = receipt.BlockNumber
		ex.record.GasUsed = receipt.GasUsed
		return nil, p.fail(ctx, ex, stageConfirm, revert, false)
	}

	return p.succeed(ctx, ex, plan, signed, receipt)
}

// submit builds, signs and broadcasts plan while holding a nonce lease.
// It returns the failing stage alongside any error.
func (p *Pipeline) submit(ctx context.Context, ex *execution, plan *txPlan) (*types.Transaction, string, error) {
	t := time.Now()
	from := p.signer.Address()
	to := plan.to
	gasPrice, err := p.client.GasPrice(ctx)
	if err != nil {
		return nil, stageBuild, fmt.Errorf("%w: gas price: %v", domain.ErrChain, err)
	}
	estimate, err := p.client.EstimateGas(ctx, evm.CallMsg{From: from, To: &to, Value: plan.value, Data: plan.data})
	if err != nil {
		return nil, stageBuild, chainError("estimate gas", err)
	}
	gas := GasLimit(estimate, p.cfg.GasMultiplier)
	observability.RecordStage(stageBuild, time.Since(t).Seconds())

	lease, err := p.nonces.Acquire(ctx)
	if err != nil {
		return nil, stageBuild, fmt.Errorf("%w: %v", domain.ErrChain, err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := lease.Abort(ctx); err != nil {
			ex.logger.Warn().Err(err).Msg("release nonce lease")
		}
	}()

	t = time.Now()
	value := plan.value
	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    lease.Nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     plan.data,
	})
	signed, err := p.signer.SignTx(tx)
	if err != nil {
		return nil, stageSign, fmt.Errorf("sign transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, stageSign, fmt.Errorf("encode transaction: %w", err)
	}
	observability.RecordStage(stageSign, time.Since(t).Seconds())

	ex.record.TxHash = signed.Hash().Hex()
	ex.record.Nonce = lease.Nonce
	ex.logger = ex.logger.With().Str("tx_hash", ex.record.TxHash).Uint64("nonce", lease.Nonce).Logger()

	t = time.Now()
	if err := p.broadcast(ctx, ex, raw); err != nil {
		if errors.Is(err, errBroadcastUnknown) {
			return signed, stageSubmit, err
		}
		return nil, stageSubmit, err
	}
	observability.RecordStage(stageSubmit, time.Since(t).Seconds())

	committed = true
	if err := lease.Commit(ctx); err != nil {
		ex.logger.Warn().Err(err).Msg("release nonce lease")
	}
	p.updateRecord(ctx, ex)
	ex.logger.Info().Uint64("gas", gas).Str("gas_price", gasPrice.String()).Msg("transaction submitted")
	return signed, "", nil
}

// broadcast sends the identical signed bytes up to SubmitRetries times.
// A resend reported as already known means an earlier attempt landed.
// Only an RPC error is a definite rejection; any other final error is
// wrapped with errBroadcastUnknown.
func (p *Pipeline) broadcast(ctx context.Context, ex *execution, raw []byte) error {
	attempt := 0
	op := func() error {
		attempt++
		_, err := p.client.SendRawTransaction(ctx, raw)
		switch {
		case err == nil:
			return nil
		case attempt > 1 && evm.IsAlreadyKnown(err):
			ex.logger.Info().Int("attempt", attempt).Msg("node already has transaction")
			return nil
		case evm.IsRPCError(err):
			return backoff.Permanent(err)
		default:
			return err
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.PollInterval / 2
	b.MaxInterval = p.cfg.MaxPollInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.cfg.SubmitRetries-1)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		ex.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("broadcast failed")
	})
	switch {
	case err == nil:
		return nil
	case evm.IsRPCError(err):
		return chainError("send raw transaction", err)
	default:
		return fmt.Errorf("%w: %w", errBroadcastUnknown, chainError("send raw transaction", err))
	}
}

// confirm polls for the receipt with exponential backoff, waking early on
// new heads, until ConfirmTimeout.
func (p *Pipeline) confirm(ctx context.Context, ex *execution, hash common.Hash) (*evm.Receipt, error) {
	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.PollInterval
	b.MaxInterval = p.cfg.MaxPollInterval
	b.MaxElapsedTime = 0
	b.Reset()

	var lastErr error
	for {
		// taken before the poll so a head arriving mid-poll is not missed
		wake := p.heads.wait()
		receipt, err := p.client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			observability.RecordStage(stageConfirm, time.Since(start).Seconds())
			return receipt, nil
		}
		if err != nil {
			lastErr = err
			ex.logger.Debug().Err(err).Msg("receipt lookup failed")
		}

		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-waitCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if lastErr != nil {
				return nil, fmt.Errorf("%w: no receipt for %s after %s (last error: %v)", domain.ErrTimeout, hash.Hex(), p.cfg.ConfirmTimeout, lastErr)
			}
			return nil, fmt.Errorf("%w: no receipt for %s after %s", domain.ErrTimeout, hash.Hex(), p.cfg.ConfirmTimeout)
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// revertReason replays the call at the receipt block to recover the
// Error(string) payload. Returns "" when the node gives none.
func (p *Pipeline) revertReason(ctx context.Context, plan *txPlan, block uint64) string {
	to := plan.to
	msg := evm.CallMsg{From: p.signer.Address(), To: &to, Value: plan.value, Data: plan.data}
	_, err := p.client.Call(ctx, msg, new(big.Int).SetUint64(block))
	if err == nil {
		return ""
	}
	return contracts.RevertReason(err)
}

// succeed appends the activity entry, then updates the record, publishes
// the event and stores the idempotency key. Only the activity append can
// fail the request; the hash is returned either way.
func (p *Pipeline) succeed(ctx context.Context, ex *execution, plan *txPlan, tx *types.Transaction, receipt *evm.Receipt) (*Result, error) {
	now := p.now()
	entry := plan.entry
	entry.Timestamp = now.Unix()
	entry.Kind = ex.kind

	t := time.Now()
	appendErr := p.activity.Append(ctx, entry)
	observability.RecordActivityAppend(appendErr)
	observability.RecordStage(stageRecord, time.Since(t).Seconds())

	ex.record.Status = domain.TxStatusConfirmed
	ex.record.BlockNumber = receipt.BlockNumber
	ex.record.GasUsed = receipt.GasUsed
	if appendErr != nil {
		ex.record.Error = appendErr.Error()
	}
	p.updateRecord(ctx, ex)

	hash := tx.Hash().Hex()
	ev := domain.TransactionEvent{
		ID:          ex.record.ID,
		Kind:        ex.kind,
		TxHash:      hash,
		Nonce:       tx.Nonce(),
		BlockNumber: receipt.BlockNumber,
		AmountA:     entry.AmountA,
		AmountB:     entry.AmountB,
		Timestamp:   entry.Timestamp,
	}
	if err := p.publisher.Publish(ctx, ev); err != nil {
		ex.logger.Warn().Err(err).Msg("publish transaction event")
	}
	p.completeKey(ctx, ex, hash)

	observability.RecordTxConfirmed(string(ex.kind), now.Sub(ex.started).Seconds(), now.Unix())
	ex.logger.Info().
		Uint64("block", receipt.BlockNumber).
		Uint64("gas_used", receipt.GasUsed).
		Float64("amount_a", entry.AmountA).
		Float64("amount_b", entry.AmountB).
		Msg("transaction confirmed")

	res := &Result{RecordID: ex.record.ID, TxHash: hash, Executed: true}
	if appendErr != nil {
		ex.logger.Error().Err(appendErr).Msg("append activity entry")
		return res, fmt.Errorf("transaction %s confirmed but not logged: %w", hash, appendErr)
	}
	return res, nil
}

// fail marks the record failed and surfaces err. keepKey stores the
// submitted hash under the idempotency key instead of releasing it.
func (p *Pipeline) fail(ctx context.Context, ex *execution, stage string, err error, keepKey bool) error {
	observability.RecordTxFailed(string(ex.kind), stage)
	ex.logger.Error().Err(err).Str("stage", stage).Msg("operation failed")

	ex.record.Status = domain.TxStatusFailed
	ex.record.Error = err.Error()
	p.updateRecord(ctx, ex)

	if ex.key != "" {
		if keepKey && ex.record.TxHash != "" {
			p.completeKey(ctx, ex, ex.record.TxHash)
		} else if relErr := p.idem.Release(context.WithoutCancel(ctx), ex.key); relErr != nil {
			ex.logger.Warn().Err(relErr).Msg("release idempotency key")
		}
	}
	return err
}

func (p *Pipeline) completeKey(ctx context.Context, ex *execution, hash string) {
	if ex.key == "" {
		return
	}
	if err := p.idem.Complete(context.WithoutCancel(ctx), ex.key, hash, p.cfg.IdempotencyTTL); err != nil {
		ex.logger.Warn().Err(err).Msg("store idempotency key")
	}
}

// insertRecord stores the audit record. A retried idempotency key reuses
// its record id, so an existing row is overwritten.
func (p *Pipeline) insertRecord(ctx context.Context, ex *execution) {
	err := p.records.Insert(ctx, ex.record)
	if errors.Is(err, storage.ErrDuplicateKey) {
		err = p.records.Update(ctx, ex.record)
	}
	if err != nil {
		ex.logger.Warn().Err(err).Msg("insert transaction record")
	}
}

func (p *Pipeline) updateRecord(ctx context.Context, ex *execution) {
	ex.record.UpdatedAt = p.now().UnixMilli()
	if err := p.records.Update(context.WithoutCancel(ctx), ex.record); err != nil {
		ex.logger.Warn().Err(err).Msg("update transaction record")
	}
}

// chainError wraps err as ErrChain, keeping the node's revert reason.
func chainError(op string, err error) error {
	if evm.IsExecutionReverted(err) {
		if reason := contracts.RevertReason(err); reason != "" {
			return fmt.Errorf("%w: %s: execution reverted: %s", domain.ErrChain, op, reason)
		}
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrChain, op, err)
}
