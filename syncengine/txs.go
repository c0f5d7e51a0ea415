package syncengine

import (
	"context"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/povchain/povnoded/consensus"
	"github.com/povchain/povnoded/internal/chainhash"
	"github.com/povchain/povnoded/mempool"
	"github.com/povchain/povnoded/peer"
	"github.com/povchain/povnoded/txn"
	"github.com/povchain/povnoded/utxoset"
	"github.com/povchain/povnoded/wire"
)

// HandleTxInv enqueues ingestion of announced transactions: unknown ids
// are fetched with gettx, each is validated against the active UTXO set
// and the mempool's claims, and the ones accepted are re-announced to
// peers.
func (e *Engine) HandleTxInv(ctx context.Context, req Requester, inv peer.TxInv) {
	e.Submit(func() {
		valid, err := e.ingestTxInv(ctx, req, inv)
		if err != nil {
			log.Infof("txinv ingestion failed: %s", err)
			return
		}
		if len(valid) > 0 {
			e.ctx.Peers.Broadcast(peer.TypeTxInv, peer.TxInv{TxIDs: valid})
		}
	})
}

func (e *Engine) ingestTxInv(ctx context.Context, req Requester, inv peer.TxInv) ([]string, error) {
	var unknown []string
	for _, idHex := range inv.TxIDs {
		id, err := chainhash.NewFromStr(idHex)
		if err != nil {
			return nil, errors.Wrap(err, "syncengine: malformed txinv id")
		}
		if !e.ctx.Mempool.Has(id) {
			unknown = append(unknown, idHex)
		}
	}
	if len(unknown) == 0 {
		return nil, nil
	}

	var resp peer.GetTxResponse
	if err := req.Request(ctx, peer.TypeGetTx, peer.GetTx{TxIDs: unknown}, &resp); err != nil {
		return nil, errors.Wrap(err, "syncengine: fetch announced transactions")
	}

	var valid []string
	for _, txHex := range resp.Txs {
		raw, err := hex.DecodeString(txHex)
		if err != nil {
			log.Debugf("skipping non-hex transaction body: %s", err)
			continue
		}
		msg, rest, err := wire.DeserializeTransaction(raw)
		if err != nil || len(rest) != 0 {
			log.Debugf("skipping malformed transaction body")
			continue
		}
		tx := txn.New(&msg)
		if err := e.AcceptTransaction(tx); err != nil {
			log.Debugf("rejecting transaction %s: %s", tx, err)
			continue
		}
		valid = append(valid, tx.ID().String())
	}
	return valid, nil
}

// AcceptTransaction validates tx for mempool admission and records it:
// every input resolves in the active UTXO set, sums and the minimum fee
// check out, every signature verifies, and no input is already claimed
// by a pending transaction. It must be called from a task running on the
// engine queue.
func (e *Engine) AcceptTransaction(tx *txn.Tx) error {
	if len(tx.Msg.Inputs) == 0 || len(tx.Msg.Outputs) == 0 {
		return errors.New("syncengine: transaction has no inputs or outputs")
	}
	if e.ctx.Mempool.Has(tx.ID()) {
		return errors.Errorf("syncengine: transaction %s already pending", tx)
	}

	for i := range tx.Msg.Inputs {
		if e.ctx.Mempool.HasUTXO(utxoset.OutpointOf(&tx.Msg.Inputs[i])) {
			return errors.New("syncengine: input already claimed by a pending transaction")
		}
	}

	fee, err := consensus.CheckTransaction(e.ctx.UTXOs.Get(), tx)
	if err != nil {
		return err
	}

	e.ctx.Mempool.Add(&mempool.Entry{Tx: tx, Fees: fee})
	log.Debugf("accepted transaction %s paying %d in fees", tx, fee)
	return nil
}
