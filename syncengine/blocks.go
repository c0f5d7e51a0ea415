package syncengine

import (
	"context"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/povchain/povnoded/consensus"
	"github.com/povchain/povnoded/internal/chainhash"
	"github.com/povchain/povnoded/peer"
	"github.com/povchain/povnoded/utxoset"
	"github.com/povchain/povnoded/wire"
)

// Requester issues correlated requests to a peer. Both *peer.Peer and
// *peer.Session satisfy it; tests substitute an in-process fake.
type Requester interface {
	Request(ctx context.Context, msgType string, data, result interface{}) error
}

// Gap-fill batch sizing: start at 2, double up to 2048.
const (
	gapFillInitialBatch = 2
	gapFillMaxBatch     = 2048
)

// HandleBlockInv enqueues ingestion of an announced block. All requests
// to the announcing peer run inside the queued task, so the next
// inventory does not start until this one settles.
func (e *Engine) HandleBlockInv(ctx context.Context, req Requester, inv peer.BlockInv) {
	e.Submit(func() {
		if err := e.ingestBlockInv(ctx, req, inv); err != nil {
			log.Infof("rejecting block %s at height %d: %s", inv.Hash, inv.Height, err)
		}
	})
}

// SubmitMinedBlock routes a locally mined block through the same
// serialised acceptance path as a peer-announced one.
func (e *Engine) SubmitMinedBlock(block *wire.Block) error {
	return e.SubmitSync(func() error {
		if e.ctx.Store.Has(block.Hash()) {
			return nil
		}
		return e.acceptSegment([]*wire.Block{block})
	})
}

// ingestBlockInv ingests one announced block end to end on the engine
// queue: fetch the body, gap-fill down to a known ancestor, validate the
// segment, and commit.
func (e *Engine) ingestBlockInv(ctx context.Context, req Requester, inv peer.BlockInv) error {
	hash, err := chainhash.NewFromStr(inv.Hash)
	if err != nil {
		return errors.Wrap(err, "syncengine: malformed blockinv hash")
	}
	if e.ctx.Store.Has(hash) {
		return nil
	}

	head, err := fetchBlock(ctx, req, hash)
	if err != nil {
		return err
	}

	// Gap fill: walk prev_hash backward in exponentially growing batches
	// until the segment connects to a stored block.
	segment := []*wire.Block{head}
	block := head
	frontier := hash
	batch := gapFillInitialBatch
	for !e.ctx.Store.Has(block.PrevHash) {
		if block.Height == 0 {
			return errors.New("syncengine: incoming branch descends from an unknown genesis")
		}

		var resp peer.GetBlockResponse
		fetch := peer.GetBlockByFrontier{Frontier: frontier.String(), Batch: batch}
		if err := req.Request(ctx, peer.TypeGetBlock, fetch, &resp); err != nil {
			return errors.Wrap(err, "syncengine: gap-fill fetch")
		}

		stitched := false
		for !e.ctx.Store.Has(block.PrevHash) {
			parentHex, ok := resp[block.PrevHash.String()]
			if !ok || parentHex == "" {
				break
			}
			parent, err := decodeBlockHex(parentHex)
			if err != nil {
				return err
			}
			if parent.Hash() != block.PrevHash {
				return errors.New("syncengine: gap-fill block does not hash to its requested id")
			}
			segment = append(segment, parent)
			block = parent
			stitched = true
			if block.Height == 0 {
				break
			}
		}
		if !stitched {
			return errors.Errorf("syncengine: gap-fill response missing parent of %s", block.Hash())
		}

		frontier = block.Hash()
		batch *= 2
		if batch > gapFillMaxBatch {
			batch = gapFillMaxBatch
		}
	}

	// segment was built newest-first; acceptSegment wants oldest-first.
	for i, j := 0, len(segment)-1; i < j; i, j = i+1, j-1 {
		segment[i], segment[j] = segment[j], segment[i]
	}
	return e.acceptSegment(segment)
}

// acceptSegment validates and commits a connected run of blocks whose
// first member's parent is already stored. On any validation failure the
// fetched blocks are discarded and no state is mutated.
func (e *Engine) acceptSegment(segment []*wire.Block) error {
	store := e.ctx.Store
	forkHash := segment[0].PrevHash
	fork, ok := store.Get(forkHash)
	if !ok {
		return errors.Errorf("syncengine: fork point %s not in chain store", forkHash)
	}

	isExtension := store.IsChainTip(forkHash)
	if !isExtension {
		incoming := make([]uint8, len(segment))
		for i, b := range segment {
			incoming[i] = b.Difficulty
		}
		local, err := e.localDifficultiesAfter(forkHash)
		if err != nil {
			return err
		}
		if !consensus.IncomingBranchWins(consensus.CumulativeWork(incoming), consensus.CumulativeWork(local)) {
			return errors.New("syncengine: incoming branch has insufficient cumulative work")
		}
	}

	var utxos *utxoset.Set
	var err error
	if isExtension {
		utxos = e.ctx.UTXOs.Get().Copy()
	} else {
		utxos, err = e.rebuildUTXOSetTo(forkHash)
		if err != nil {
			return err
		}
	}

	// Insert the incoming blocks so ancestor walks during validation see
	// them; removed again on any failure.
	for _, b := range segment {
		store.Insert(b)
	}
	now := e.ctx.Now()
	parent := fork
	for _, b := range segment {
		if err := consensus.ValidateBlockConnection(store, parent, b, now, e.ctx.MaxBlockBytes); err != nil {
			e.discardSegment(segment)
			return err
		}
		if _, err := consensus.ApplyTransactions(utxos, b); err != nil {
			e.discardSegment(segment)
			return err
		}
		parent = b
	}

	// Commit.
	if e.ctx.Miner != nil {
		e.ctx.Miner.Cancel()
	}
	if oldNext, ok := store.Next(forkHash); ok {
		removed := store.DisconnectSuffix(oldNext)
		log.Debugf("reorg displaced %d block(s) after %s", len(removed), forkHash)
	}
	prev := forkHash
	for _, b := range segment {
		h := b.Hash()
		if err := store.Connect(prev, h); err != nil {
			return errors.Wrap(err, "syncengine: connect accepted block")
		}
		prev = h
	}
	if err := store.SetTip(prev); err != nil {
		return errors.Wrap(err, "syncengine: advance tip")
	}
	e.ctx.UTXOs.Replace(utxos)

	tip := segment[len(segment)-1]
	log.Infof("new tip %s at height %d", prev, tip.Height)
	e.ctx.Peers.Broadcast(peer.TypeBlockInv, peer.BlockInv{Hash: prev.String(), Height: tip.Height})

	if stale := e.ctx.Mempool.ReconcileWithUTXOSet(utxos); len(stale) > 0 {
		log.Debugf("dropped %d pending transaction(s) spent by the new tip", len(stale))
	}
	return nil
}

func (e *Engine) discardSegment(segment []*wire.Block) {
	for _, b := range segment {
		e.ctx.Store.Remove(b.Hash())
	}
}

// localDifficultiesAfter walks the active chain forward from (excluding)
// forkHash, collecting each block's difficulty for the cumulative-work
// comparison.
func (e *Engine) localDifficultiesAfter(forkHash chainhash.Hash) ([]uint8, error) {
	var out []uint8
	cur := forkHash
	for {
		next, ok := e.ctx.Store.Next(cur)
		if !ok {
			return out, nil
		}
		b, ok := e.ctx.Store.Get(next)
		if !ok {
			return nil, errors.Errorf("syncengine: active chain link %s missing from store", next)
		}
		out = append(out, b.Difficulty)
		cur = next
	}
}

// rebuildUTXOSetTo recomputes the UTXO state from genesis through (and
// including) upTo, the deterministic snapshot a reorg validates the
// incoming branch against.
func (e *Engine) rebuildUTXOSetTo(upTo chainhash.Hash) (*utxoset.Set, error) {
	var chain []*wire.Block
	cur := upTo
	for {
		b, ok := e.ctx.Store.Get(cur)
		if !ok {
			return nil, errors.Errorf("syncengine: rebuild walk fell off known chain at %s", cur)
		}
		chain = append(chain, b)
		if b.Height == 0 {
			break
		}
		cur = b.PrevHash
	}

	set := utxoset.New()
	for i := len(chain) - 1; i >= 0; i-- {
		if _, err := consensus.ApplyTransactions(set, chain[i]); err != nil {
			return nil, errors.Wrap(err, "syncengine: rebuild utxo set")
		}
	}
	return set, nil
}

func fetchBlock(ctx context.Context, req Requester, hash chainhash.Hash) (*wire.Block, error) {
	var resp peer.GetBlockResponse
	fetch := peer.GetBlockByHashes{Hash: []string{hash.String()}}
	if err := req.Request(ctx, peer.TypeGetBlock, fetch, &resp); err != nil {
		return nil, errors.Wrap(err, "syncengine: fetch block body")
	}
	blockHex := resp[hash.String()]
	if blockHex == "" {
		return nil, errors.Errorf("syncengine: peer has no body for announced block %s", hash)
	}
	block, err := decodeBlockHex(blockHex)
	if err != nil {
		return nil, err
	}
	if block.Hash() != hash {
		return nil, errors.Errorf("syncengine: fetched block does not hash to %s", hash)
	}
	return block, nil
}

func decodeBlockHex(s string) (*wire.Block, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "syncengine: block body is not hex")
	}
	block, err := wire.DeserializeBlock(raw)
	if err != nil {
		return nil, err
	}
	return &block, nil
}
