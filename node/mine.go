package node

import (
	"github.com/pkg/errors"

	"github.com/povchain/povnoded/miner"
	"github.com/povchain/povnoded/wire"
)

// Mine assembles one candidate block from the current tip and mempool,
// searches for a satisfying nonce, and commits the result through the
// sync engine. It returns (nil, nil) when the search is cancelled by an
// incoming block that advanced the tip first.
func (n *Node) Mine(data string) (*wire.Block, error) {
	key, err := n.key()
	if err != nil {
		return nil, err
	}

	// Candidate construction snapshots the tip, difficulty, and mempool,
	// so it runs serialised with every other chain mutation.
	var m *miner.Miner
	err = n.engine.SubmitSync(func() error {
		candidate, err := miner.BuildCandidate(n.store, n.pool, key.PubKey(), []byte(data), n.cfg.MaxDataBytes, nowMs())
		if err != nil {
			return err
		}
		m = miner.New(candidate)
		n.miners.set(m)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "node: build mining candidate")
	}

	outcome, block := m.Run()
	n.miners.clear(m)
	if outcome == miner.OutcomeCancelled {
		log.Debugf("mining cancelled by tip advance")
		return nil, nil
	}
	if err := n.engine.SubmitMinedBlock(block); err != nil {
		return nil, errors.Wrap(err, "node: commit mined block")
	}
	return block, nil
}

// MineLoop mines blocks continuously until StopLoop is called.
func (n *Node) MineLoop(data string) error {
	n.loopMtx.Lock()
	defer n.loopMtx.Unlock()
	if n.loopQuit != nil {
		return errors.New("node: mine loop already running")
	}
	quit := make(chan struct{})
	n.loopQuit = quit
	n.loopWG.Add(1)
	go func() {
		defer n.loopWG.Done()
		for {
			select {
			case <-quit:
				return
			default:
			}
			if _, err := n.Mine(data); err != nil {
				log.Infof("mine loop: %s", err)
			}
		}
	}()
	return nil
}

// StopLoop halts a running mine loop and cancels any in-flight search.
// It is a no-op when no loop is running.
func (n *Node) StopLoop() {
	n.loopMtx.Lock()
	if n.loopQuit == nil {
		n.loopMtx.Unlock()
		return
	}
	close(n.loopQuit)
	n.loopQuit = nil
	n.loopMtx.Unlock()

	n.miners.Cancel()
	n.loopWG.Wait()
}
