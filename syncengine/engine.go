// Package syncengine keeps a node's chain state in step with its peers:
// a single-consumer FIFO queue drains inbound peer events and locally
// mined blocks, and is responsible for blockinv ingestion (gap-fill,
// validation, reorg commit), txinv/gettx relay, and peer discovery.
// Every state-mutating operation -- not only inventory ingestion -- is
// routed through the same queue, so mining, send, ingestion, and reorg
// cannot race one another.
package syncengine

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/povchain/povnoded/chainstore"
	"github.com/povchain/povnoded/internal/logs"
	"github.com/povchain/povnoded/mempool"
	"github.com/povchain/povnoded/peer"
	"github.com/povchain/povnoded/utxoset"
)

var log = logs.Get(logs.SubsystemTags.SYNC)

// MinerControl lets the engine cancel any in-flight miner on tip advance,
// without the engine needing to know about the miner package's state
// machine.
type MinerControl interface {
	Cancel()
}

// Context bundles the dependencies a running Engine mutates or reads, so
// the engine itself stays free of an import cycle back to the node
// package that owns composition.
type Context struct {
	Store   *chainstore.Store
	UTXOs   *utxoset.Ref
	Mempool *mempool.Pool

	MaxBlockBytes int

	Peers *peer.Table
	Addrs *peer.AddressBook

	SelfNodeID        string
	SelfListenAddress string

	Miner MinerControl

	// Now returns the current time in milliseconds since epoch. Tests
	// inject a fixed clock; production wires time.Now().
	Now func() uint64
}

// Engine serialises every chain, UTXO, mempool, and miner-cancellation
// mutation through a single consuming goroutine.
type Engine struct {
	ctx *Context

	queue    chan func()
	quit     chan struct{}
	wg       sync.WaitGroup
	shutdown int32 // atomic; set once Stop begins
}

// New starts an Engine's consumer goroutine against ctx.
func New(ctx *Context) *Engine {
	e := &Engine{
		ctx:   ctx,
		queue: make(chan func(), 256),
		quit:  make(chan struct{}),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case task := <-e.queue:
			task()
		case <-e.quit:
			e.drainRemaining()
			return
		}
	}
}

// drainRemaining runs any tasks already enqueued before shutdown, so a
// SubmitSync caller racing Stop never blocks forever.
func (e *Engine) drainRemaining() {
	for {
		select {
		case task := <-e.queue:
			task()
		default:
			return
		}
	}
}

// Submit enqueues task to run on the consumer goroutine, without waiting
// for it to complete.
func (e *Engine) Submit(task func()) {
	select {
	case e.queue <- task:
	case <-e.quit:
	}
}

// SubmitSync enqueues task and blocks until it completes (successfully or
// not), returning its error. The next queued task does not start until
// task returns, serialising reorgs. Shutdown drains tasks already
// enqueued, so the caller never blocks forever.
func (e *Engine) SubmitSync(task func() error) error {
	done := make(chan error, 1)
	select {
	case e.queue <- func() { done <- task() }:
	case <-e.quit:
		return errors.New("syncengine: engine stopped")
	}
	select {
	case err := <-done:
		return err
	case <-e.quit:
		// The consumer drains the queue before exiting; a task that landed
		// after the drain never runs.
		e.wg.Wait()
		select {
		case err := <-done:
			return err
		default:
			return errors.New("syncengine: engine stopped")
		}
	}
}

// Stop shuts the engine down: the shutdown flag stops the disconnect
// recovery loop from dialing out, any running miner is cancelled, every
// peer is closed, and the consumer goroutine halts after draining
// whatever is already queued.
func (e *Engine) Stop() {
	atomic.StoreInt32(&e.shutdown, 1)
	if e.ctx.Miner != nil {
		e.ctx.Miner.Cancel()
	}
	for _, p := range e.ctx.Peers.List() {
		p.Close()
	}
	close(e.quit)
	e.wg.Wait()
}

// ShuttingDown reports whether Stop has begun.
func (e *Engine) ShuttingDown() bool {
	return atomic.LoadInt32(&e.shutdown) != 0
}
