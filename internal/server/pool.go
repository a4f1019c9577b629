package server

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ErrOverloaded is returned by Submit when no queue slot frees up in time.
var ErrOverloaded = errors.New("worker pool overloaded")

// Pool runs a fixed number of workers fed from a bounded queue of accepted
// connections.
type Pool struct {
	tasks  chan net.Conn
	handle func(net.Conn)
	wait   time.Duration
	log    *slog.Logger
	wg     sync.WaitGroup
}

// NewPool creates a pool of workers goroutines sharing a queue of queueSize
// pending connections. A full queue makes Submit wait up to wait before it
// gives up; with wait == 0 it gives up at once.
func NewPool(workers, queueSize int, wait time.Duration, handle func(net.Conn), logger *slog.Logger) *Pool {
	p := &Pool{
		tasks:  make(chan net.Conn, queueSize),
		handle: handle,
		wait:   wait,
		log:    logger,
	}

	p.wg.Add(workers)
	for i := range workers {
		go p.work(i)
	}
	return p
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for conn := range p.tasks {
		p.log.Debug("worker handling connection", "worker", id, "remote", conn.RemoteAddr())
		p.run(conn)
	}
}

// run isolates a panicking handler so the worker survives it. The handler
// owns conn and is responsible for closing it.
func (p *Pool) run(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("handler panic", "remote", conn.RemoteAddr(), "panic", r)
		}
	}()
	p.handle(conn)
}

// Submit queues conn for a worker. On ErrOverloaded the caller still owns
// conn.
func (p *Pool) Submit(conn net.Conn) error {
	select {
	case p.tasks <- conn:
		return nil
	default:
	}
	if p.wait <= 0 {
		return ErrOverloaded
	}

	timer := time.NewTimer(p.wait)
	defer timer.Stop()
	select {
	case p.tasks <- conn:
		return nil
	case <-timer.C:
		return ErrOverloaded
	}
}

// Pending reports how many connections are queued but not yet picked up.
func (p *Pool) Pending() int {
	return len(p.tasks)
}

// Stop lets the workers drain the queue and waits for them to exit. Submit
// must not be called afterwards.
func (p *Pool) Stop() {
	close(p.tasks)
	p.wg.Wait()
}
