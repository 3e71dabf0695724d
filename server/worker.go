package server

import (
	"fmt"

	"github.com/chazu/basil/compiler"
	"github.com/chazu/basil/vm"
)

// document is an open editor buffer and its latest analysis.
type document struct {
	text  string
	prog  *compiler.ProgramNode
	diags []compiler.Diagnostic
}

// Workspace holds the open documents. It is owned by the worker goroutine.
type Workspace struct {
	Commands *vm.CommandCollection
	docs     map[string]*document
}

// update stores text for uri and re-analyzes it.
func (ws *Workspace) update(uri, text string) *document {
	prog, diags := compiler.Analyze(text, ws.Commands, compiler.Options{})
	doc := &document{text: text, prog: prog, diags: diags}
	ws.docs[uri] = doc
	log.Debugf("analyzed %s: %d diagnostics", uri, len(diags))
	return doc
}

func (ws *Workspace) close(uri string) {
	delete(ws.docs, uri)
}

func (ws *Workspace) document(uri string) (*document, bool) {
	doc, ok := ws.docs[uri]
	return doc, ok
}

// request represents a unit of work to be executed on the worker goroutine.
type request struct {
	fn   func(*Workspace) any
	done chan result
}

// result holds the return value from a workspace operation.
type result struct {
	value any
	err   error
}

// Worker serializes all workspace access through a single goroutine.
type Worker struct {
	ws       *Workspace
	requests chan request
	quit     chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(cmds *vm.CommandCollection) *Worker {
	w := &Worker{
		ws:       &Workspace{Commands: cmds, docs: make(map[string]*document)},
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn on the workspace, recovering from panics.
func (w *Worker) execute(fn func(*Workspace) any) result {
	var res result
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("worker: %v", r)
				res.err = fmt.Errorf("%v", r)
			}
		}()
		res.value = fn(w.ws)
	}()
	return res
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes. Panics are returned as errors.
func (w *Worker) Do(fn func(*Workspace) any) (any, error) {
	req := request{
		fn:   fn,
		done: make(chan result, 1),
	}
	w.requests <- req
	res := <-req.done
	return res.value, res.err
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}
