package indexer

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"time"

	"coreindexd/internal/logging"
)

// reconnectBackoff is the staged retry delay used when dialing the
// indexer socket, the same 250ms/1s/3s shape the teacher uses for its
// copy-retry loop, reused here for connection retries instead.
var reconnectBackoff = []time.Duration{250 * time.Millisecond, 1 * time.Second, 3 * time.Second}

func backoffForAttempt(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(reconnectBackoff) {
		attempt = len(reconnectBackoff) - 1
	}
	return reconnectBackoff[attempt]
}

// rpcClient is a Client over net/rpc/jsonrpc on a Unix domain socket. No
// JSON-RPC or gRPC library appears in the retrieved corpus for this
// transport, so this uses the standard library's own jsonrpc codec,
// which is exactly what net/rpc was built to pair with.
type rpcClient struct {
	socketPath string
	log        *logging.Logger

	mu         sync.Mutex
	conn       *rpc.Client
	notifyLn   net.Listener
	events     chan Event
	closed     bool
}

// Dial connects to the indexer's Unix domain socket, retrying with the
// staged backoff above; it gives up after len(reconnectBackoff)+1 failed
// attempts, or earlier if ctx is cancelled. It also listens on a
// second "<socketPath>.notify" socket the indexer dials back on to push
// Started/Finished/Status/Paused/Continued events — net/rpc has no
// native server-push, so inbound notifications ride their own
// connection in the opposite direction instead.
func Dial(ctx context.Context, socketPath string, log *logging.Logger) (Client, error) {
	c := &rpcClient{socketPath: socketPath, log: log, events: make(chan Event, 64)}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	if err := c.listenNotify(); err != nil && log != nil {
		log.Warnf("indexer: notify listener unavailable: %v", err)
	}
	return c, nil
}

// notifyServer exposes the exported methods the indexer's callback
// connection invokes. Each method's signature matches what net/rpc
// requires: (args, *reply) error.
type notifyServer struct {
	events chan Event
}

type startedArgs struct{}

type finishedArgs struct {
	SecondsElapsed float64
	ItemsProcessed int
	ItemsIndexed   int
	Interrupted    bool
}

type statusArgs struct {
	SecondsElapsed float64
	ModuleName     string
	ItemsProcessed int
	ItemsIndexed   int
	ItemsRemaining int
}

type pausedArgs struct {
	Reason string
}

func (n *notifyServer) Started(args startedArgs, _ *struct{}) error {
	n.events <- Event{Kind: Started}
	return nil
}

func (n *notifyServer) Finished(args finishedArgs, _ *struct{}) error {
	n.events <- Event{
		Kind:           Finished,
		SecondsElapsed: args.SecondsElapsed,
		ItemsProcessed: args.ItemsProcessed,
		ItemsIndexed:   args.ItemsIndexed,
		Interrupted:    args.Interrupted,
	}
	return nil
}

func (n *notifyServer) Status(args statusArgs, _ *struct{}) error {
	n.events <- Event{
		Kind:           Status,
		SecondsElapsed: args.SecondsElapsed,
		ModuleName:     args.ModuleName,
		ItemsProcessed: args.ItemsProcessed,
		ItemsIndexed:   args.ItemsIndexed,
		ItemsRemaining: args.ItemsRemaining,
	}
	return nil
}

func (n *notifyServer) Paused(args pausedArgs, _ *struct{}) error {
	n.events <- Event{Kind: Paused, Reason: args.Reason}
	return nil
}

func (n *notifyServer) Continued(args struct{}, _ *struct{}) error {
	n.events <- Event{Kind: Continued}
	return nil
}

func (c *rpcClient) listenNotify() error {
	notifyPath := c.socketPath + ".notify"
	ln, err := net.Listen("unix", notifyPath)
	if err != nil {
		return err
	}
	server := rpc.NewServer()
	if err := server.RegisterName("Core", &notifyServer{events: c.events}); err != nil {
		ln.Close()
		return err
	}

	c.mu.Lock()
	c.notifyLn = ln
	c.mu.Unlock()

	go func() {
		defer ln.Close()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go server.ServeCodec(jsonrpc.NewServerCodec(conn))
		}
	}()
	return nil
}

func (c *rpcClient) connect(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < len(reconnectBackoff)+1; attempt++ {
		conn, err := net.Dial("unix", c.socketPath)
		if err == nil {
			c.mu.Lock()
			c.conn = jsonrpc.NewClient(conn)
			c.mu.Unlock()
			return nil
		}
		lastErr = err
		if c.log != nil {
			c.log.Warnf("indexer: dial attempt %d failed: %v", attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffForAttempt(attempt)):
		}
	}
	return fmt.Errorf("indexer: could not connect to %s: %w", c.socketPath, lastErr)
}

func (c *rpcClient) call(method string, args, reply any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("indexer: not connected")
	}
	return conn.Call(method, args, reply)
}

type filesArgs struct {
	Module string
	Paths  []string
}

type moveArgs struct {
	Module string
	From   string
	To     string
}

type movesArgs struct {
	Module string
	From   []string
	To     []string
}

type volumeStateArgs struct {
	UDI        string
	MountPoint string
	Online     bool
}

func (c *rpcClient) Pause(ctx context.Context) error    { return c.call("Indexer.Pause", struct{}{}, &struct{}{}) }
func (c *rpcClient) Continue(ctx context.Context) error { return c.call("Indexer.Continue", struct{}{}, &struct{}{}) }

func (c *rpcClient) FilesCheck(ctx context.Context, module string, paths []string) error {
	return c.call("Indexer.FilesCheck", filesArgs{Module: module, Paths: paths}, &struct{}{})
}

func (c *rpcClient) FilesUpdate(ctx context.Context, module string, paths []string) error {
	return c.call("Indexer.FilesUpdate", filesArgs{Module: module, Paths: paths}, &struct{}{})
}

func (c *rpcClient) FilesDelete(ctx context.Context, module string, paths []string) error {
	return c.call("Indexer.FilesDelete", filesArgs{Module: module, Paths: paths}, &struct{}{})
}

func (c *rpcClient) FileMove(ctx context.Context, module, from, to string) error {
	return c.call("Indexer.FileMove", moveArgs{Module: module, From: from, To: to}, &struct{}{})
}

func (c *rpcClient) FilesMove(ctx context.Context, module string, from, to []string) error {
	return c.call("Indexer.FilesMove", movesArgs{Module: module, From: from, To: to}, &struct{}{})
}

func (c *rpcClient) VolumeUpdateState(ctx context.Context, udi, mountPoint string, online bool) error {
	return c.call("Indexer.VolumeUpdateState", volumeStateArgs{UDI: udi, MountPoint: mountPoint, Online: online}, &struct{}{})
}

func (c *rpcClient) VolumeDisableAll(ctx context.Context) error {
	return c.call("Indexer.VolumeDisableAll", struct{}{}, &struct{}{})
}

func (c *rpcClient) Events() <-chan Event { return c.events }

func (c *rpcClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.notifyLn != nil {
		c.notifyLn.Close()
	}
	close(c.events)
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
