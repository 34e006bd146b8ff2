package proxy

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/fleetgate/fleetgate/pkg/config"
	"github.com/fleetgate/fleetgate/pkg/proto"
	"github.com/fleetgate/fleetgate/pkg/proto/codec"
	"github.com/fleetgate/fleetgate/pkg/proto/packet"
	"github.com/fleetgate/fleetgate/pkg/proto/state"
	"github.com/fleetgate/fleetgate/pkg/util/errs"
	"github.com/fleetgate/fleetgate/pkg/util/randutil"
)

// sessionHandler handles received packets from the associated
// connection. Since a connection transitions between protocol states
// (spec §4.3), this behaviour is divided between per-state handlers.
type sessionHandler interface {
	handlePacket(ctx context.Context, p proto.Packet)
	handleUnknownPacket(p *proto.PacketContext)
	disconnected()

	activated()
	deactivated()
}

// minecraftConn is a Minecraft connection, either client -> proxy or
// proxy -> backend.
type minecraftConn struct {
	proxy *Proxy
	c     net.Conn

	readBuf *bufio.Reader
	decoder *codec.Decoder

	writeBuf *bufio.Writer
	encoder  *codec.Encoder

	cancelFunc      context.CancelFunc
	closeOnce       sync.Once
	closed          atomic.Bool
	knownDisconnect atomic.Bool

	protocol proto.Protocol

	mu             sync.RWMutex
	st             *state.Registry
	connType       connectionType
	sessionHandler sessionHandler

	// bundleOpen gates bundle buffering in WritePacket. Only
	// toggleBundle flips it, and nothing calls toggleBundle: a
	// BundleDelimiter is forwarded like any other packet, so bundleOpen
	// stays false.
	bundleOpen atomic.Bool
	bundleBuf  [][]byte
	bundleMu   sync.Mutex
}

func newMinecraftConn(base net.Conn, proxy *Proxy, playerConn bool, connDetails func() []interface{}) (conn *minecraftConn) {
	in := proto.ServerBound
	out := proto.ClientBound
	if !playerConn {
		in = proto.ClientBound
		out = proto.ServerBound
	}

	conn = &minecraftConn{
		proxy:    proxy,
		c:        base,
		writeBuf: bufio.NewWriter(base),
		readBuf:  bufio.NewReader(base),
		st:       &state.Handshake,
		protocol: proto.Minecraft_1_7_2,
		connType: undeterminedConnectionType,
	}
	conn.encoder = codec.NewEncoder(conn.writeBuf, out)
	conn.decoder = codec.NewDecoder(conn.readBuf, in, func() []interface{} {
		return append(connDetails(), "remoteAddr", conn.RemoteAddr())
	})
	return conn
}

func (c *minecraftConn) nextPacket() (p *proto.PacketContext, err error) {
	return c.decoder.ReadPacket()
}

func loop(ctx context.Context, c *minecraftConn) bool {
	defer func() {
		if r := recover(); r != nil {
			zap.S().Errorf("recovered from panic in read packets loop: %v", r)
		}
	}()

	deadline := time.Now().Add(c.config().ReadTimeout())
	_ = c.c.SetReadDeadline(deadline)

	packetCtx, err := c.nextPacket()
	if err != nil && !errors.Is(err, codec.ErrDecoderLeftBytes) {
		zap.L().Debug("error reading packet", zap.Error(err))
		if handleReadErr(err) {
			time.Sleep(5 * time.Millisecond)
			return true
		}
		return false
	}
	if !packetCtx.KnownPacket {
		c.SessionHandler().handleUnknownPacket(packetCtx)
		return true
	}

	c.SessionHandler().handlePacket(ctx, packetCtx.Packet)
	return true
}

func (c *minecraftConn) readLoop(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	c.cancelFunc = cancelFunc
	defer func() { _ = c.closeKnown(false) }()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if !loop(ctx, c) {
				return
			}
		}
	}
}

func handleReadErr(err error) (recoverable bool) {
	var silentErr *errs.SilentError
	if errors.As(err, &silentErr) {
		zap.L().Debug("silent error reading next packet, closing connection", zap.Error(err))
		return false
	}
	if errors.Is(err, syscall.EAGAIN) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Temporary() {
			return true
		} else if netErr.Timeout() {
			zap.S().Errorf("read timeout: %v", err)
			return false
		} else if errs.IsConnClosedErr(netErr.Err) {
			return false
		}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrNoProgress) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, io.ErrShortBuffer) || errors.Is(err, syscall.EBADF) ||
		strings.Contains(err.Error(), "use of closed file") {
		return false
	}
	zap.L().Error("error reading next packet, unrecoverable, closing connection", zap.Error(err))
	return false
}

func (c *minecraftConn) flush() (err error) {
	defer func() { c.closeOnErr(err) }()
	deadline := time.Now().Add(c.config().ConnectTimeout())
	if err = c.c.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.encoder.Sync(c.writeBuf.Flush)
}

func (c *minecraftConn) closeOnErr(err error) {
	if err == nil {
		return
	}
	_ = c.close()
	if errors.Is(err, ErrClosedConn) {
		return
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && errs.IsConnClosedErr(opErr.Err) {
		return
	}
	zap.L().Debug("error writing packet, closing connection", zap.Error(err))
}

// WritePacket writes a packet and flushes. The connection is closed on
// any encountered error.
func (c *minecraftConn) WritePacket(p proto.Packet) (err error) {
	if c.Closed() {
		return ErrClosedConn
	}
	if c.bundleOpen.Load() {
		return c.bufferBundled(p)
	}
	defer func() { c.closeOnErr(err) }()
	if err = c.BufferPacket(p); err != nil {
		return err
	}
	return c.flush()
}

func (c *minecraftConn) bufferBundled(p proto.Packet) error {
	// Encodes p into the write buffer without flushing; the bytes go
	// out with the next write that flushes. No separate stash is kept.
	return c.BufferPacket(p)
}

func (c *minecraftConn) Write(payload []byte) (err error) {
	if c.Closed() {
		return ErrClosedConn
	}
	defer func() { c.closeOnErr(err) }()
	if _, err = c.encoder.Write(payload); err != nil {
		return err
	}
	return c.flush()
}

func (c *minecraftConn) BufferPacket(p proto.Packet) (err error) {
	if c.Closed() {
		return ErrClosedConn
	}
	defer func() { c.closeOnErr(err) }()
	_, err = c.encoder.WritePacket(p)
	return err
}

func (c *minecraftConn) BufferPayload(payload []byte) (err error) {
	if c.Closed() {
		return ErrClosedConn
	}
	defer func() { c.closeOnErr(err) }()
	_, err = c.encoder.Write(payload)
	return err
}

func (c *minecraftConn) config() *config.Config {
	return c.proxy.config
}

func (c *minecraftConn) close() error {
	return c.closeKnown(true)
}

// ErrClosedConn indicates a connection is already closed.
var ErrClosedConn = errs.ErrClosedConn

func (c *minecraftConn) closeKnown(markKnown bool) (err error) {
	alreadyClosed := true
	c.closeOnce.Do(func() {
		alreadyClosed = false
		if markKnown {
			c.knownDisconnect.Store(true)
		}
		if c.cancelFunc != nil {
			c.cancelFunc()
		}
		c.closed.Store(true)
		err = c.c.Close()

		if sh := c.SessionHandler(); sh != nil {
			sh.disconnected()
			if p, ok := sh.(interface{ player_() *connectedPlayer }); ok && !c.knownDisconnect.Load() {
				zap.S().Infof("%s has disconnected", p.player_())
			}
		}
	})
	if alreadyClosed {
		err = ErrClosedConn
	}
	return err
}

// closeWith writes p then closes the connection.
func (c *minecraftConn) closeWith(p proto.Packet) (err error) {
	if c.Closed() {
		return ErrClosedConn
	}
	defer func() { err = c.close() }()
	c.knownDisconnect.Store(true)
	_ = c.WritePacket(p)
	return
}

func (c *minecraftConn) Closed() bool { return c.closed.Load() }

func (c *minecraftConn) RemoteAddr() net.Addr { return c.c.RemoteAddr() }

func (c *minecraftConn) Protocol() proto.Protocol { return c.protocol }

func (c *minecraftConn) setProtocol(p proto.Protocol) {
	c.protocol = p
	c.decoder.SetProtocol(p)
	c.encoder.SetProtocol(p)
}

func (c *minecraftConn) State() *state.Registry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st
}

func (c *minecraftConn) setState(s *state.Registry) {
	c.mu.Lock()
	c.st = s
	c.decoder.SetState(s)
	c.encoder.SetState(s)
	c.mu.Unlock()
}

func (c *minecraftConn) Type() connectionType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connType
}

func (c *minecraftConn) setType(t connectionType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connType = t
}

func (c *minecraftConn) SessionHandler() sessionHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionHandler
}

func (c *minecraftConn) setSessionHandler(handler sessionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSessionHandler0(handler)
}

func (c *minecraftConn) setSessionHandler0(handler sessionHandler) {
	if c.sessionHandler != nil {
		c.sessionHandler.deactivated()
	}
	c.sessionHandler = handler
	handler.activated()
}

// SetCompressionThreshold enables zlib framing above threshold. The
// caller must have already sent packet.SetCompression.
func (c *minecraftConn) SetCompressionThreshold(threshold int) error {
	zap.S().Debugf("set compression threshold %d", threshold)
	c.decoder.SetCompressionThreshold(threshold)
	return c.encoder.SetCompression(threshold, c.config().CompressionLevel)
}

// SendKeepAlive sends a keep-alive if the connection is in PLAY state.
func (c *minecraftConn) SendKeepAlive() error {
	if c.State() == &state.Play {
		return c.WritePacket(&packet.KeepAlive{RandomID: int64(randutil.Uint64())})
	}
	return nil
}

// enableEncryption installs the AES-128/CFB8 cipher on both
// directions, keyed (and IV'd) by secret (spec §4.1).
func (c *minecraftConn) enableEncryption(secret []byte) error {
	decryptReader, err := codec.NewDecryptReader(c.readBuf, secret)
	if err != nil {
		return err
	}
	encryptWriter, err := codec.NewEncryptWriter(c.writeBuf, secret)
	if err != nil {
		return err
	}
	c.decoder.SetReader(decryptReader)
	c.encoder.SetWriter(encryptWriter)
	return nil
}

// toggleBundle flips bundleOpen. It flushes nothing itself, and no
// code path calls it.
func (c *minecraftConn) toggleBundle() {
	c.bundleOpen.Toggle()
}

// Inbound is an incoming connection to the proxy.
type Inbound interface {
	Protocol() proto.Protocol
	VirtualHost() net.Addr
	RemoteAddr() net.Addr
	Active() bool
	Closed() bool
}
