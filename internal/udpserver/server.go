package udpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/telemetry-collector/internal/config"
)

// Handler 数据报处理回调，arrival 为 read 返回后立即读取的时钟
// buf 在回调返回后会被复用，实现不得持有
type Handler func(ctx context.Context, buf []byte, arrival time.Time)

// Server 单 socket 的 UDP 接收循环
// 读超时只用于周期性检查关闭信号，单个处理中的数据报总会处理完才退出
type Server struct {
	cfg     cfgpkg.UDPConfig
	handler Handler
	log     *zap.Logger

	mu     sync.Mutex
	conn   *net.UDPConn
	cancel context.CancelFunc
	done   chan struct{}
	now    func() time.Time

	onReadError func(err error)
}

// New 创建 UDP 接收端
func New(cfg cfgpkg.UDPConfig, h Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.MaxDatagram <= 0 {
		cfg.MaxDatagram = 4096
	}
	return &Server{cfg: cfg, handler: h, log: log, now: time.Now}
}

// SetReadErrorCallback 非超时读错误回调（指标用）
func (s *Server) SetReadErrorCallback(fn func(error)) { s.onReadError = fn }

// Start 绑定端口并启动接收协程；绑定失败是唯一的致命错误
func (s *Server) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("resolve udp addr %q: %w", s.cfg.Addr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp %q: %w", s.cfg.Addr, err)
	}
	if s.cfg.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(s.cfg.ReadBuffer); err != nil {
			s.log.Warn("set udp read buffer failed", zap.Int("bytes", s.cfg.ReadBuffer), zap.Error(err))
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.log.Info("udp listener started",
		zap.String("addr", conn.LocalAddr().String()),
		zap.Duration("read_timeout", s.cfg.ReadTimeout))

	go s.serve(loopCtx, conn)
	return nil
}

// Addr 实际监听地址（端口为 0 时用于获取系统分配端口）
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Done 接收循环退出后关闭
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Server) serve(ctx context.Context, conn *net.UDPConn) {
	defer close(s.done)
	defer conn.Close()

	buf := make([]byte, s.cfg.MaxDatagram)
	for {
		if ctx.Err() != nil {
			s.log.Info("udp listener stopping")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("udp read failed", zap.Error(err))
			if s.onReadError != nil {
				s.onReadError(err)
			}
			continue
		}
		arrival := s.now()
		if s.handler != nil {
			// 关闭信号不打断正在处理的数据报
			s.handler(context.WithoutCancel(ctx), buf[:n], arrival)
		}
	}
}

// Shutdown 停止接收并等待当前数据报处理完成
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
