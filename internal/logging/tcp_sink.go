package logging

import (
	"errors"
	"net"
	"strings"
	"sync"
	"time"
)

// TCPSink ships newline-delimited log records to a Logstash TCP input.
// Records are queued and written by a single background goroutine so a slow
// or unreachable collector never blocks request handling. Records that do not
// fit the queue, or arrive while the collector is down, are dropped.
type TCPSink struct {
	addr          string
	dialTimeout   time.Duration
	writeTimeout  time.Duration
	retryInterval time.Duration

	queue chan []byte
	done  chan struct{}
	wg    sync.WaitGroup

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

type SinkOption func(*TCPSink)

func WithDialTimeout(d time.Duration) SinkOption {
	return func(s *TCPSink) { s.dialTimeout = d }
}

func WithWriteTimeout(d time.Duration) SinkOption {
	return func(s *TCPSink) { s.writeTimeout = d }
}

// WithRetryInterval sets how long the sink waits before redialing after a
// failed connect or write.
func WithRetryInterval(d time.Duration) SinkOption {
	return func(s *TCPSink) { s.retryInterval = d }
}

func WithQueueSize(n int) SinkOption {
	return func(s *TCPSink) {
		if n > 0 {
			s.queue = make(chan []byte, n)
		}
	}
}

var ErrSinkClosed = errors.New("logging: sink closed")

func NewTCPSink(addr string, opts ...SinkOption) (*TCPSink, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("logging: empty logstash address")
	}

	s := &TCPSink{
		addr:          addr,
		dialTimeout:   2 * time.Second,
		writeTimeout:  time.Second,
		retryInterval: 5 * time.Second,
		queue:         make(chan []byte, 1024),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.run()
	return s, nil
}

// Write implements io.Writer and always reports the full length as written
// unless the sink has been closed.
func (s *TCPSink) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrSinkClosed
	}

	record := make([]byte, len(p), len(p)+1)
	copy(record, p)
	if record[len(record)-1] != '\n' {
		record = append(record, '\n')
	}

	select {
	case s.queue <- record:
	default:
	}
	return len(p), nil
}

// Close stops accepting records, flushes what is queued if the collector is
// reachable and closes the connection.
func (s *TCPSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.done)
		s.mu.Unlock()
		s.wg.Wait()
	})
	return nil
}

func (s *TCPSink) run() {
	defer s.wg.Done()

	var (
		conn      net.Conn
		nextRetry time.Time
	)
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
	}()

	send := func(record []byte) {
		if conn == nil {
			if time.Now().Before(nextRetry) {
				return
			}
			c, err := net.DialTimeout("tcp", s.addr, s.dialTimeout)
			if err != nil {
				nextRetry = time.Now().Add(s.retryInterval)
				return
			}
			conn = c
		}
		if s.writeTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		}
		if _, err := conn.Write(record); err != nil {
			_ = conn.Close()
			conn = nil
			nextRetry = time.Now().Add(s.retryInterval)
		}
	}

	for {
		select {
		case record := <-s.queue:
			send(record)
		case <-s.done:
			for {
				select {
				case record := <-s.queue:
					send(record)
				default:
					return
				}
			}
		}
	}
}
