package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/viant/scenario/internal/codec"
	"github.com/viant/scenario/internal/job"
	"github.com/viant/scenario/internal/message"
	"github.com/viant/scenario/internal/obs"
	"github.com/viant/scenario/internal/timeout"
)

type eventKind int

const (
	eventOpened eventKind = iota
	eventChunk
	eventEOF
	eventFailed
)

type event struct {
	kind eventKind
	data []byte
	err  error
}

// stream is one live session. The run goroutine is the only one touching
// the decoder and the supervisor; the read goroutine only moves transport
// events onto the events channel.
type stream struct {
	live       *Live
	dispatcher job.Dispatcher
	callbacks  job.Callbacks
	supervisor *timeout.Supervisor
	decoder    *codec.Decoder
	handle     *job.Handle
	logger     *slog.Logger
	cancel     context.CancelFunc
	events     chan event
	exited     chan struct{}
}

func newStream(l *Live, d job.Dispatcher, cb job.Callbacks) *stream {
	s := &stream{
		live:       l,
		dispatcher: d,
		callbacks:  cb,
		supervisor: timeout.New(l.clock, l.timeouts),
		logger:     l.logger.With("path", l.request.Path, "requestId", l.request.RequestID),
		events:     make(chan event),
		exited:     make(chan struct{}),
	}
	s.decoder = codec.New(
		codec.WithPrefix(l.prefix),
		codec.WithLogger(s.logger),
		codec.WithErrorHandler(func([]byte, error) {
			l.metrics.Inc(obs.ParseErrorsTotal, nil, 1)
		}),
	)
	return s
}

func (s *stream) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.handle = job.NewHandle(s.cancel)
	s.dispatcher.Reset()
	s.supervisor.Start()
	s.logger.Debug("opening stream", "method", s.live.request.Method)
	go s.read(ctx)
	go s.run()
}

func (s *stream) run() {
	defer s.handle.Exit()
	completed, err := s.loop()
	s.supervisor.Stop()
	s.cancel()
	close(s.exited)
	switch {
	case err != nil:
		s.handle.Finish(func() {
			if s.callbacks.OnError != nil {
				s.callbacks.OnError(err)
			}
		})
	case completed:
		s.handle.Finish(s.callbacks.OnComplete)
	}
}

// loop drives the session until a terminal condition. It returns the error
// to report; completed is set when the stream ended gracefully.
func (s *stream) loop() (bool, *job.Error) {
	for {
		select {
		case <-s.handle.Stopping():
			return false, nil
		case e := <-s.supervisor.Expired():
			if !s.supervisor.Accept(e) {
				continue
			}
			return false, s.expire(e.Kind)
		case ev := <-s.events:
			if s.stopping() {
				return false, nil
			}
			switch ev.kind {
			case eventOpened:
				s.supervisor.Connected()
				s.logger.Debug("stream opened")
			case eventChunk:
				for _, m := range s.decoder.Decode(ev.data) {
					if !s.deliver(m) {
						return false, nil
					}
				}
			case eventEOF:
				for _, m := range s.decoder.Close() {
					if !s.deliver(m) {
						return false, nil
					}
				}
				s.logger.Debug("stream ended")
				return true, nil
			case eventFailed:
				s.logger.Error("stream failed", "error", ev.err)
				return false, job.NewError(job.CodeStreamError, "stream failed", ev.err)
			}
		}
	}
}

func (s *stream) stopping() bool {
	select {
	case <-s.handle.Stopping():
		return true
	default:
		return false
	}
}

// deliver dispatches m and hands it to OnMessage. It reports false once the
// session was cleaned up, including from within OnMessage.
func (s *stream) deliver(m *message.Message) bool {
	if s.handle.Stopped() {
		return false
	}
	s.supervisor.Observe(m.IsData())
	s.dispatcher.Dispatch(m)
	return s.handle.Deliver(func() {
		if s.callbacks.OnMessage != nil {
			s.callbacks.OnMessage(m)
		}
	}) && !s.handle.Stopped()
}

func (s *stream) expire(kind timeout.Kind) *job.Error {
	d := s.supervisor.Duration(kind)
	var ret *job.Error
	switch kind {
	case timeout.KindConnection:
		ret = job.NewError(job.CodeConnectionTimeout, fmt.Sprintf("no response within %s", d), nil)
	case timeout.KindHeartbeat:
		ret = job.NewError(job.CodeHeartbeatTimeout, fmt.Sprintf("no message within %s", d), nil)
	default:
		reason := fmt.Sprintf("timed out: no data within %s", d)
		expired := s.dispatcher.ExpirePending(reason)
		s.logger.Warn("expired pending components", "count", len(expired))
		ret = job.NewError(job.CodeUniversalTimeout, reason, nil)
	}
	s.live.metrics.Inc(obs.TimeoutsTotal, map[string]string{"code": string(ret.Code)}, 1)
	s.logger.Error("stream timed out", "code", ret.Code, "timeout", d)
	return ret
}

// read moves transport events to the run goroutine. Anything read after the
// session ended is dropped.
func (s *stream) read(ctx context.Context) {
	body, err := s.live.transport.OpenStream(ctx, &s.live.request)
	if err != nil {
		s.send(event{kind: eventFailed, err: err})
		return
	}
	defer body.Close()
	if !s.send(event{kind: eventOpened}) {
		return
	}
	buf := make([]byte, s.live.bufSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if !s.send(event{kind: eventChunk, data: chunk}) {
				return
			}
		}
		if errors.Is(err, io.EOF) {
			s.send(event{kind: eventEOF})
			return
		}
		if err != nil {
			s.send(event{kind: eventFailed, err: err})
			return
		}
	}
}

func (s *stream) send(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.exited:
		if ev.kind == eventChunk {
			s.logger.Debug("dropping late stream data", "bytes", len(ev.data))
		}
		return false
	}
}
