package relay

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Ops is the slice of the sandbox API the drivers use.
type Ops interface {
	GetSandbox(ctx context.Context, sandboxID string) (json.RawMessage, error)
	ListSessions(ctx context.Context, sandboxID string) (json.RawMessage, error)
	StreamCommandLogs(ctx context.Context, sandboxID, sessionID, commandID string) (io.ReadCloser, error)
}

const logChunkSize = 4096

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// startPoll runs an immediate fetch-and-emit, then repeats on the given
// period until stopped. The next tick is scheduled only after the current
// fetch settles, so fetches never overlap and emissions stay in timestamp
// order. Each fetch is bounded by the poll period so a hung upstream call
// cannot stall the loop forever.
//
// The returned stop func cancels the loop and waits for the goroutine to
// exit; calling it again is a no-op.
func (s *Supervisor) startPoll(ctx context.Context, sub *Handle, em Emitter, interval time.Duration,
	fetch func(context.Context) (json.RawMessage, error),
	emit func(json.RawMessage)) func() {

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		for {
			s.pollOnce(ctx, sub, em, interval, fetch, emit)
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

func (s *Supervisor) pollOnce(ctx context.Context, sub *Handle, em Emitter, interval time.Duration,
	fetch func(context.Context) (json.RawMessage, error),
	emit func(json.RawMessage)) {

	fctx, fcancel := context.WithTimeout(ctx, interval)
	defer fcancel()

	payload, err := fetch(fctx)
	if ctx.Err() != nil {
		// Cancelled mid-fetch: the channel is tearing down, stay silent.
		return
	}
	if err != nil {
		s.driverError(ctx, sub, em, "upstream fetch failed", err)
		return
	}
	emit(payload)
	s.countEvent(ctx)
}

// startLogStream establishes the follow stream synchronously, then copies
// chunks to the emitter until the stream ends. Establishment failure is
// returned to the supervisor, which reports it as a generic error event.
func (s *Supervisor) startLogStream(ctx context.Context, sub *Handle, em Emitter) (func(), error) {
	req := sub.req
	ctx, cancel := context.WithCancel(ctx)

	body, err := s.ops.StreamCommandLogs(ctx, req.SandboxID, req.SessionID, req.CommandID)
	if err != nil {
		cancel()
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer body.Close()

		buf := make([]byte, logChunkSize)
		for {
			n, err := body.Read(buf)
			if n > 0 && ctx.Err() == nil {
				em.Emit(EventLog, LogPayload{
					SandboxID: req.SandboxID,
					SessionID: req.SessionID,
					CommandID: req.CommandID,
					Text:      string(buf[:n]),
					Timestamp: nowStamp(),
				})
				s.countEvent(ctx)
			}
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			end := LogEndPayload{
				SandboxID: req.SandboxID,
				SessionID: req.SessionID,
				CommandID: req.CommandID,
			}
			if err == io.EOF {
				em.Emit(EventLogComplete, end)
				s.countEvent(ctx)
				return
			}
			em.Emit(EventLogError, LogErrorPayload{
				SandboxID: end.SandboxID,
				SessionID: end.SessionID,
				CommandID: end.CommandID,
				Message:   err.Error(),
			})
			s.countEvent(ctx)
			return
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			// Close the body as well: a reader blocked on a connection the
			// transport already handed off would otherwise leak the socket.
			body.Close()
			wg.Wait()
		})
	}, nil
}
