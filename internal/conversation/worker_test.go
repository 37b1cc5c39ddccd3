package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

func TestWorkerProcessesMessages(t *testing.T) {
	queue := newScriptedQueue()
	processor := &recordingProcessor{}
	store := &stubJobUpdater{}
	worker := NewWorker(processor, queue, store, logging.Discard(), WithWorkerCount(1), WithReceiveBatchSize(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.Start(ctx)

	queue.enqueue(queueMessage{
		ID:            "msg-1",
		Body:          encodeTestPayload(t, queuePayload{ID: "job-1", Kind: jobTypeInbound, TrackStatus: true, Inbound: inbound(phoneAna, "hi")}),
		ReceiptHandle: "rh-1",
	})

	waitFor(func() bool {
		return len(store.completedJobs()) > 0
	}, time.Second, t)

	cancel()
	worker.Wait()

	if processor.count() != 1 {
		t.Fatalf("expected 1 turn, got %d", processor.count())
	}
	if got := processor.last(); got.Phone != phoneAna || got.Text != "hi" {
		t.Fatalf("unexpected inbound message: %#v", got)
	}
	if jobs := store.completedJobs(); len(jobs) != 1 || jobs[0] != "job-1" {
		t.Fatalf("expected job completion to be recorded, got %#v", jobs)
	}
	if queue.deletedCount() != 1 {
		t.Fatalf("expected delete to be invoked once, got %d", queue.deletedCount())
	}
}

func TestWorkerHandlesProcessingErrors(t *testing.T) {
	queue := newScriptedQueue()
	processor := &recordingProcessor{err: errors.New("lock timeout")}
	store := &stubJobUpdater{}
	worker := NewWorker(processor, queue, store, logging.Discard(), WithWorkerCount(1), WithReceiveBatchSize(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	queue.enqueue(queueMessage{
		ID:            "msg-fail",
		Body:          encodeTestPayload(t, queuePayload{ID: "job-fail", Kind: jobTypeInbound, TrackStatus: true, Inbound: inbound(phoneAna, "hi")}),
		ReceiptHandle: "rh-fail",
	})

	waitFor(func() bool {
		return store.failureCount() == 1
	}, time.Second, t)

	cancel()
	worker.Wait()

	if queue.deletedCount() != 1 {
		t.Fatalf("failed turns must still be deleted, got %d deletes", queue.deletedCount())
	}
	if len(store.completedJobs()) != 0 {
		t.Fatalf("expected no completion for failed turn")
	}
}

func TestWorkerSkipsMalformedPayload(t *testing.T) {
	queue := newScriptedQueue()
	processor := &recordingProcessor{}
	store := &stubJobUpdater{}
	worker := NewWorker(processor, queue, store, logging.Discard(), WithWorkerCount(1), WithReceiveBatchSize(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	queue.enqueue(queueMessage{ID: "bad", Body: "{", ReceiptHandle: "rh-bad"})

	waitFor(func() bool {
		return queue.deletedCount() == 1
	}, time.Second, t)

	cancel()
	worker.Wait()

	if processor.count() != 0 {
		t.Fatalf("expected no processor calls for malformed body")
	}
	if len(store.completedJobs()) != 0 || store.failureCount() != 0 {
		t.Fatalf("expected no job updates for malformed payload")
	}
}

func TestWorkerMarksUnknownKindFailed(t *testing.T) {
	queue := newScriptedQueue()
	processor := &recordingProcessor{}
	store := &stubJobUpdater{}
	worker := NewWorker(processor, queue, store, logging.Discard(), WithWorkerCount(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	queue.enqueue(queueMessage{
		ID:            "msg-old",
		Body:          encodeTestPayload(t, queuePayload{ID: "job-old", Kind: "start_conversation", TrackStatus: true}),
		ReceiptHandle: "rh-old",
	})

	waitFor(func() bool {
		return store.failureCount() == 1
	}, time.Second, t)

	cancel()
	worker.Wait()

	if processor.count() != 0 {
		t.Fatalf("unknown kinds must not reach the session manager")
	}
}

func TestWorkerSkipsStatusWhenUntracked(t *testing.T) {
	queue := newScriptedQueue()
	processor := &recordingProcessor{}
	store := &stubJobUpdater{}
	worker := NewWorker(processor, queue, store, logging.Discard(), WithWorkerCount(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	queue.enqueue(queueMessage{
		ID:            "msg-2",
		Body:          encodeTestPayload(t, queuePayload{ID: "job-2", Kind: jobTypeInbound, Inbound: inbound(phoneAna, "hi")}),
		ReceiptHandle: "rh-2",
	})

	waitFor(func() bool {
		return queue.deletedCount() == 1
	}, time.Second, t)

	cancel()
	worker.Wait()

	if len(store.completedJobs()) != 0 {
		t.Fatalf("expected no job updates when tracking is off")
	}
}

func TestWorkerEndToEndWithMemoryQueue(t *testing.T) {
	f := newTurnFixture(t)
	f.llm.script(bookConsultaAt("13:00"), LLMResponse{Text: "Booked for 13:00."})

	queue := NewMemoryQueue(4)
	jobs := NewMemoryJobStore()
	publisher := NewPublisher(queue, jobs, logging.Discard())
	worker := NewWorker(f.manager, queue, jobs, logging.Discard(), WithWorkerCount(1), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	jobID, err := publisher.EnqueueInbound(ctx, "", inbound(phoneAna, "1pm monday"))
	if err != nil {
		t.Fatalf("EnqueueInbound: %v", err)
	}

	waitFor(func() bool {
		job, err := jobs.GetJob(ctx, jobID)
		return err == nil && job.Status == JobStatusCompleted
	}, 2*time.Second, t)

	cancel()
	worker.Wait()

	job, _ := jobs.GetJob(context.Background(), jobID)
	if job.Result == nil || job.Result.Reply != "Booked for 13:00." {
		t.Fatalf("unexpected job result: %#v", job.Result)
	}
	if n := len(f.appointmentsOn(t, monday)); n != 1 {
		t.Fatalf("expected 1 appointment, got %d", n)
	}
}

func TestWorkerConfigOptions(t *testing.T) {
	worker := NewWorker(
		&recordingProcessor{},
		newScriptedQueue(),
		&stubJobUpdater{},
		logging.Discard(),
		WithWorkerCount(3),
		WithReceiveBatchSize(20),
		WithReceiveWaitSeconds(30),
	)

	if worker.cfg.workers != 3 {
		t.Fatalf("expected worker count override, got %d", worker.cfg.workers)
	}
	if worker.cfg.receiveBatchSize != maxReceiveBatchSize {
		t.Fatalf("expected batch size capped at %d, got %d", maxReceiveBatchSize, worker.cfg.receiveBatchSize)
	}
	if worker.cfg.receiveWaitSecs != maxWaitSeconds {
		t.Fatalf("expected wait seconds capped at %d, got %d", maxWaitSeconds, worker.cfg.receiveWaitSecs)
	}
}

func encodeTestPayload(t *testing.T, payload queuePayload) string {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return string(body)
}

type recordingProcessor struct {
	mu    sync.Mutex
	calls []InboundMessage
	err   error
}

func (r *recordingProcessor) HandleInbound(ctx context.Context, msg InboundMessage) (TurnResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, msg)
	if r.err != nil {
		return TurnResult{}, r.err
	}
	return TurnResult{Reply: "ok", Outcome: OutcomeReplied}, nil
}

func (r *recordingProcessor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingProcessor) last() InboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

type scriptedQueue struct {
	ch       chan queueMessage
	deleted  int
	delMutex sync.Mutex
}

func newScriptedQueue() *scriptedQueue {
	return &scriptedQueue{
		ch: make(chan queueMessage, 10),
	}
}

func (s *scriptedQueue) enqueue(msg queueMessage) {
	s.ch <- msg
}

func (s *scriptedQueue) Send(ctx context.Context, body string) error {
	return nil
}

func (s *scriptedQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-s.ch:
		return []queueMessage{msg}, nil
	case <-time.After(50 * time.Millisecond):
		return nil, nil
	}
}

func (s *scriptedQueue) Delete(ctx context.Context, receiptHandle string) error {
	s.delMutex.Lock()
	s.deleted++
	s.delMutex.Unlock()
	return nil
}

func (s *scriptedQueue) deletedCount() int {
	s.delMutex.Lock()
	defer s.delMutex.Unlock()
	return s.deleted
}

func waitFor(cond func() bool, timeout time.Duration, t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

type stubJobUpdater struct {
	completed []string
	failed    []string
	mu        sync.Mutex
}

func (s *stubJobUpdater) MarkCompleted(ctx context.Context, jobID string, result *TurnResult) error {
	s.mu.Lock()
	s.completed = append(s.completed, jobID)
	s.mu.Unlock()
	return nil
}

func (s *stubJobUpdater) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	s.mu.Lock()
	s.failed = append(s.failed, jobID)
	s.mu.Unlock()
	return nil
}

func (s *stubJobUpdater) completedJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.completed...)
}

func (s *stubJobUpdater) failureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failed)
}
