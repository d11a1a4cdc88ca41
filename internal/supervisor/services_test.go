package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSweeper struct {
	runs    atomic.Int32
	margins chan time.Duration
	err     error
}

func (c *countingSweeper) SweepExpiredEntries(ctx context.Context, margin time.Duration) (int, error) {
	c.runs.Add(1)
	select {
	case c.margins <- margin:
	default:
	}
	return 0, c.err
}

func (c *countingSweeper) DefaultMargin() time.Duration { return 24 * time.Hour }

func TestSweeperService_RunsOnEveryTickAndSurvivesErrors(t *testing.T) {
	sweeper := &countingSweeper{margins: make(chan time.Duration, 1), err: errors.New("store down")}
	svc := NewSweeperService(sweeper, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	select {
	case margin := <-sweeper.margins:
		if margin != 24*time.Hour {
			t.Errorf("margin = %v, want default 24h", margin)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never ran")
	}

	deadline := time.Now().Add(2 * time.Second)
	for sweeper.runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sweeper.runs.Load() < 3 {
		t.Fatalf("runs = %d, want at least 3 despite errors", sweeper.runs.Load())
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}

type fakeServer struct {
	mu       sync.Mutex
	stopped  chan struct{}
	shutdown bool
	listen   error
}

func (f *fakeServer) ListenAndServe() error {
	if f.listen != nil {
		return f.listen
	}
	<-f.stopped
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	f.shutdown = true
	f.mu.Unlock()
	close(f.stopped)
	return nil
}

func TestHTTPServerService_ShutsDownOnCancel(t *testing.T) {
	server := &fakeServer{stopped: make(chan struct{})}
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	if !server.shutdown {
		t.Error("Shutdown was not called")
	}
}

func TestHTTPServerService_ListenFailure(t *testing.T) {
	svc := NewHTTPServerService(&fakeServer{listen: errors.New("address in use")}, time.Second)
	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("Serve() = nil, want listen error")
	}
}

func TestSupervisorTree_StopsServicesOnCancel(t *testing.T) {
	tree := NewSupervisorTree(TreeConfig{ShutdownTimeout: time.Second})
	sweeper := &countingSweeper{margins: make(chan time.Duration, 1)}
	tree.AddMaintenanceService(NewSweeperService(sweeper, 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	select {
	case <-sweeper.margins:
	case <-time.After(2 * time.Second):
		t.Fatal("supervised sweeper never ran")
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop")
	}
}

func TestWait_ReturnsWhenTreeStopsBeforeShutdown(t *testing.T) {
	boom := errors.New("root supervisor crashed")
	tests := []struct {
		name string
		exit error
	}{
		{"with error", boom},
		{"without error", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errCh := make(chan error, 1)
			errCh <- tt.exit

			done := make(chan error, 1)
			go func() { done <- Wait(context.Background(), errCh) }()

			select {
			case err := <-done:
				if !errors.Is(err, ErrStoppedEarly) {
					t.Fatalf("Wait() = %v, want ErrStoppedEarly", err)
				}
				if tt.exit != nil && !errors.Is(err, tt.exit) {
					t.Fatalf("Wait() = %v, want it to wrap %v", err, tt.exit)
				}
			case <-time.After(time.Second):
				t.Fatal("Wait() kept blocking after the tree stopped")
			}
		})
	}
}

func TestWait_CleanShutdownAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	done := make(chan error, 1)
	go func() { done <- Wait(ctx, errCh) }()

	cancel()
	errCh <- context.Canceled

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait() = %v, want nil after cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after cancel")
	}
}

func TestWait_TreeWithFailingServiceStillStopsOnCancel(t *testing.T) {
	tree := NewSupervisorTree(TreeConfig{ShutdownTimeout: time.Second, FailureBackoff: time.Millisecond})
	tree.AddAPIService(NewHTTPServerService(&fakeServer{listen: errors.New("address in use")}, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Wait(ctx, tree.ServeBackground(ctx)) }()

	select {
	case err := <-done:
		t.Fatalf("Wait() = %v before cancel, want it to block while services restart", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait() = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop")
	}
}
