package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/freelancehub/hub"
)

type frameServer struct {
	mu     sync.Mutex
	frames []hub.Frame
}

func (s *frameServer) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for {
			var frame hub.Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			s.mu.Lock()
			s.frames = append(s.frames, frame)
			s.mu.Unlock()
		}
	}
}

func (s *frameServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func newTestChannel(t *testing.T, srv *httptest.Server) *Websocket {
	t.Helper()
	w := New(strings.Replace(srv.URL, "http", "ws", 1), "")
	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

func TestSendSerializesConcurrentWriters(t *testing.T) {
	fs := &frameServer{}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	w := newTestChannel(t, srv)

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if err := w.Send(hub.EventSendMessage, hub.WireMessage{Content: "hi"}); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent send failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fs.count() < writers*perWriter {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d frames, got %d", writers*perWriter, fs.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJoinSendsWireEventOnce(t *testing.T) {
	fs := &frameServer{}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	w := newTestChannel(t, srv)

	if err := w.Join("alice"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if err := w.Join("alice"); err != nil {
		t.Fatalf("repeat join failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fs.count() < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("join frame never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := fs.count(); got != 1 {
		t.Fatalf("expected one join frame for duplicate joins, got %d", got)
	}
}
