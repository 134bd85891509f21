package registry_test

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/jmharper/taskhub/internal/app/realtime/registry"
)

func TestRegister_FirstConnectionReportsOnlineTransition(t *testing.T) {
	r := registry.New()

	first := r.Register("conn-1", "user-a")
	if !first {
		t.Error("expected first registration to report offline→online transition")
	}
	if !r.IsOnline("user-a") {
		t.Error("expected user-a to be online")
	}

	// Second connection for the same user is not a transition.
	first = r.Register("conn-2", "user-a")
	if first {
		t.Error("second connection should not report a transition")
	}
}

func TestRegister_Idempotent(t *testing.T) {
	r := registry.New()

	r.Register("conn-1", "user-a")
	again := r.Register("conn-1", "user-a")
	if again {
		t.Error("re-registering the same connection should not report a transition")
	}
	if got := len(r.ConnectionsOf("user-a")); got != 1 {
		t.Errorf("connections: got %d, want 1", got)
	}
}

func TestUnregister_LastConnectionReportsOfflineTransition(t *testing.T) {
	r := registry.New()
	r.Register("conn-1", "user-a")
	r.Register("conn-2", "user-a")

	last := r.Unregister("conn-1", "user-a")
	if last {
		t.Error("user still has a connection; should not report offline")
	}
	if !r.IsOnline("user-a") {
		t.Error("expected user-a to still be online")
	}

	last = r.Unregister("conn-2", "user-a")
	if !last {
		t.Error("expected removal of last connection to report online→offline")
	}
	if r.IsOnline("user-a") {
		t.Error("expected user-a to be offline")
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	r := registry.New()
	r.Register("conn-1", "user-a")
	r.Register("conn-x", "user-b")

	r.Unregister("conn-1", "user-a")
	// Second unregister is a no-op, never an error, and must not touch
	// other users' state.
	last := r.Unregister("conn-1", "user-a")
	if last {
		t.Error("double unregister should be a no-op")
	}
	if !r.IsOnline("user-b") {
		t.Error("unrelated user's state was affected")
	}
}

func TestUnregister_NeverRegistered(t *testing.T) {
	r := registry.New()
	if last := r.Unregister("ghost", "nobody"); last {
		t.Error("unregistering an unknown connection should be a no-op")
	}
}

func TestConnectionsOf_ReturnsSnapshot(t *testing.T) {
	r := registry.New()
	r.Register("conn-1", "user-a")
	r.Register("conn-2", "user-a")

	snap := r.ConnectionsOf("user-a")
	r.Unregister("conn-1", "user-a")

	// The snapshot taken before the disconnect is unchanged.
	sort.Strings(snap)
	if len(snap) != 2 || snap[0] != "conn-1" || snap[1] != "conn-2" {
		t.Errorf("snapshot changed under concurrent disconnect: %v", snap)
	}
}

func TestOnlineUsers_DistinctUsersNotConnections(t *testing.T) {
	r := registry.New()
	r.Register("conn-1", "user-a")
	r.Register("conn-2", "user-a")
	r.Register("conn-3", "user-b")

	if got := r.OnlineUsers(); got != 2 {
		t.Errorf("OnlineUsers: got %d, want 2", got)
	}
	if got := r.Connections(); got != 3 {
		t.Errorf("Connections: got %d, want 3", got)
	}
}

func TestRegistry_ConcurrentChurn(t *testing.T) {
	r := registry.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i%10)
			for j := 0; j < 100; j++ {
				conn := fmt.Sprintf("conn-%d-%d", i, j)
				r.Register(conn, user)
				r.IsOnline(user)
				r.ConnectionsOf(user)
				r.Unregister(conn, user)
			}
		}(i)
	}
	wg.Wait()

	// Every register was matched by an unregister, so nobody is online.
	if got := r.OnlineUsers(); got != 0 {
		t.Errorf("expected no users online after churn, got %d", got)
	}
	if got := r.Connections(); got != 0 {
		t.Errorf("expected no live connections after churn, got %d", got)
	}
}
