package lifecycle

import "testing"

func TestClientRegistryInsertRemove(t *testing.T) {
	r := NewClientRegistry()
	a := Client{MAC: "aa:aa:aa:aa:aa:aa", InstanceID: "wlan0"}
	b := Client{MAC: "bb:bb:bb:bb:bb:bb", InstanceID: "wlan0"}

	r.Insert(a)
	r.Insert(b)

	if got := r.TotalCount(); got != 2 {
		t.Fatalf("TotalCount() = %d, want 2", got)
	}
	if !r.Contains("wlan0", a.MAC) {
		t.Fatalf("expected registry to contain %v", a)
	}

	ordered := r.OrderedClients()
	if len(ordered) != 2 || ordered[0] != a || ordered[1] != b {
		t.Fatalf("OrderedClients() = %v, want insertion order [a b]", ordered)
	}

	if !r.Remove("wlan0", a.MAC) {
		t.Fatalf("Remove() = false, want true for present client")
	}
	if r.Remove("wlan0", a.MAC) {
		t.Fatalf("Remove() = true on second call, want false")
	}
	if r.TotalCount() != 1 {
		t.Fatalf("TotalCount() = %d after remove, want 1", r.TotalCount())
	}
}

func TestClientRegistryIdleInstances(t *testing.T) {
	r := NewClientRegistry()
	r.EnsureInstance("wlan0")
	r.EnsureInstance("wlan1")
	r.Insert(Client{MAC: "aa:aa:aa:aa:aa:aa", InstanceID: "wlan0"})

	idle := r.IdleInstances()
	if len(idle) != 1 || idle[0] != "wlan1" {
		t.Fatalf("IdleInstances() = %v, want [wlan1]", idle)
	}
}

func TestClientRegistryForgetInstance(t *testing.T) {
	r := NewClientRegistry()
	r.Insert(Client{MAC: "aa:aa:aa:aa:aa:aa", InstanceID: "wlan0"})
	r.Insert(Client{MAC: "bb:bb:bb:bb:bb:bb", InstanceID: "wlan1"})

	r.ForgetInstance("wlan0")

	if r.TotalCount() != 1 {
		t.Fatalf("TotalCount() = %d after ForgetInstance, want 1", r.TotalCount())
	}
	if r.Contains("wlan0", "aa:aa:aa:aa:aa:aa") {
		t.Fatalf("expected wlan0's client to be forgotten")
	}
}

func TestClientRegistryClear(t *testing.T) {
	r := NewClientRegistry()
	r.Insert(Client{MAC: "aa:aa:aa:aa:aa:aa", InstanceID: "wlan0"})
	r.Clear()

	if r.TotalCount() != 0 {
		t.Fatalf("TotalCount() = %d after Clear, want 0", r.TotalCount())
	}
	if len(r.ListAll()) != 0 {
		t.Fatalf("ListAll() = %v after Clear, want empty", r.ListAll())
	}
}
