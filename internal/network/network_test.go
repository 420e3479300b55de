package network_test

import (
	"testing"

	"github.com/evoker-industries/rune/internal/network"
)

func TestConnectAllocatesAndDisconnectReleases(t *testing.T) {
	m := network.NewManager()
	if _, err := m.Create("net1", "app-net", network.DriverBridge, "10.88.0.0/24"); err != nil {
		t.Fatal(err)
	}

	ep, err := m.Connect("container-a", "net1")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if ep.IPAddress.String() != "10.88.0.2" {
		t.Fatalf("first endpoint IP = %s, want 10.88.0.2", ep.IPAddress)
	}

	if err := m.Disconnect("container-a", "net1"); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	ep2, err := m.Connect("container-b", "net1")
	if err != nil {
		t.Fatal(err)
	}
	if ep2.IPAddress.String() != "10.88.0.2" {
		t.Fatalf("reissued endpoint IP = %s, want 10.88.0.2", ep2.IPAddress)
	}
}

func TestConnectUnknownNetworkFails(t *testing.T) {
	m := network.NewManager()
	if _, err := m.Connect("container-a", "missing"); err == nil {
		t.Error("expected error connecting to a nonexistent network")
	}
}

func TestHostAndNoneDriversHaveNoAllocator(t *testing.T) {
	m := network.NewManager()
	if _, err := m.Create("hostnet", "host", network.DriverHost, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Connect("container-a", "hostnet"); err == nil {
		t.Error("expected error: host driver has no address space")
	}
}
