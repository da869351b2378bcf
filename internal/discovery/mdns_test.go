package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestEndpointPort(t *testing.T) {
	port, err := EndpointPort("tcp://*:12322")
	if err != nil || port != 12322 {
		t.Fatalf("unexpected port %d (%v)", port, err)
	}
	if _, err := EndpointPort("ipc:///tmp/frames"); err == nil {
		t.Fatalf("expected error for ipc endpoint")
	}
	if _, err := EndpointPort("tcp://localhost"); err == nil {
		t.Fatalf("expected error without port")
	}
}

func TestProducerEndpoint(t *testing.T) {
	p := Producer{Host: "192.168.1.7", Port: 12322}
	if got := p.Endpoint(); got != "tcp://192.168.1.7:12322" {
		t.Fatalf("unexpected endpoint %q", got)
	}
}

func TestFromEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:   "frame-producer." + ServiceType + ".local.",
		Host:   "box.local.",
		AddrV4: net.ParseIP("10.0.0.5"),
		Port:   12322,
	}
	p, ok := fromEntry(entry)
	if !ok {
		t.Fatalf("expected entry to be accepted")
	}
	if p.Endpoint() != "tcp://10.0.0.5:12322" {
		t.Fatalf("unexpected endpoint %q", p.Endpoint())
	}

	entry.AddrV4 = nil
	p, ok = fromEntry(entry)
	if !ok || p.Host != "box.local" {
		t.Fatalf("expected host fallback, got %#v", p)
	}

	if _, ok := fromEntry(&mdns.ServiceEntry{Name: "other._http._tcp.local.", Port: 80}); ok {
		t.Fatalf("expected foreign service to be rejected")
	}
	if _, ok := fromEntry(nil); ok {
		t.Fatalf("expected nil entry to be rejected")
	}
}
