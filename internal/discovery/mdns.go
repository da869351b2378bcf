// Package discovery advertises and finds frame producers over mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service a frame producer registers.
const ServiceType = "_lineout-frames._tcp"

var ErrNotFound = errors.New("no frame producer found")

// Advertiser announces a producer endpoint until Stop is called.
type Advertiser struct {
	server *mdns.Server
}

// Advertise registers name under ServiceType on port. Info strings are
// published as TXT records.
func Advertise(name string, port int, info ...string) (*Advertiser, error) {
	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}
	service, err := mdns.NewMDNSService(name, ServiceType, "", "", port, ips, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns server: %w", err)
	}
	log.Printf("advertising mDNS service %s on port %d (type: %s)", name, port, ServiceType)
	return &Advertiser{server: server}, nil
}

func (a *Advertiser) Stop() error {
	if a == nil || a.server == nil {
		return nil
	}
	return a.server.Shutdown()
}

// Producer describes a discovered publisher.
type Producer struct {
	Name string
	Host string
	Port int
	Info []string
}

// Endpoint is the ZeroMQ address a subscriber connects to.
func (p Producer) Endpoint() string {
	return fmt.Sprintf("tcp://%s", net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
}

// Lookup browses for wait and returns the first producer that answers.
func Lookup(ctx context.Context, wait time.Duration) (Producer, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	entries := make(chan *mdns.ServiceEntry, 8)
	found := make(chan Producer, 1)
	go func() {
		for entry := range entries {
			producer, ok := fromEntry(entry)
			if !ok {
				continue
			}
			select {
			case found <- producer:
			default:
			}
		}
	}()

	go func() {
		params := mdns.DefaultParams(ServiceType)
		params.Entries = entries
		params.Timeout = wait
		params.DisableIPv6 = true
		if err := mdns.Query(params); err != nil {
			log.Printf("mDNS query failed: %v", err)
		}
		close(entries)
	}()

	select {
	case producer := <-found:
		log.Printf("discovered producer %s at %s", producer.Name, producer.Endpoint())
		return producer, nil
	case <-ctx.Done():
		return Producer{}, ErrNotFound
	}
}

func fromEntry(entry *mdns.ServiceEntry) (Producer, bool) {
	if entry == nil || entry.Port <= 0 {
		return Producer{}, false
	}
	if !strings.Contains(entry.Name, ServiceType) {
		return Producer{}, false
	}
	host := ""
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		host = strings.TrimSuffix(entry.Host, ".")
	}
	if host == "" {
		return Producer{}, false
	}
	return Producer{
		Name: entry.Name,
		Host: host,
		Port: entry.Port,
		Info: entry.InfoFields,
	}, true
}

// EndpointPort extracts the TCP port from a ZeroMQ endpoint such as
// tcp://*:12322.
func EndpointPort(endpoint string) (int, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return 0, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "tcp" {
		return 0, fmt.Errorf("endpoint %q is not tcp", endpoint)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("endpoint %q has no valid port", endpoint)
	}
	return port, nil
}

func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
