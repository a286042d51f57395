package controlpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tverberg/castpoint/internal/description"
	"github.com/tverberg/castpoint/internal/ssdp"
)

// stubPacketConn feeds canned datagrams to a Listener and blocks
// otherwise, standing in for the multicast socket.
type stubPacketConn struct {
	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newStubPacketConn() *stubPacketConn {
	return &stubPacketConn{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (c *stubPacketConn) deliver(data []byte) {
	select {
	case c.incoming <- data:
	case <-c.closed:
	}
}

func (c *stubPacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case data := <-c.incoming:
		n := copy(p, data)
		return n, &net.UDPAddr{IP: net.ParseIP("192.0.2.5"), Port: 1900}, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *stubPacketConn) WriteTo(p []byte, addr net.Addr) (int, error) { return len(p), nil }

func (c *stubPacketConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *stubPacketConn) LocalAddr() net.Addr                { return &net.UDPAddr{} }
func (c *stubPacketConn) SetDeadline(t time.Time) error      { return nil }
func (c *stubPacketConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *stubPacketConn) SetWriteDeadline(t time.Time) error { return nil }

func record(usn, location string) *ssdp.DiscoveryRecord {
	return &ssdp.DiscoveryRecord{
		Location: location,
		USN:      usn,
		Target:   "upnp:rootdevice",
		MaxAge:   1800,
	}
}

func fakeDevice(udn, name string) *description.Device {
	return &description.Device{
		UDN:          udn,
		FriendlyName: name,
		DeviceType:   "urn:schemas-upnp-org:device:MediaRenderer:1",
	}
}

// newTestControlPoint wires a control point whose search, build and
// listener are all in-memory.
func newTestControlPoint(t *testing.T, opts Options, records []*ssdp.DiscoveryRecord, devices map[string]*description.Device) (*ControlPoint, *stubPacketConn) {
	t.Helper()
	cp, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	conn := newStubPacketConn()
	cp.search = func(ctx context.Context, target ssdp.SearchTarget) ([]*ssdp.DiscoveryRecord, error) {
		return records, nil
	}
	cp.broadcastSearch = cp.search
	cp.build = func(ctx context.Context, location string) (*description.Device, error) {
		device, ok := devices[location]
		if !ok {
			return nil, fmt.Errorf("no device at %s", location)
		}
		return device, nil
	}
	cp.newListener = func() (*ssdp.Listener, error) {
		return ssdp.NewListenerWithConn(conn), nil
	}
	return cp, conn
}

func TestOptions_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", Options{}, false},
		{"explicit values", Options{TTL: 2, ResponseWait: 3 * time.Second, MSearchCount: 1}, false},
		{"negative TTL", Options{TTL: -1}, true},
		{"TTL too large", Options{TTL: 300}, true},
		{"negative wait", Options{ResponseWait: -time.Second}, true},
		{"negative count", Options{MSearchCount: -2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if tt.wantErr {
				var configErr *ConfigError
				if !errors.As(err, &configErr) {
					t.Errorf("New() error = %v, want *ConfigError", err)
				}
				return
			}
			if err != nil {
				t.Errorf("New() error = %v", err)
			}
		})
	}
}

func TestControlPoint_StartBuildsDiscoveredDevices(t *testing.T) {
	records := []*ssdp.DiscoveryRecord{
		record("uuid:a::upnp:rootdevice", "http://192.0.2.1/desc.xml"),
		record("uuid:b::upnp:rootdevice", "http://192.0.2.2/desc.xml"),
	}
	devices := map[string]*description.Device{
		"http://192.0.2.1/desc.xml": fakeDevice("uuid:a", "Device A"),
		"http://192.0.2.2/desc.xml": fakeDevice("uuid:b", "Device B"),
	}

	cp, _ := newTestControlPoint(t, Options{}, records, devices)
	if err := cp.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer cp.Stop()

	if got := len(cp.Devices()); got != 2 {
		t.Errorf("Devices() = %d, want 2", got)
	}
	if device := cp.Device("uuid:a"); device == nil || device.FriendlyName != "Device A" {
		t.Errorf("Device(uuid:a) = %v", device)
	}
}

func TestControlPoint_DeduplicatesByUDN(t *testing.T) {
	// Two records (e.g. multicast and broadcast passes) pointing at the
	// same device.
	records := []*ssdp.DiscoveryRecord{
		record("uuid:a::upnp:rootdevice", "http://192.0.2.1/desc.xml"),
		record("uuid:a::urn:schemas-upnp-org:device:MediaRenderer:1", "http://192.0.2.1/desc.xml"),
	}
	devices := map[string]*description.Device{
		"http://192.0.2.1/desc.xml": fakeDevice("uuid:a", "Device A"),
	}

	cp, _ := newTestControlPoint(t, Options{}, records, devices)
	if err := cp.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer cp.Stop()

	if got := len(cp.Devices()); got != 1 {
		t.Errorf("Devices() = %d, want 1 after UDN dedup", got)
	}
}

func TestControlPoint_RemoteErrorsSkippedByDefault(t *testing.T) {
	records := []*ssdp.DiscoveryRecord{
		record("uuid:a::upnp:rootdevice", "http://192.0.2.1/desc.xml"),
		record("uuid:broken::upnp:rootdevice", "http://192.0.2.99/desc.xml"),
	}
	devices := map[string]*description.Device{
		"http://192.0.2.1/desc.xml": fakeDevice("uuid:a", "Device A"),
	}

	cp, _ := newTestControlPoint(t, Options{}, records, devices)
	if err := cp.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, want failures skipped", err)
	}
	defer cp.Stop()

	if got := len(cp.Devices()); got != 1 {
		t.Errorf("Devices() = %d, want 1", got)
	}
}

func TestControlPoint_RaiseOnRemoteError(t *testing.T) {
	records := []*ssdp.DiscoveryRecord{
		record("uuid:broken::upnp:rootdevice", "http://192.0.2.99/desc.xml"),
	}

	cp, _ := newTestControlPoint(t, Options{RaiseOnRemoteError: true}, records, nil)
	if err := cp.Start(context.Background()); err == nil {
		cp.Stop()
		t.Fatal("Start() succeeded, want error with RaiseOnRemoteError")
	}
}

func TestControlPoint_AliveAddsAndByeByeRemoves(t *testing.T) {
	devices := map[string]*description.Device{
		"http://192.0.2.7/desc.xml": fakeDevice("uuid:late", "Latecomer"),
	}

	cp, conn := newTestControlPoint(t, Options{}, nil, devices)
	if err := cp.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer cp.Stop()

	events := cp.Events()

	alive := &ssdp.AliveNotify{Record: &ssdp.DiscoveryRecord{
		Location: "http://192.0.2.7/desc.xml",
		USN:      "uuid:late::upnp:rootdevice",
		Target:   "upnp:rootdevice",
		Server:   "test/1.0",
		MaxAge:   1800,
	}}
	conn.deliver(alive.Encode())

	waitForEvent(t, events, DeviceAdded, "uuid:late")
	if device := cp.Device("uuid:late"); device == nil {
		t.Fatal("device not added on alive")
	}

	byebye := &ssdp.ByeByeNotify{Target: "upnp:rootdevice", USN: "uuid:late::upnp:rootdevice"}
	conn.deliver(byebye.Encode())

	waitForEvent(t, events, DeviceRemoved, "uuid:late")
	if device := cp.Device("uuid:late"); device != nil {
		t.Error("device still known after byebye")
	}
}

func TestControlPoint_KnownAliveDoesNotRebuild(t *testing.T) {
	records := []*ssdp.DiscoveryRecord{
		record("uuid:a::upnp:rootdevice", "http://192.0.2.1/desc.xml"),
	}
	var builds atomic.Int32
	devices := map[string]*description.Device{
		"http://192.0.2.1/desc.xml": fakeDevice("uuid:a", "Device A"),
	}

	cp, conn := newTestControlPoint(t, Options{}, records, devices)
	originalBuild := cp.build
	cp.build = func(ctx context.Context, location string) (*description.Device, error) {
		builds.Add(1)
		return originalBuild(ctx, location)
	}

	if err := cp.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer cp.Stop()

	alive := &ssdp.AliveNotify{Record: &ssdp.DiscoveryRecord{
		Location: "http://192.0.2.1/desc.xml",
		USN:      "uuid:a::upnp:rootdevice",
		Target:   "upnp:rootdevice",
		Server:   "test/1.0",
		MaxAge:   1800,
	}}
	conn.deliver(alive.Encode())

	// Give the tracker a moment; the build count must not grow.
	time.Sleep(200 * time.Millisecond)
	if got := builds.Load(); got != 1 {
		t.Errorf("build called %d times, want 1", got)
	}
}

func TestUDNFromUSN(t *testing.T) {
	tests := []struct {
		usn  string
		want string
	}{
		{"uuid:abc::upnp:rootdevice", "uuid:abc"},
		{"uuid:abc::urn:schemas-upnp-org:device:MediaServer:1", "uuid:abc"},
		{"uuid:abc", "uuid:abc"},
	}

	for _, tt := range tests {
		if got := udnFromUSN(tt.usn); got != tt.want {
			t.Errorf("udnFromUSN(%q) = %q, want %q", tt.usn, got, tt.want)
		}
	}
}

func waitForEvent(t *testing.T, events <-chan Event, kind EventKind, udn string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case event := <-events:
			if event.Kind == kind && event.UDN == udn {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %v %s", kind, udn)
		}
	}
}
