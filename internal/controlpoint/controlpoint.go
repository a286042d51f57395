package controlpoint

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tverberg/castpoint/internal/description"
	"github.com/tverberg/castpoint/internal/logging"
	"github.com/tverberg/castpoint/internal/soap"
	"github.com/tverberg/castpoint/internal/ssdp"
)

// Options configures a control point. The zero value gets protocol
// defaults for every field.
type Options struct {
	// TTL is the IP multicast TTL for outbound searches (default 4).
	TTL int

	// ResponseWait is the search deadline and MX source (default 5s).
	ResponseWait time.Duration

	// MSearchCount is how many M-SEARCH copies each search sends
	// (default 2).
	MSearchCount int

	// DoBroadcastSearch additionally runs the 255.255.255.255 searcher.
	DoBroadcastSearch bool

	// RaiseOnRemoteError makes Start fail on the first device whose
	// description cannot be fetched instead of skipping it.
	RaiseOnRemoteError bool
}

// withDefaults fills zero fields with protocol defaults.
func (o Options) withDefaults() Options {
	if o.TTL == 0 {
		o.TTL = ssdp.DefaultTTL
	}
	if o.ResponseWait == 0 {
		o.ResponseWait = ssdp.DefaultResponseWait
	}
	if o.MSearchCount == 0 {
		o.MSearchCount = ssdp.DefaultMSearchCount
	}
	return o
}

// validate rejects option values no searcher can honour.
func (o Options) validate() error {
	if o.TTL < 0 || o.TTL > 255 {
		return &ConfigError{Option: "TTL", Reason: "must be in 0..255"}
	}
	if o.ResponseWait < 0 {
		return &ConfigError{Option: "ResponseWait", Reason: "must not be negative"}
	}
	if o.MSearchCount < 0 {
		return &ConfigError{Option: "MSearchCount", Reason: "must not be negative"}
	}
	return nil
}

// EventKind distinguishes device arrivals from departures.
type EventKind int

const (
	// DeviceAdded means a device joined the registry.
	DeviceAdded EventKind = iota
	// DeviceRemoved means a device announced byebye and left.
	DeviceRemoved
)

// Event is one change to the known-device registry.
type Event struct {
	Kind   EventKind
	UDN    string
	Device *description.Device // nil for DeviceRemoved
}

// searchFunc runs one discovery pass. Swapped out in tests.
type searchFunc func(ctx context.Context, target ssdp.SearchTarget) ([]*ssdp.DiscoveryRecord, error)

// buildFunc builds a device from a description location. Swapped out in
// tests.
type buildFunc func(ctx context.Context, location string) (*description.Device, error)

// ControlPoint maintains a deduplicated, UDN-keyed registry of devices
// discovered on the local network.
type ControlPoint struct {
	opts Options
	soap *soap.Client

	search          searchFunc
	broadcastSearch searchFunc
	build           buildFunc
	newListener     func() (*ssdp.Listener, error)

	mu      sync.RWMutex
	devices map[string]*description.Device

	events chan Event

	listener *ssdp.Listener
	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// New validates options and creates a control point. It opens no sockets;
// Start does.
func New(opts Options) (*ControlPoint, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	builder := description.NewBuilder()

	cp := &ControlPoint{
		opts:    opts,
		soap:    soap.NewClient(),
		devices: make(map[string]*description.Device),
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
	}
	cp.search = func(ctx context.Context, target ssdp.SearchTarget) ([]*ssdp.DiscoveryRecord, error) {
		searcher := ssdp.NewSearcher()
		searcher.ResponseWait = opts.ResponseWait
		searcher.TTL = opts.TTL
		searcher.MSearchCount = opts.MSearchCount
		return searcher.Search(ctx, target)
	}
	cp.broadcastSearch = func(ctx context.Context, target ssdp.SearchTarget) ([]*ssdp.DiscoveryRecord, error) {
		searcher := ssdp.NewBroadcastSearcher()
		searcher.ResponseWait = opts.ResponseWait
		searcher.TTL = opts.TTL
		searcher.MSearchCount = opts.MSearchCount
		return searcher.Search(ctx, target)
	}
	cp.build = builder.BuildDevice
	cp.newListener = func() (*ssdp.Listener, error) {
		return ssdp.NewListener(opts.TTL)
	}
	return cp, nil
}

// Start performs the initial search pass, builds every discovered device,
// and begins tracking alive/byebye announcements. It blocks until the
// search pass completes.
func (cp *ControlPoint) Start(ctx context.Context) error {
	records, err := cp.runSearch(ctx)
	if err != nil {
		return err
	}

	// Device builds for distinct records run independently and may
	// complete out of order.
	var buildWG sync.WaitGroup
	errCh := make(chan error, len(records))
	for _, record := range records {
		buildWG.Add(1)
		go func(record *ssdp.DiscoveryRecord) {
			defer buildWG.Done()
			if err := cp.addFromLocation(ctx, record.Location); err != nil {
				logging.Warn("Failed to build device",
					zap.String("usn", record.USN),
					zap.String("location", record.Location),
					zap.Error(err),
				)
				errCh <- err
			}
		}(record)
	}
	buildWG.Wait()
	close(errCh)

	if cp.opts.RaiseOnRemoteError {
		if err := <-errCh; err != nil {
			return err
		}
	}

	listener, err := cp.newListener()
	if err != nil {
		return err
	}
	cp.listener = listener

	subscription := listener.Subscribe()
	listener.Start()

	cp.wg.Add(1)
	go cp.trackAnnouncements(subscription)

	return nil
}

// runSearch runs the multicast searcher, plus the broadcast searcher when
// opted in, coalescing duplicate USNs across both passes.
func (cp *ControlPoint) runSearch(ctx context.Context) ([]*ssdp.DiscoveryRecord, error) {
	type result struct {
		records []*ssdp.DiscoveryRecord
		err     error
	}

	searches := []searchFunc{cp.search}
	if cp.opts.DoBroadcastSearch {
		searches = append(searches, cp.broadcastSearch)
	}

	results := make(chan result, len(searches))
	for _, search := range searches {
		go func(search searchFunc) {
			records, err := search(ctx, ssdp.RootDevice)
			results <- result{records: records, err: err}
		}(search)
	}

	seen := make(map[string]bool)
	var merged []*ssdp.DiscoveryRecord
	var firstErr error
	for range searches {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		for _, record := range r.records {
			if seen[record.USN] {
				continue
			}
			seen[record.USN] = true
			merged = append(merged, record)
		}
	}

	// A failed broadcast pass with a healthy multicast pass is survivable;
	// no records at all plus an error is not.
	if len(merged) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return merged, nil
}

// addFromLocation builds the device at location and registers it when its
// UDN is new.
func (cp *ControlPoint) addFromLocation(ctx context.Context, location string) error {
	device, err := cp.build(ctx, location)
	if err != nil {
		return err
	}
	if device.UDN == "" {
		logging.Warn("Ignoring device with empty UDN", zap.String("location", location))
		return nil
	}

	cp.mu.Lock()
	_, known := cp.devices[device.UDN]
	if !known {
		cp.devices[device.UDN] = device
	}
	cp.mu.Unlock()

	if !known {
		logging.Info("Device added",
			zap.String("udn", device.UDN),
			zap.String("friendly_name", device.FriendlyName),
		)
		cp.emit(Event{Kind: DeviceAdded, UDN: device.UDN, Device: device})
	}
	return nil
}

// trackAnnouncements adds devices on alive (new UDN only) and removes
// them on byebye.
func (cp *ControlPoint) trackAnnouncements(subscription *ssdp.Subscription) {
	defer cp.wg.Done()

	alive := subscription.Alive()
	byebye := subscription.ByeBye()
	for alive != nil || byebye != nil {
		select {
		case record, ok := <-alive:
			if !ok {
				alive = nil
				continue
			}
			udn := udnFromUSN(record.USN)
			cp.mu.RLock()
			_, known := cp.devices[udn]
			cp.mu.RUnlock()
			if known {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := cp.addFromLocation(ctx, record.Location); err != nil {
				logging.Warn("Failed to build announced device",
					zap.String("usn", record.USN),
					zap.Error(err),
				)
			}
			cancel()

		case msg, ok := <-byebye:
			if !ok {
				byebye = nil
				continue
			}
			cp.remove(udnFromUSN(msg.USN))

		case <-cp.done:
			return
		}
	}
}

// remove drops a device from the registry.
func (cp *ControlPoint) remove(udn string) {
	cp.mu.Lock()
	_, known := cp.devices[udn]
	if known {
		delete(cp.devices, udn)
	}
	cp.mu.Unlock()

	if known {
		logging.Info("Device removed", zap.String("udn", udn))
		cp.emit(Event{Kind: DeviceRemoved, UDN: udn})
	}
}

// emit delivers a registry event without ever blocking the event loop.
func (cp *ControlPoint) emit(event Event) {
	select {
	case cp.events <- event:
	default:
		logging.Warn("Dropping control point event; subscriber too slow",
			zap.String("udn", event.UDN),
		)
	}
}

// Devices returns a snapshot of the known devices.
func (cp *ControlPoint) Devices() []*description.Device {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	devices := make([]*description.Device, 0, len(cp.devices))
	for _, device := range cp.devices {
		devices = append(devices, device)
	}
	return devices
}

// Device returns the device with the given UDN, or nil.
func (cp *ControlPoint) Device(udn string) *description.Device {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	return cp.devices[udn]
}

// Events returns the registry change stream. The channel is buffered;
// events are dropped (and logged) when nobody drains it.
func (cp *ControlPoint) Events() <-chan Event {
	return cp.events
}

// Invoke calls an action on a service of a known device.
func (cp *ControlPoint) Invoke(ctx context.Context, udn, serviceType, action string, inputs ...string) (map[string]any, error) {
	device := cp.Device(udn)
	if device == nil {
		return nil, fmt.Errorf("no known device with UDN %s", udn)
	}
	service := device.FindService(serviceType)
	if service == nil {
		return nil, fmt.Errorf("device %s has no service %s", udn, serviceType)
	}
	return cp.soap.Invoke(ctx, service, action, inputs...)
}

// Stop shuts down the listener and the tracking goroutine.
func (cp *ControlPoint) Stop() {
	cp.stopOnce.Do(func() {
		close(cp.done)
		if cp.listener != nil {
			cp.listener.Stop()
		}
		cp.wg.Wait()
	})
}

// udnFromUSN extracts the device UDN from a USN. A USN is either the bare
// UDN ("uuid:x") or UDN and target joined by "::".
func udnFromUSN(usn string) string {
	udn, _, _ := strings.Cut(usn, "::")
	return udn
}
