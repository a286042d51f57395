package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tverberg/castpoint/internal/config"
	"github.com/tverberg/castpoint/internal/controlpoint"
	"github.com/tverberg/castpoint/internal/description"
	"github.com/tverberg/castpoint/internal/mdns"
	"github.com/tverberg/castpoint/internal/soap"
	"github.com/tverberg/castpoint/internal/ssdp"
	"github.com/tverberg/castpoint/internal/tui"
)

// Shared command flags
var (
	waitSeconds  int
	doBroadcast  bool
	doMDNS       bool
	searchTarget string
	outputFormat string
	noRemember   bool
)

func init() {
	rootCmd.PersistentFlags().IntVar(&waitSeconds, "wait", 5, "Search wait time in seconds (also sets MX)")
	rootCmd.PersistentFlags().BoolVar(&doBroadcast, "broadcast", false, "Also search via 255.255.255.255 (non-standard)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, json)")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(announceCmd)
	rootCmd.AddCommand(browseCmd)
}

// newOptions maps the shared flags to control point options.
func newOptions() controlpoint.Options {
	return controlpoint.Options{
		ResponseWait:      time.Duration(waitSeconds) * time.Second,
		DoBroadcastSearch: doBroadcast,
	}
}

// discoverCmd runs one search pass and prints what answered.
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Search for UPnP devices on the network",
	Long: `Search for UPnP devices using SSDP multicast M-SEARCH.

Each responding device is listed with its USN, search target and
description location. With --mdns, an mDNS fallback scan for
"_upnp._tcp" advertisements runs as well (non-standard; some devices
only answer there when UDP port 1900 is filtered).`,
	Example: `  # Search with the 5-second default window
  castpoint discover

  # Search for root devices only, 2-second window
  castpoint discover --target upnp:rootdevice --wait 2

  # Include the broadcast and mDNS fallbacks
  castpoint discover --broadcast --mdns`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringVar(&searchTarget, "target", "ssdp:all", "Search target (ssdp:all, upnp:rootdevice, uuid:..., urn:...)")
	discoverCmd.Flags().BoolVar(&doMDNS, "mdns", false, "Also scan via mDNS (non-standard fallback)")
	discoverCmd.Flags().BoolVar(&noRemember, "no-remember", false, "Do not update the known-device registry")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	target := ssdp.ParseSearchTarget(searchTarget)
	ctx := cmd.Context()

	fmt.Printf("Searching for %s (wait: %ds)...\n\n", target.Render(), waitSeconds)

	searcher := ssdp.NewSearcher()
	searcher.ResponseWait = time.Duration(waitSeconds) * time.Second

	records, err := searcher.Search(ctx, target)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if doBroadcast {
		broadcast := ssdp.NewBroadcastSearcher()
		broadcast.ResponseWait = time.Duration(waitSeconds) * time.Second
		extra, err := broadcast.Search(ctx, target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "broadcast search failed: %v\n", err)
		} else {
			records = mergeRecords(records, extra)
		}
	}

	if outputFormat == "json" {
		return printJSON(records)
	}

	if len(records) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Check that multicast is allowed on this network")
		fmt.Println("  - Some devices only answer broadcast; try --broadcast")
		fmt.Println("  - Try --mdns for devices behind SSDP-filtering networks")
		fmt.Println("  - Increase --wait for slow devices")
	} else {
		fmt.Printf("Found %d device(s):\n\n", len(records))
		for i, record := range records {
			fmt.Printf("%d. %s\n", i+1, record.USN)
			fmt.Printf("   Target:   %s\n", record.Target)
			fmt.Printf("   Location: %s\n", record.Location)
			if record.Server != "" {
				fmt.Printf("   Server:   %s\n", record.Server)
			}
			fmt.Println()
		}
	}

	if doMDNS {
		fmt.Println("Running mDNS fallback scan...")
		candidates, err := mdns.NewScanner().Scan(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mDNS scan failed: %v\n", err)
		} else if len(candidates) == 0 {
			fmt.Println("No mDNS advertisements found.")
		} else {
			for _, candidate := range candidates {
				fmt.Printf("  %s at %s (location: %s)\n", candidate.Instance, candidate.IP, candidate.Location)
			}
		}
		fmt.Println()
	}

	if !noRemember {
		rememberRecords(records)
	}

	if isTerminal() && len(records) > 0 {
		fmt.Println("Use 'castpoint describe <location|udn>' to inspect a device")
		fmt.Println("Use 'castpoint browse' for the interactive browser")
	}
	return nil
}

// mergeRecords coalesces two record lists by USN, keeping first-seen.
func mergeRecords(a, b []*ssdp.DiscoveryRecord) []*ssdp.DiscoveryRecord {
	seen := make(map[string]bool, len(a))
	merged := make([]*ssdp.DiscoveryRecord, 0, len(a)+len(b))
	for _, record := range append(a, b...) {
		if seen[record.USN] {
			continue
		}
		seen[record.USN] = true
		merged = append(merged, record)
	}
	return merged
}

// rememberRecords updates the known-device registry with fresh sightings.
// Registry trouble is not worth failing a successful discovery over.
func rememberRecords(records []*ssdp.DiscoveryRecord) {
	if len(records) == 0 {
		return
	}
	registry, err := config.LoadRegistry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot load device registry: %v\n", err)
		return
	}
	builder := description.NewBuilder()
	for _, record := range records {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		device, err := builder.BuildDevice(ctx, record.Location)
		cancel()
		if err != nil || device.UDN == "" {
			continue
		}
		registry.Remember(device.UDN, device.FriendlyName, device.DeviceType, record.Location)
	}
	if err := registry.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot save device registry: %v\n", err)
	}
}

// describeCmd fetches and prints a device's full model.
var describeCmd = &cobra.Command{
	Use:   "describe <location|udn|nickname>",
	Short: "Fetch and display a device description",
	Long: `Fetch a device description document and display the resulting
device tree: identity, embedded devices, services and their actions.
State variables are not listed.

The argument is either a description URL (as printed by 'discover') or
the UDN/nickname of a previously discovered device.`,
	Example: `  castpoint describe http://192.168.1.40:49152/root.xml
  castpoint describe uuid:5f9ec1b3-ff59-19bb-8530-0005cd0a8040
  castpoint describe living-room-tv`,
	Args: cobra.ExactArgs(1),
	RunE: runDescribe,
}

func runDescribe(cmd *cobra.Command, args []string) error {
	location, err := resolveLocation(args[0])
	if err != nil {
		return err
	}

	device, err := description.NewBuilder().BuildDevice(cmd.Context(), location)
	if err != nil {
		return fmt.Errorf("failed to build device: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(device)
	}

	printDevice(device, "")
	return nil
}

func printDevice(device *description.Device, indent string) {
	fmt.Printf("%s%s\n", indent, device.FriendlyName)
	fmt.Printf("%s  Type:         %s\n", indent, device.DeviceType)
	fmt.Printf("%s  UDN:          %s\n", indent, device.UDN)
	if device.Manufacturer != "" {
		fmt.Printf("%s  Manufacturer: %s\n", indent, device.Manufacturer)
	}
	if device.ModelName != "" {
		fmt.Printf("%s  Model:        %s %s\n", indent, device.ModelName, device.ModelNumber)
	}
	fmt.Printf("%s  URL base:     %s\n", indent, device.URLBase)

	for _, service := range device.Services {
		fmt.Printf("%s  Service %s [%s]\n", indent, service.ServiceID, service.State)
		fmt.Printf("%s    Type:    %s\n", indent, service.ServiceType)
		fmt.Printf("%s    Control: %s\n", indent, service.ControlURL)
		for _, action := range service.Actions {
			ins := make([]string, 0, len(action.InArguments()))
			for _, arg := range action.InArguments() {
				ins = append(ins, arg.Name)
			}
			fmt.Printf("%s    Action %s(%s)\n", indent, action.Name, joinComma(ins))
		}
	}

	for _, embedded := range device.EmbeddedDevices {
		printDevice(embedded, indent+"  ")
	}
}

func joinComma(parts []string) string {
	out := ""
	for i, part := range parts {
		if i > 0 {
			out += ", "
		}
		out += part
	}
	return out
}

// invokeCmd calls a SOAP action on a device service.
var invokeCmd = &cobra.Command{
	Use:   "invoke <location|udn|nickname> <serviceType> <action> [args...]",
	Short: "Invoke a SOAP action on a device service",
	Long: `Invoke an action on a device service and print the typed output
arguments. Positional args after the action name are bound to the
action's input arguments in declared order; outputs are coerced per the
service state table (integers come back as integers, booleans as
booleans, and so on).`,
	Example: `  castpoint invoke http://192.168.1.40:49152/root.xml \
      urn:schemas-upnp-org:service:RenderingControl:1 GetVolume Master`,
	Args: cobra.MinimumNArgs(3),
	RunE: runInvoke,
}

func runInvoke(cmd *cobra.Command, args []string) error {
	location, err := resolveLocation(args[0])
	if err != nil {
		return err
	}
	serviceType, actionName, inputs := args[1], args[2], args[3:]

	device, err := description.NewBuilder().BuildDevice(cmd.Context(), location)
	if err != nil {
		return fmt.Errorf("failed to build device: %w", err)
	}

	service := device.FindService(serviceType)
	if service == nil {
		return fmt.Errorf("device has no service %s", serviceType)
	}
	if service.State != description.ServiceReady {
		return fmt.Errorf("service %s is %s: %v", service.ServiceID, service.State, service.Err)
	}

	outputs, err := soap.NewClient().Invoke(cmd.Context(), service, actionName, inputs...)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(outputs)
	}
	for name, value := range outputs {
		fmt.Printf("%s = %v\n", name, value)
	}
	return nil
}

// listenCmd passively prints SSDP announcements.
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Listen for SSDP alive/byebye announcements",
	Long: `Join the SSDP multicast group and print every ssdp:alive and
ssdp:byebye announcement as it arrives. Runs until interrupted or until
--duration elapses.`,
	RunE: runListen,
}

var listenDuration time.Duration

func init() {
	listenCmd.Flags().DurationVar(&listenDuration, "duration", 0, "Stop after this long (0 = until interrupted)")
}

func runListen(cmd *cobra.Command, args []string) error {
	listener, err := ssdp.NewListener(0)
	if err != nil {
		return err
	}
	subscription := listener.Subscribe()
	listener.Start()
	defer listener.Stop()

	fmt.Println("Listening for SSDP announcements (ctrl-c to stop)...")

	// Signal trapping belongs to the application shell; the library only
	// exposes Stop.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	var timeout <-chan time.Time
	if listenDuration > 0 {
		timer := time.NewTimer(listenDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case record := <-subscription.Alive():
			fmt.Printf("[alive]  %s (%s) max-age=%d location=%s\n",
				record.USN, record.Target, record.MaxAge, record.Location)
		case msg := <-subscription.ByeBye():
			fmt.Printf("[byebye] %s (%s)\n", msg.USN, msg.Target)
		case err := <-listener.Err():
			return fmt.Errorf("listener died: %w", err)
		case <-interrupt:
			fmt.Printf("\nStopped. (%d malformed datagrams dropped)\n", listener.MalformedCount())
			return nil
		case <-timeout:
			fmt.Printf("Done. (%d malformed datagrams dropped)\n", listener.MalformedCount())
			return nil
		}
	}
}

// announceCmd advertises a location via periodic ssdp:alive.
var announceCmd = &cobra.Command{
	Use:   "announce",
	Short: "Announce a device location via SSDP",
	Long: `Emit periodic ssdp:alive announcements for a description URL, and a
final ssdp:byebye on shutdown. Re-announcement happens at half the
advertised max-age.`,
	Example: `  castpoint announce --usn uuid:f40c2981-7329-40b7-8b04-27f187aecfb5 \
      --location http://192.168.1.10:8080/desc.xml`,
	RunE: runAnnounce,
}

var (
	announceUSN      string
	announceNT       string
	announceLocation string
	announceServer   string
	announceMaxAge   time.Duration
)

func init() {
	announceCmd.Flags().StringVar(&announceUSN, "usn", "", "Unique service name to advertise (required)")
	announceCmd.Flags().StringVar(&announceNT, "nt", "upnp:rootdevice", "Notification type")
	announceCmd.Flags().StringVar(&announceLocation, "location", "", "Description document URL (required)")
	announceCmd.Flags().StringVar(&announceServer, "server", "castpoint/1.0 UPnP/1.0", "SERVER header value")
	announceCmd.Flags().DurationVar(&announceMaxAge, "max-age", 30*time.Minute, "Advertised cache lifetime")
	_ = announceCmd.MarkFlagRequired("usn")
	_ = announceCmd.MarkFlagRequired("location")
}

func runAnnounce(cmd *cobra.Command, args []string) error {
	notifier := &ssdp.Notifier{
		Target:   announceNT,
		USN:      announceUSN,
		Location: announceLocation,
		Server:   announceServer,
		MaxAge:   announceMaxAge,
	}
	if err := notifier.Start(); err != nil {
		return err
	}

	fmt.Printf("Announcing %s every %s (ctrl-c sends byebye and exits)...\n",
		announceUSN, announceMaxAge/2)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)
	<-interrupt

	notifier.Stop()
	fmt.Println("\nSent byebye, done.")
	return nil
}

// browseCmd runs the interactive device browser.
var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse devices interactively",
	Long: `Launch the interactive device browser: search the network, list
everything found as selectable cards, and print the selected device.`,
	RunE: runBrowse,
}

func runBrowse(cmd *cobra.Command, args []string) error {
	if !isTerminal() {
		return fmt.Errorf("browse requires a terminal; use 'castpoint discover' instead")
	}

	scan := func() ([]*description.Device, error) {
		cp, err := controlpoint.New(newOptions())
		if err != nil {
			return nil, err
		}
		if err := cp.Start(context.Background()); err != nil {
			return nil, err
		}
		defer cp.Stop()
		return cp.Devices(), nil
	}

	device, err := tui.Run(scan)
	if err != nil {
		return err
	}
	if device == nil {
		return nil
	}

	fmt.Printf("Selected %s\n", device)
	printDevice(device, "")
	return nil
}

func resolveLocation(key string) (string, error) {
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key, nil
	}
	registry, err := config.LoadRegistry()
	if err != nil {
		return "", err
	}
	if _, entry := registry.Lookup(key); entry != nil && entry.LastLocation != "" {
		return entry.LastLocation, nil
	}
	return "", fmt.Errorf("unknown device %q; run 'castpoint discover' first", key)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
