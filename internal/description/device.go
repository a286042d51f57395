package description

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/tverberg/castpoint/internal/logging"
)

// Device is one node of a UPnP device tree, built from a device
// description document. A device owns its services and embedded devices.
type Device struct {
	// FriendlyName is the human-readable device name.
	FriendlyName string

	// DeviceType is the urn device type string.
	DeviceType string

	// UDN is the unique device name ("uuid:...").
	UDN string

	// Manufacturer, ModelName, ModelNumber and ModelDescription identify
	// the product.
	Manufacturer     string
	ModelName        string
	ModelNumber      string
	ModelDescription string

	// URLBase is the base all relative service URLs resolve against.
	// Either the declared <URLBase> or the description location with its
	// path stripped; always ends with "/".
	URLBase string

	// Location is the description document URL this device came from.
	Location string

	// EmbeddedDevices are nested devices from <deviceList>.
	EmbeddedDevices []*Device

	// Services are this device's own services (not the embedded ones).
	Services []*Service
}

// ServiceState tracks a service's lifecycle from DDF stub to usable
// control endpoint.
type ServiceState int

const (
	// ServicePending means the SCPD has not been fetched yet.
	ServicePending ServiceState = iota
	// ServiceReady means the state table and actions are populated.
	ServiceReady
	// ServiceFailed means the SCPD fetch or parse failed.
	ServiceFailed
)

// String returns a human-readable name for the state
func (s ServiceState) String() string {
	switch s {
	case ServicePending:
		return "pending"
	case ServiceReady:
		return "ready"
	case ServiceFailed:
		return "failed"
	default:
		return fmt.Sprintf("ServiceState(%d)", int(s))
	}
}

// Service is one service entry of a device, with URLs already resolved to
// absolute form.
type Service struct {
	// ServiceType is the urn service type string, used in SOAPACTION.
	ServiceType string

	// ServiceID is the urn service identifier.
	ServiceID string

	// SCPDURL points at the service description document.
	SCPDURL string

	// ControlURL accepts SOAP action invocations.
	ControlURL string

	// EventSubURL is the GENA subscription endpoint. Captured but not
	// used; eventing is out of scope.
	EventSubURL string

	// State is the service lifecycle state.
	State ServiceState

	// Err holds the SCPD fetch/parse error when State is ServiceFailed.
	Err error

	// StateTable lists the service state variables from the SCPD.
	StateTable []*StateVariable

	// Actions lists the invocable actions from the SCPD.
	Actions []*Action
}

// StateVariable looks up a state table entry by name, or nil.
func (s *Service) StateVariable(name string) *StateVariable {
	for _, v := range s.StateTable {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// Action looks up an action by name, or nil.
func (s *Service) Action(name string) *Action {
	for _, a := range s.Actions {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// StateVariable is a named typed slot in a service. Its DataType governs
// how action argument values are coerced.
type StateVariable struct {
	Name          string
	DataType      string
	DefaultValue  string
	AllowedValues []string
	AllowedRange  *AllowedRange
	SendEvents    bool
}

// AllowedRange bounds a numeric state variable. Values are kept verbatim;
// devices put anything from integers to empty strings in here.
type AllowedRange struct {
	Minimum string
	Maximum string
	Step    string
}

// Action is one invocable operation of a service.
type Action struct {
	Name      string
	Arguments []*Argument
}

// InArguments returns the input arguments in declared order.
func (a *Action) InArguments() []*Argument {
	return a.filter(DirectionIn)
}

// OutArguments returns the output arguments in declared order.
func (a *Action) OutArguments() []*Argument {
	return a.filter(DirectionOut)
}

func (a *Action) filter(dir Direction) []*Argument {
	var out []*Argument
	for _, arg := range a.Arguments {
		if arg.Direction == dir {
			out = append(out, arg)
		}
	}
	return out
}

// Direction says whether an argument is sent with the request or returned
// in the response.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
)

// Argument is one parameter of an action. RelatedStateVariable names the
// state table entry whose data type governs coercion.
type Argument struct {
	Name                 string
	Direction            Direction
	RelatedStateVariable string
}

// Builder turns discovery locations into Device trees.
type Builder struct {
	// Fetcher retrieves the description documents.
	Fetcher *Fetcher
}

// NewBuilder creates a builder with a default fetcher.
func NewBuilder() *Builder {
	return &Builder{Fetcher: NewFetcher()}
}

// BuildDevice fetches the description document at location and builds the
// device tree, then fetches the SCPD of every service that names one.
// Service-level failures mark the service failed and move on; only a
// failure to fetch or parse the DDF itself is returned as an error.
func (b *Builder) BuildDevice(ctx context.Context, location string) (*Device, error) {
	tree, err := b.Fetcher.Get(ctx, location)
	if err != nil {
		return nil, err
	}

	root := tree.Child("root")
	if root == nil {
		return nil, &FetchError{Kind: FetchParse, URL: location, Err: fmt.Errorf("document has no <root> element")}
	}
	deviceNode := root.Child("device")
	if deviceNode == nil {
		return nil, &FetchError{Kind: FetchParse, URL: location, Err: fmt.Errorf("document has no <device> element")}
	}

	base, err := resolveURLBase(root.Text("URLBase"), location)
	if err != nil {
		return nil, &FetchError{Kind: FetchParse, URL: location, Err: err}
	}

	device := buildDeviceNode(deviceNode, base, location)
	b.populateServices(ctx, device)
	return device, nil
}

// buildDeviceNode builds one device and recurses into <deviceList>.
func buildDeviceNode(node Tree, base, location string) *Device {
	device := &Device{
		FriendlyName:     node.Text("friendlyName"),
		DeviceType:       node.Text("deviceType"),
		UDN:              node.Text("UDN"),
		Manufacturer:     node.Text("manufacturer"),
		ModelName:        node.Text("modelName"),
		ModelNumber:      node.Text("modelNumber"),
		ModelDescription: node.Text("modelDescription"),
		URLBase:          base,
		Location:         location,
	}

	if serviceList := node.Child("serviceList"); serviceList != nil {
		for _, serviceNode := range serviceList.Children("service") {
			device.Services = append(device.Services, buildServiceStub(serviceNode, base))
		}
	}

	if deviceList := node.Child("deviceList"); deviceList != nil {
		for _, embedded := range deviceList.Children("device") {
			device.EmbeddedDevices = append(device.EmbeddedDevices, buildDeviceNode(embedded, base, location))
		}
	}

	return device
}

// buildServiceStub builds a pending service from its DDF entry, resolving
// the three service URLs against the device base.
func buildServiceStub(node Tree, base string) *Service {
	return &Service{
		ServiceType: node.Text("serviceType"),
		ServiceID:   node.Text("serviceId"),
		SCPDURL:     resolveServiceURL(base, node.Text("SCPDURL")),
		ControlURL:  resolveServiceURL(base, node.Text("controlURL")),
		EventSubURL: resolveServiceURL(base, node.Text("eventSubURL")),
		State:       ServicePending,
	}
}

// populateServices fetches the SCPD for every service in the tree.
// Failures are per-service.
func (b *Builder) populateServices(ctx context.Context, device *Device) {
	for _, service := range device.Services {
		if service.SCPDURL == "" {
			continue
		}
		tree, err := b.Fetcher.Get(ctx, service.SCPDURL)
		if err != nil {
			service.State = ServiceFailed
			service.Err = err
			logging.Warn("SCPD fetch failed",
				zap.String("service", service.ServiceID),
				zap.String("url", service.SCPDURL),
				zap.Error(err),
			)
			continue
		}
		if err := populateFromSCPD(service, tree); err != nil {
			service.State = ServiceFailed
			service.Err = err
			continue
		}
		service.State = ServiceReady
	}

	for _, embedded := range device.EmbeddedDevices {
		b.populateServices(ctx, embedded)
	}
}

// populateFromSCPD fills the state table and action list from a parsed
// service description.
func populateFromSCPD(service *Service, tree Tree) error {
	scpd := tree.Child("scpd")
	if scpd == nil {
		return &FetchError{Kind: FetchParse, URL: service.SCPDURL, Err: fmt.Errorf("document has no <scpd> element")}
	}

	if stateTable := scpd.Child("serviceStateTable"); stateTable != nil {
		for _, node := range stateTable.Children("stateVariable") {
			variable := &StateVariable{
				Name:         node.Text("name"),
				DataType:     node.Text("dataType"),
				DefaultValue: node.Text("defaultValue"),
				SendEvents:   !strings.EqualFold(node.Attr("sendEvents"), "no"),
			}
			if allowed := node.Child("allowedValueList"); allowed != nil {
				for _, value := range allowed.Children("allowedValue") {
					variable.AllowedValues = append(variable.AllowedValues, value.OwnText())
				}
			}
			if rangeNode := node.Child("allowedValueRange"); rangeNode != nil {
				variable.AllowedRange = &AllowedRange{
					Minimum: rangeNode.Text("minimum"),
					Maximum: rangeNode.Text("maximum"),
					Step:    rangeNode.Text("step"),
				}
			}
			service.StateTable = append(service.StateTable, variable)
		}
	}

	if actionList := scpd.Child("actionList"); actionList != nil {
		for _, node := range actionList.Children("action") {
			action := &Action{Name: node.Text("name")}
			if argumentList := node.Child("argumentList"); argumentList != nil {
				for _, argNode := range argumentList.Children("argument") {
					direction := DirectionIn
					if strings.EqualFold(argNode.Text("direction"), "out") {
						direction = DirectionOut
					}
					action.Arguments = append(action.Arguments, &Argument{
						Name:                 argNode.Text("name"),
						Direction:            direction,
						RelatedStateVariable: argNode.Text("relatedStateVariable"),
					})
				}
			}
			service.Actions = append(service.Actions, action)
		}
	}

	return nil
}

// AllServices returns the device's services plus those of every embedded
// device, depth first.
func (d *Device) AllServices() []*Service {
	services := make([]*Service, 0, len(d.Services))
	services = append(services, d.Services...)
	for _, embedded := range d.EmbeddedDevices {
		services = append(services, embedded.AllServices()...)
	}
	return services
}

// FindService returns the first service in the tree whose type matches,
// or nil.
func (d *Device) FindService(serviceType string) *Service {
	for _, service := range d.AllServices() {
		if service.ServiceType == serviceType {
			return service
		}
	}
	return nil
}

// String returns a human-readable one-line summary of the device.
func (d *Device) String() string {
	return fmt.Sprintf("%s (%s) UDN=%s", d.FriendlyName, d.DeviceType, d.UDN)
}

// resolveURLBase decides the device's URL base: the declared <URLBase>
// when present, otherwise the description location with its path
// stripped. The result always ends with "/".
func resolveURLBase(declared, location string) (string, error) {
	if declared != "" {
		if !strings.HasSuffix(declared, "/") {
			declared += "/"
		}
		u, err := url.Parse(declared)
		if err != nil || !u.IsAbs() {
			return "", fmt.Errorf("declared URLBase %q is not an absolute URL", declared)
		}
		return declared, nil
	}

	u, err := url.Parse(location)
	if err != nil || !u.IsAbs() {
		return "", fmt.Errorf("description location %q is not an absolute URL", location)
	}
	u.Path = "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// BuildURL resolves a possibly-relative reference against a base URL per
// RFC 3986. An empty reference yields "".
func BuildURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

func resolveServiceURL(base, ref string) string {
	return BuildURL(base, ref)
}
