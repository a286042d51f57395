package soap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tverberg/castpoint/internal/description"
	"github.com/tverberg/castpoint/internal/logging"
)

// DefaultTimeout is the per-request timeout for action invocations.
const DefaultTimeout = 30 * time.Second

// maxResponseSize caps a SOAP response body.
const maxResponseSize = 1 << 20

// Client dispatches actions against UPnP services. One dispatcher serves
// every action of every service; the parsed Action metadata drives both
// request construction and response decoding.
type Client struct {
	// HTTPClient is the underlying HTTP client.
	HTTPClient *http.Client
}

// NewClient creates a dispatcher with the default timeout.
func NewClient() *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Invoke calls the named action on a service. Inputs are bound to the
// action's in arguments in declared order; the result maps each out
// argument name to a value coerced per its state variable's data type.
func (c *Client) Invoke(ctx context.Context, service *description.Service, actionName string, inputs ...string) (map[string]any, error) {
	action := service.Action(actionName)
	if action == nil {
		return nil, &ActionError{
			Kind:   ActionBadCall,
			Action: actionName,
			Err:    fmt.Errorf("service %s has no such action", service.ServiceID),
		}
	}

	inArgs := action.InArguments()
	if len(inputs) != len(inArgs) {
		return nil, &ActionError{
			Kind:   ActionBadCall,
			Action: actionName,
			Err:    fmt.Errorf("action takes %d inputs, got %d", len(inArgs), len(inputs)),
		}
	}

	values := make([]inputValue, len(inArgs))
	for i, arg := range inArgs {
		values[i] = inputValue{name: arg.Name, value: inputs[i]}
	}
	envelope := buildEnvelope(service.ServiceType, actionName, values)

	tree, err := c.post(ctx, service.ControlURL, service.ServiceType, actionName, envelope)
	if err != nil {
		return nil, err
	}

	if code, desc, found := findFault(tree); found {
		return nil, &ActionError{
			Kind:             ActionFault,
			Action:           actionName,
			FaultCode:        code,
			FaultDescription: desc,
		}
	}

	response := findResponseElement(tree, actionName)
	if response == nil {
		return nil, &ActionError{
			Kind:   ActionTransport,
			Action: actionName,
			Err:    fmt.Errorf("response has no %sResponse element", actionName),
		}
	}

	return decodeOutputs(service, action, response)
}

// post sends the SOAP request and parses the response body. UPnP devices
// answer faults with HTTP 500 and a fault body, so non-200 bodies are
// still parsed before the status is judged.
func (c *Client) post(ctx context.Context, controlURL, serviceType, actionName, envelope string) (description.Tree, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, controlURL, strings.NewReader(envelope))
	if err != nil {
		return nil, &ActionError{Kind: ActionTransport, Action: actionName, Err: err}
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", fmt.Sprintf(`"%s#%s"`, serviceType, actionName))

	logging.Debug("SOAP request",
		zap.String("control_url", controlURL),
		zap.String("action", actionName),
	)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &ActionError{Kind: ActionTransport, Action: actionName, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &ActionError{Kind: ActionTransport, Action: actionName, Err: err}
	}

	tree, parseErr := description.ParseXML(body)
	if parseErr == nil {
		return tree, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ActionError{
			Kind:   ActionTransport,
			Action: actionName,
			Err:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	return nil, &ActionError{Kind: ActionTransport, Action: actionName, Err: parseErr}
}

// decodeOutputs coerces each out argument by its related state variable's
// data type.
func decodeOutputs(service *description.Service, action *description.Action, response description.Tree) (map[string]any, error) {
	outputs := make(map[string]any)
	for _, arg := range action.OutArguments() {
		variable := service.StateVariable(arg.RelatedStateVariable)
		if variable == nil {
			return nil, &ActionError{
				Kind:     ActionMissingStateVar,
				Action:   action.Name,
				Argument: arg.Name,
			}
		}

		value, err := coerceValue(variable.DataType, response.Text(arg.Name))
		if err != nil {
			return nil, &ActionError{
				Kind:     ActionCoerce,
				Action:   action.Name,
				Argument: arg.Name,
				Err:      err,
			}
		}
		outputs[arg.Name] = value
	}
	return outputs, nil
}
