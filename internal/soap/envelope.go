package soap

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/tverberg/castpoint/internal/description"
)

const (
	envelopeNS    = "http://schemas.xmlsoap.org/soap/envelope/"
	encodingStyle = "http://schemas.xmlsoap.org/soap/encoding/"
)

// inputValue pairs an in-argument name with its stringified value.
type inputValue struct {
	name  string
	value string
}

// buildEnvelope renders the SOAP 1.1 request body: envelope prefix s,
// service namespace prefix u, one child element per input argument in
// declared order.
func buildEnvelope(serviceType, actionName string, inputs []inputValue) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>`)
	fmt.Fprintf(&b, `<s:Envelope xmlns:s="%s" s:encodingStyle="%s">`, envelopeNS, encodingStyle)
	b.WriteString(`<s:Body>`)
	fmt.Fprintf(&b, `<u:%s xmlns:u="%s">`, actionName, serviceType)
	for _, input := range inputs {
		fmt.Fprintf(&b, "<%s>%s</%s>", input.name, escapeXML(input.value), input.name)
	}
	fmt.Fprintf(&b, `</u:%s>`, actionName)
	b.WriteString(`</s:Body></s:Envelope>`)
	return b.String()
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// findResponseElement locates Envelope/Body/<Action>Response in a parsed
// response document, or nil.
func findResponseElement(tree description.Tree, actionName string) description.Tree {
	envelope := tree.Child("Envelope")
	if envelope == nil {
		return nil
	}
	body := envelope.Child("Body")
	if body == nil {
		return nil
	}
	return body.Child(actionName + "Response")
}

// findFault extracts a SOAP Fault from a response document, preferring
// the UPnPError detail when present. Returns empty strings when the
// response carries no fault.
func findFault(tree description.Tree) (code, desc string, found bool) {
	envelope := tree.Child("Envelope")
	if envelope == nil {
		return "", "", false
	}
	body := envelope.Child("Body")
	if body == nil {
		return "", "", false
	}
	fault := body.Child("Fault")
	if fault == nil {
		return "", "", false
	}

	code = fault.Text("faultcode")
	desc = fault.Text("faultstring")

	if detail := fault.Child("detail"); detail != nil {
		if upnpErr := detail.Child("UPnPError"); upnpErr != nil {
			if errorCode := upnpErr.Text("errorCode"); errorCode != "" {
				code = errorCode
			}
			if errorDesc := upnpErr.Text("errorDescription"); errorDesc != "" {
				desc = errorDesc
			}
		}
	}
	return code, desc, true
}
