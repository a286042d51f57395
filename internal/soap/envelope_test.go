package soap

import (
	"strings"
	"testing"

	"github.com/tverberg/castpoint/internal/description"
)

func TestBuildEnvelope(t *testing.T) {
	got := buildEnvelope(
		"urn:schemas-upnp-org:service:RenderingControl:1",
		"SetVolume",
		[]inputValue{
			{name: "Channel", value: "Master"},
			{name: "DesiredVolume", value: "42"},
		},
	)

	want := `<?xml version="1.0"?>` +
		`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">` +
		`<s:Body>` +
		`<u:SetVolume xmlns:u="urn:schemas-upnp-org:service:RenderingControl:1">` +
		`<Channel>Master</Channel><DesiredVolume>42</DesiredVolume>` +
		`</u:SetVolume>` +
		`</s:Body></s:Envelope>`

	if got != want {
		t.Errorf("buildEnvelope() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildEnvelope_NoArguments(t *testing.T) {
	got := buildEnvelope("urn:schemas-upnp-org:service:AVTransport:1", "GetMediaInfo", nil)

	if !strings.Contains(got, `<u:GetMediaInfo xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"></u:GetMediaInfo>`) {
		t.Errorf("buildEnvelope() = %s", got)
	}
}

func TestBuildEnvelope_EscapesValues(t *testing.T) {
	got := buildEnvelope("urn:x:service:y:1", "Set", []inputValue{{name: "V", value: `<a href="x">&</a>`}})

	if strings.Contains(got, `<a href=`) {
		t.Errorf("value not escaped: %s", got)
	}
	if !strings.Contains(got, "&lt;a href=") {
		t.Errorf("expected escaped markup in %s", got)
	}
}

const faultResponse = `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">` +
	`<s:Body><s:Fault>` +
	`<faultcode>s:Client</faultcode>` +
	`<faultstring>UPnPError</faultstring>` +
	`<detail><UPnPError xmlns="urn:schemas-upnp-org:control-1-0">` +
	`<errorCode>718</errorCode>` +
	`<errorDescription>ConflictInMappingEntry</errorDescription>` +
	`</UPnPError></detail>` +
	`</s:Fault></s:Body></s:Envelope>`

func TestFindFault(t *testing.T) {
	tree, err := description.ParseXML([]byte(faultResponse))
	if err != nil {
		t.Fatalf("ParseXML() error = %v", err)
	}

	code, desc, found := findFault(tree)
	if !found {
		t.Fatal("findFault() found no fault")
	}
	// The UPnPError detail overrides the generic faultcode/faultstring.
	if code != "718" {
		t.Errorf("code = %q, want 718", code)
	}
	if desc != "ConflictInMappingEntry" {
		t.Errorf("desc = %q, want ConflictInMappingEntry", desc)
	}
}

func TestFindFault_NoFault(t *testing.T) {
	doc := `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>` +
		`<u:GetVolumeResponse xmlns:u="urn:x"><CurrentVolume>42</CurrentVolume></u:GetVolumeResponse>` +
		`</s:Body></s:Envelope>`
	tree, err := description.ParseXML([]byte(doc))
	if err != nil {
		t.Fatalf("ParseXML() error = %v", err)
	}

	if _, _, found := findFault(tree); found {
		t.Error("findFault() reported a fault in a success response")
	}

	response := findResponseElement(tree, "GetVolume")
	if response == nil {
		t.Fatal("findResponseElement() = nil")
	}
	if got := response.Text("CurrentVolume"); got != "42" {
		t.Errorf("CurrentVolume = %q, want 42", got)
	}
}
