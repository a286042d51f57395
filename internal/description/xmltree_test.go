package description

import "testing"

func TestParseXML_Basic(t *testing.T) {
	doc := `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <specVersion>
    <major>1</major>
    <minor>0</minor>
  </specVersion>
  <device>
    <friendlyName>Living Room Renderer</friendlyName>
  </device>
</root>`

	tree, err := ParseXML([]byte(doc))
	if err != nil {
		t.Fatalf("ParseXML() error = %v", err)
	}

	root := tree.Child("root")
	if root == nil {
		t.Fatal("no root element")
	}
	if got := root.Child("specVersion").Text("major"); got != "1" {
		t.Errorf("specVersion/major = %q, want 1", got)
	}
	if got := root.Child("device").Text("friendlyName"); got != "Living Room Renderer" {
		t.Errorf("friendlyName = %q", got)
	}
}

func TestParseXML_RepeatedSiblingsCollapse(t *testing.T) {
	doc := `<list><item>a</item><item>b</item><item>c</item></list>`

	tree, err := ParseXML([]byte(doc))
	if err != nil {
		t.Fatalf("ParseXML() error = %v", err)
	}

	items := tree.Child("list").Children("item")
	if len(items) != 3 {
		t.Fatalf("Children(item) = %d elements, want 3", len(items))
	}
	want := []string{"a", "b", "c"}
	for i, item := range items {
		if item.OwnText() != want[i] {
			t.Errorf("item[%d] = %q, want %q", i, item.OwnText(), want[i])
		}
	}
}

func TestParseXML_SingleChildIsStillASlice(t *testing.T) {
	doc := `<list><item>only</item></list>`

	tree, err := ParseXML([]byte(doc))
	if err != nil {
		t.Fatalf("ParseXML() error = %v", err)
	}

	items := tree.Child("list").Children("item")
	if len(items) != 1 || items[0].OwnText() != "only" {
		t.Errorf("Children(item) = %v", items)
	}
}

func TestParseXML_AttributesMerged(t *testing.T) {
	doc := `<stateVariable sendEvents="no"><name>Volume</name></stateVariable>`

	tree, err := ParseXML([]byte(doc))
	if err != nil {
		t.Fatalf("ParseXML() error = %v", err)
	}

	v := tree.Child("stateVariable")
	if got := v.Attr("sendEvents"); got != "no" {
		t.Errorf("Attr(sendEvents) = %q, want no", got)
	}
	if got := v.Text("name"); got != "Volume" {
		t.Errorf("name = %q, want Volume", got)
	}
}

func TestParseXML_NamespacePrefixesDiscarded(t *testing.T) {
	doc := `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><x>1</x></s:Body></s:Envelope>`

	tree, err := ParseXML([]byte(doc))
	if err != nil {
		t.Fatalf("ParseXML() error = %v", err)
	}

	envelope := tree.Child("Envelope")
	if envelope == nil {
		t.Fatal("no Envelope element under local name")
	}
	if got := envelope.Child("Body").Text("x"); got != "1" {
		t.Errorf("Body/x = %q, want 1", got)
	}
}

func TestParseXML_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unclosed", `<root><child></root>`},
		{"empty", ``},
		{"not xml", `{"json": true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseXML([]byte(tt.doc)); err == nil {
				t.Error("ParseXML() succeeded, want error")
			}
		})
	}
}
