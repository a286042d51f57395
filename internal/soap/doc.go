// Package soap invokes UPnP service actions over SOAP 1.1.
//
// An Action parsed from a service description lists its input and output
// arguments; each argument names a state variable whose data type governs
// coercion. The dispatcher builds the request envelope from that metadata,
// POSTs it to the service control URL, and decodes the response into a map
// of out-argument name to native Go value:
//
//	client := soap.NewClient()
//	outputs, err := client.Invoke(ctx, service, "GetVolume", "Master")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	volume := outputs["CurrentVolume"].(int64)
//
// A SOAP Fault response surfaces as an *ActionError carrying the UPnP
// error code and description. Coercion failures, transport failures and
// dangling state-variable references are equally typed; action errors are
// always surfaced to the caller, never swallowed.
package soap
