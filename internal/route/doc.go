// Package route defines the data shapes exchanged between deployment
// strategies and the gateway.
//
// A Request is what the operator asks for: a Callback answering a Method on a
// Path. Each strategy turns a Request into a Descriptor whose Target is either
// an EventHandler binding (function compute) or an HTTPProxy URI (server or
// container backends). The descriptor always keeps the request's path.
//
// JoinURL builds the display URL of a deployed route from the gateway base
// URL and the route path:
//
//	route.JoinURL("http://127.0.0.1:8080/", "/hello") // http://127.0.0.1:8080/hello
package route
