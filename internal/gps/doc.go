// Package gps implements the client side of a line-oriented GPS protocol:
// the client writes "Give me GPS\n" and the server answers with a single
// "<tag>:<lat>,<lon>" line. Parsed coordinates are handed to a LocationSink
// and human-readable progress goes to a LogSink.
package gps
