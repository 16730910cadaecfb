// Package wire implements the framed field protocol spoken between agents
// and the aggregation server: typed length-prefixed fields, the X25519 key
// agreement, AES-128-CBC session encryption, the TCP acceptor, and message
// routing.
package wire
