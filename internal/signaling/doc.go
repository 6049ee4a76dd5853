// Package signaling is the WebSocket surface for call matchmaking and
// negotiation relay. It pairs authenticated connections into two-party
// rooms and forwards offers, answers, and ICE candidates between the two
// current occupants without interpreting them.
package signaling
