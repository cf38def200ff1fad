// Package smqtt implements a mesh publish/subscribe node.
//
// A Node builds and parses mesh messages, keeps reliable messages in a
// bounded cache until they are acknowledged, suppresses duplicates, and
// resends unacknowledged messages with additive backoff.
//
// # Driving a node
//
// A node is single-threaded. Either drive it directly:
//
//	for {
//	    select {
//	    case p := <-tr.Inbound():
//	        node.ParsePacket(p)
//	    case <-ticker.C:
//	        node.Poll()
//	    }
//	}
//
// or let Run do the same and use Submit from other goroutines.
//
// # Acknowledgements
//
// A receiver acknowledges a reliable message by sending its body back under
// its own header with the same reply id, marked as an ack. Which messages
// are delivered and acknowledged depends on the node's exchange.Mode.
//
// # Handlers
//
// Handlers run on the node goroutine. Publish, Subscribe, Unsubscribe and
// Get called from a handler are queued and sent by the next Poll.
package smqtt
