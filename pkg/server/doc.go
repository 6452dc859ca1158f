// Package server runs game connections from the first handshake byte to
// play.
//
// Every accepted connection becomes a Conn actor. The goroutine that calls
// ServeConn owns the reader: it decodes frames, drives the state machine
// and runs the state handlers. A second goroutine owns the socket writes,
// drains the outbound queue and sends keep-alives. No connection state is
// shared with other connections except through the Directory.
//
// # Connection Lifecycle
//
//	Handshake ─┬─► Status ─► Closed
//	           └─► Login ─► Configuration ◄─► Play ─► Closed
//
//   - Handshake: the client names a protocol version and an intent. The
//     version selects the packet table for the rest of the connection.
//   - Status: one status response and one pong, then close.
//   - Login: optional RSA key exchange and session verification, then
//     compression and LoginSuccess.
//   - Configuration: brand, feature flags, known packs and registry data.
//   - Play: the player joins the Directory and receives the spawn chunks.
//     Reconfigure sends a player back to Configuration. Send accepts play
//     packets only while the player is in Play; every packet written is
//     checked against the state the client is in.
//
// # Events
//
// The application reads Server.Events. A player produces one EventJoined,
// any number of EventPacket and exactly one EventLeft. The event channel
// applies backpressure: while it is full, readers wait.
//
// # Example Usage
//
//	srv, err := server.New(server.DefaultConfig(), server.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	go func() {
//	    for ev := range srv.Events() {
//	        if ev.Kind == server.EventJoined {
//	            srv.Broadcast(&packet.SystemChat{Content: nbt.Text(ev.Player.Name + " joined")})
//	        }
//	    }
//	}()
//	ln, _ := net.Listen("tcp", ":25565")
//	return srv.Serve(ctx, ln)
//
// # Thread Safety
//
// Server, Directory and the exported methods of Conn are safe for
// concurrent use. Machine is owned by a single reader goroutine.
package server
