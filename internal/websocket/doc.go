// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

/*
Package websocket pushes realtime game updates to local scoreboard displays.

Key Components:

  - Hub: groups display clients by game and fans updates out to them
  - Client: one display connection with read and write goroutines
  - Message: typed JSON frame sent to displays

Architecture:

	realtime.Registry ──Watch(game)──▶ Hub ──▶ room "g1" ──▶ Client, Client
	                                       └─▶ room "g2" ──▶ Client

The first display of a game makes the hub call Watch on the realtime
registry; the handler it registers turns every models.Update into an
"update" message for that game's room. When the last display of a game
disconnects, the hub closes the subscription and the registry stops the
game's connection manager if nobody else watches it.

Message Types:

  - update: a realtime change, data is {"kind", "source", "change", <row>}
  - status: connection status pushed by the HTTP API
  - error: the game could not be watched; the connection closes after it
  - ping/pong: application-level keepalive from the display

Connection Lifecycle:

 1. Display connects via HTTP upgrade (GET /ws?game={id})
 2. Hub registers the client in the game's room
 3. Client starts read/write goroutines
 4. Hub delivers the game's updates to the room
 5. Display disconnects, or its buffer overflows
 6. Hub unregisters the client, releasing the watch if the room is empty

Thread Safety:

Room membership is changed only by the RunWithContext loop; the mutex
guards reads from other goroutines. Only writePump writes to a connection.

Configuration:

  - writeWait: 10 seconds (time allowed to write a message)
  - pongWait: 60 seconds (time allowed to read the next pong)
  - pingPeriod: 54 seconds (must be shorter than pongWait)
  - maxMessageSize: 64 KB inbound
*/
package websocket
